package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	storeCategory string
	storeSession  string
)

var storeCmd = &cobra.Command{
	Use:   "store <key> <content>",
	Short: "Store a key/value memory entry and journal the mutation",
	Args:  cobra.ExactArgs(2),
	RunE:  runStore,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.Flags().StringVar(&storeCategory, "category", "", "opaque category label")
	storeCmd.Flags().StringVar(&storeSession, "session", "", "opaque session label")
}

func runStore(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.memory.Store(args[0], args[1], storeCategory, storeSession); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	fmt.Printf("stored %q (vector now %v)\n", args[0], a.journal.Version().ToMap())
	return nil
}

var forgetCmd = &cobra.Command{
	Use:   "forget <key>",
	Short: "Delete a memory entry, journaling a Forget delta only if it existed",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(forgetCmd)
}

func runForget(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.memory.Forget(args[0])
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	fmt.Printf("deleted %d entr(y/ies) for %q\n", n, args[0])
	return nil
}

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Fetch a single memory entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entry, ok, err := a.memory.Get(args[0])
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if !ok {
		fmt.Printf("%q not found\n", args[0])
		return nil
	}
	fmt.Printf("%s = %q (category=%q, updated=%s)\n", entry.Key, entry.Content, entry.Category, entry.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

var (
	listCategory string
	listSession  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory entries, optionally filtered by category",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listCategory, "category", "", "filter by category")
	listCmd.Flags().StringVar(&listSession, "session", "", "filter by session")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.memory.List(listCategory, listSession)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\n", e.Key, e.Category, e.Content)
	}
	fmt.Printf("%d entries\n", len(entries))
	return nil
}

var (
	recallLimit   int
	recallSession string
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Recall entries matching a query",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecall,
}

func init() {
	rootCmd.AddCommand(recallCmd)
	recallCmd.Flags().IntVar(&recallLimit, "limit", 10, "maximum number of results")
	recallCmd.Flags().StringVar(&recallSession, "session", "", "filter by session")
}

func runRecall(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.memory.Recall(args[0], recallLimit, recallSession)
	if err != nil {
		return fmt.Errorf("recall: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\n", e.Key, e.Category, e.Content)
	}
	fmt.Printf("%d matches\n", len(entries))
	return nil
}
