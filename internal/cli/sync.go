package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Build outbound sync protocol messages",
}

var syncRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Build a Layer 2 SyncRequest carrying this device's version vector",
	Args:  cobra.NoArgs,
	RunE:  runSyncRequest,
}

var syncFullCmd = &cobra.Command{
	Use:   "full",
	Short: "Build a Layer 3 FullSyncRequest carrying this device's manifest",
	Args:  cobra.NoArgs,
	RunE:  runSyncFull,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncRequestCmd)
	syncCmd.AddCommand(syncFullCmd)
}

func runSyncRequest(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	coord := a.coordinator(cfg.SyncBatchSize)
	msg, err := coord.BuildSyncRequest()
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	return printMessage(msg)
}

func runSyncFull(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	coord := a.coordinator(cfg.SyncBatchSize)
	msg, err := coord.BuildFullSyncRequest()
	if err != nil {
		return fmt.Errorf("build full sync request: %w", err)
	}
	return printMessage(msg)
}

func printMessage(msg any) error {
	data, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop journal entries older than the configured retention window",
	Args:  cobra.NoArgs,
	RunE:  runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	coord := a.coordinator(cfg.SyncBatchSize)
	dropped := coord.PruneJournal(cfg.JournalRetentionSecs)
	if dropped > 0 {
		if err := a.mgr.RunGCFor("journal", 0.5); err != nil {
			logger.Warn("journal value-log GC failed", "error", err)
		}
	}
	fmt.Printf("pruned %d entries\n", dropped)
	return nil
}
