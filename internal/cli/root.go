// Package cli wires the sync core's subcommands onto a cobra root
// command. initConfig loads a config.Config the subcommands read from,
// using the --config path, and --verbose then raises the log level.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"memsync/internal/config"
	"memsync/internal/pkg/logging"
)

var (
	cfgFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var cfg config.Config
var logger *logging.Logger

var rootCmd = &cobra.Command{
	Use:   "memsyncd",
	Short: "Cross-device memory synchronization daemon",
	Long: `memsyncd keeps a per-device memory store synchronized across every
device a user owns, using a three-layer protocol: a relay for
devices that are online together, a delta catch-up exchange for
devices that reconnect after a gap, and a full manifest
reconciliation for bootstrapping a new device or recovering from
loss.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo records build metadata shown by the version command.
func SetVersionInfo(v, c, d string) {
	version, commit, date = v, c, d
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "memsyncd: loading config:", err)
		os.Exit(1)
	}
	cfg = loaded

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger = logging.New(os.Stderr, level)
}
