package cli

import (
	"time"

	"github.com/spf13/cobra"

	"memsync/internal/relayserver"
	"memsync/internal/syncengine"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the short-TTL relay server used for Layer 1 delivery",
}

var relayListenAddr string

var relayServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the relay's WebSocket endpoint and HTTP fallback",
	Args:  cobra.NoArgs,
	RunE:  runRelayServe,
}

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.AddCommand(relayServeCmd)
	relayServeCmd.Flags().StringVar(&relayListenAddr, "addr", "", "listen address (defaults to config relay_listen_addr)")
}

func runRelayServe(cmd *cobra.Command, args []string) error {
	addr := relayListenAddr
	if addr == "" {
		addr = cfg.RelayListenAddr
	}

	ttl := cfg.RelayTTL()
	if ttl <= 0 {
		ttl = syncengine.DefaultRelayTTL
	}
	store := syncengine.NewRelayStore(ttl, cfg.RelayMaxPerDevice)
	server := relayserver.NewServer(store, logger)

	go sweepRelayPeriodically(store, ttl)

	return server.Start(addr)
}

// sweepRelayPeriodically runs the relay store's global expiry pass on a
// cadence proportional to its TTL, so entries from devices that never
// come back for pickup still get reclaimed.
func sweepRelayPeriodically(store *syncengine.RelayStore, ttl time.Duration) {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		store.SweepExpired()
	}
}
