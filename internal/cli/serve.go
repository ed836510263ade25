package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"memsync/internal/pkg/logging"
	"memsync/internal/syncengine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon: relay delivery, periodic catch-up, journal pruning",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := a.coordinator(cfg.SyncBatchSize)
	log := logger.Component("serve")

	go prunePeriodically(ctx, a, coord)

	// lastPublished tracks the vector as of the last relay upload, so
	// each upload carries only deltas the relay hasn't seen from us.
	lastPublished := coord.Version().Clone()
	backoff := time.Second

	for ctx.Err() == nil {
		client := syncengine.NewRelayClient(cfg.RelayURL, a.device, cfg.UserID, logger)
		if err := client.Connect(ctx); err != nil {
			log.Warn("relay connect failed, backing off", "error", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = time.Second
		log.Info("relay connected", "url", cfg.RelayURL, "user_id", cfg.UserID)

		// Recv blocks in a network read; a context cancellation alone
		// can't interrupt it, so tear the connection down on shutdown.
		go func() {
			<-ctx.Done()
			_ = client.Close()
		}()

		publishDone := make(chan struct{})
		go publishPeriodically(ctx, coord, client, &lastPublished, publishDone, log)

		// Drain inbound until the connection dies or we're told to stop.
		for {
			entry, ok := client.Recv()
			if !ok {
				break
			}
			if applied := coord.HandleRelayEntry(entry); applied > 0 {
				log.Info("applied relay deltas", "from", string(entry.SenderDeviceID), "applied", applied)
			}
		}

		_ = client.Close()
		<-publishDone

		if ctx.Err() != nil {
			return nil
		}
		log.Warn("relay connection lost, reconnecting", "backoff", backoff)
		if !sleepCtx(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff)
	}
	return nil
}

// publishPeriodically uploads any deltas newer than lastPublished on a
// short cadence while the connection is live.
func publishPeriodically(ctx context.Context, coord *syncengine.Coordinator, client *syncengine.RelayClient, lastPublished **syncengine.VersionVector, done chan<- struct{}, log *logging.Logger) {
	defer close(done)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !client.IsConnected() {
				return
			}
			entry, err := coord.BuildRelayEntry(*lastPublished, cfg.UserID)
			if err != nil {
				log.Warn("build relay entry failed", "error", err)
				continue
			}
			if entry == nil {
				continue
			}
			if err := client.Store(entry); err != nil {
				log.Warn("relay store failed", "error", err)
				continue
			}
			*lastPublished = coord.Version().Clone()
		}
	}
}

func prunePeriodically(ctx context.Context, a *app, coord *syncengine.Coordinator) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dropped := coord.PruneJournal(cfg.JournalRetentionSecs); dropped > 0 {
				logger.Info("journal pruned", "dropped", dropped)
				if err := a.mgr.RunGCFor("journal", 0.5); err != nil {
					logger.Warn("journal value-log GC failed", "error", err)
				}
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > time.Minute {
		next = time.Minute
	}
	return next
}
