package cli

import (
	"fmt"

	"memsync/internal/memory"
	"memsync/internal/storage/badgerjournal"
	"memsync/internal/storage/badgerstore"
	"memsync/internal/storage/devicestore"
	"memsync/internal/syncengine"
)

// app bundles the components every subcommand needs: a persisted
// device identity, a journal backed by the on-disk mirror, and a
// synced memory wrapping an in-memory backend. The backend itself does
// not survive between CLI invocations — memory.MapBackend is the
// reference implementation meant for tests and this CLI's standalone
// mode — but the journal and version vector do, via badgerjournal,
// so repeated invocations still see a consistent, growing delta
// history and sync state.
type app struct {
	device  syncengine.DeviceID
	secret  []byte
	mgr     *badgerstore.Manager
	mirror  *badgerjournal.Store
	journal *syncengine.Journal
	memory  *syncengine.SyncedMemory
	crypto  *syncengine.CryptoBox
}

func openApp() (*app, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory not configured")
	}

	device, err := devicestore.LoadOrCreateDeviceID(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load device id: %w", err)
	}
	secret, err := devicestore.LoadOrCreateSharedSecret(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load shared secret: %w", err)
	}

	mgr := badgerstore.NewManager(cfg.DataDir)
	mirror, err := badgerjournal.Open(mgr)
	if err != nil {
		return nil, fmt.Errorf("open journal store: %w", err)
	}

	journal := syncengine.NewJournal(device, mirror, logger)
	if entries, err := mirror.LoadEntries(); err == nil {
		journal.Hydrate(entries)
	}
	if persisted, err := mirror.LoadVector(); err == nil {
		journal.Version().Merge(persisted)
	}

	crypto, err := syncengine.NewCryptoBox(secret)
	if err != nil {
		_ = mgr.CloseAll()
		return nil, fmt.Errorf("init crypto box: %w", err)
	}

	backend := memory.NewMapBackend()
	synced := syncengine.NewSyncedMemory(backend, journal, crypto, logger)

	return &app{
		device:  device,
		secret:  secret,
		mgr:     mgr,
		mirror:  mirror,
		journal: journal,
		memory:  synced,
		crypto:  crypto,
	}, nil
}

func (a *app) Close() error {
	return a.mgr.CloseAll()
}

// coordinator builds a Coordinator wired to this app's synced memory,
// seeded from the journal's persisted version vector.
func (a *app) coordinator(batchSize int) *syncengine.Coordinator {
	return syncengine.NewCoordinator(a.device, a.memory, a.journal.Version(), batchSize, logger)
}
