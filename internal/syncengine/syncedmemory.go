package syncengine

import (
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"memsync/internal/memory"
	"memsync/internal/pkg/logging"
)

// provenance tracks, per key, the timestamp and originating device of
// the write currently reflected in the backend — the bookkeeping needed
// to resolve two devices writing the same key while offline from each
// other. Last-writer-wins: the higher timestamp applies; a tie is broken
// by the higher DeviceID, so both sides converge on the same winner
// without needing to talk to each other again.
type provenance struct {
	timestamp int64
	device    DeviceID
}

// beats reports whether a candidate write (ts, device) should replace
// the value this provenance describes.
func (p provenance) beats(ts int64, device DeviceID) bool {
	if ts != p.timestamp {
		return ts > p.timestamp
	}
	return device > p.device
}

// FullSyncEntry is one exported record of a Layer-3 bootstrap, matching
// the wire FullSyncData message shape.
type FullSyncEntry struct {
	EntityType       string   `json:"entity_type"`
	EntityID         string   `json:"entity_id"`
	EncryptedPayload []byte   `json:"encrypted_payload"`
	IV               []byte   `json:"iv"`
	AuthTag          []byte   `json:"auth_tag"`
	FromDeviceID     DeviceID `json:"from_device_id"`
}

// SyncedMemory decorates a memory.Backend with the Delta Journal so
// every mutation — local or applied from a remote delta — is recorded.
// It is the single chokepoint through which backend calls reach the
// sync system; nothing in this package is permitted to call the backend
// directly.
type SyncedMemory struct {
	backend memory.Backend
	journal *Journal
	crypto  *CryptoBox
	logger  *logging.Logger

	mu   sync.Mutex
	prov map[string]provenance
}

// NewSyncedMemory wires a backend, journal, and crypto box together.
func NewSyncedMemory(backend memory.Backend, journal *Journal, crypto *CryptoBox, logger *logging.Logger) *SyncedMemory {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SyncedMemory{
		backend: backend,
		journal: journal,
		crypto:  crypto,
		logger:  logger.Component("syncedmemory"),
		prov:    make(map[string]provenance),
	}
}

// Store delegates to the backend, then journals the mutation. A backend
// failure propagates; a journal append failure is logged but the store
// still reports success, since the backend is the source of truth for
// the user-visible operation.
func (m *SyncedMemory) Store(key, content, category, session string) error {
	if err := m.backend.Store(key, content, category, session); err != nil {
		return err
	}
	entry := m.journal.RecordStore(key, content, category)
	m.recordProvenance(key, entry.Timestamp, entry.DeviceID)
	return nil
}

func (m *SyncedMemory) recordProvenance(key string, ts int64, device DeviceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prov[key] = provenance{timestamp: ts, device: device}
}

// Forget delegates to the backend and records a Forget entry only if the
// backend actually deleted something, preserving idempotency: forgetting
// an already-absent key produces no delta.
func (m *SyncedMemory) Forget(key string) (int, error) {
	n, err := m.backend.Forget(key)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.journal.RecordForget(key)
	}
	return n, nil
}

func (m *SyncedMemory) Recall(query string, limit int, session string) ([]*memory.Entry, error) {
	return m.backend.Recall(query, limit, session)
}

func (m *SyncedMemory) Get(key string) (*memory.Entry, bool, error) {
	return m.backend.Get(key)
}

func (m *SyncedMemory) List(category, session string) ([]*memory.Entry, error) {
	return m.backend.List(category, session)
}

func (m *SyncedMemory) Count() (int, error) {
	return m.backend.Count()
}

func (m *SyncedMemory) HealthCheck() bool {
	return m.backend.HealthCheck()
}

// ApplyRemoteDeltas hands entries to the journal, which merges their
// causal history into the local version vector regardless of outcome,
// then replays only the operations that win last-writer-wins against
// whatever this device currently holds for the same key. A remote Store
// that loses the tiebreak still advances the version vector — the
// device has now seen it — but never overwrites the backend. Forget
// always applies: deletions don't have a competing value to lose to.
// Returns the number of operations actually replayed against the
// backend.
func (m *SyncedMemory) ApplyRemoteDeltas(entries []*DeltaEntry) int {
	fresh := m.journal.ApplyRemote(entries)
	applied := 0
	for _, e := range fresh {
		op := e.Operation
		var err error
		switch op.Kind {
		case OpStore:
			if !m.acceptsWrite(op.Key, e.Timestamp, e.DeviceID) {
				m.logger.Debug("concurrent write lost last-writer-wins",
					"key", op.Key, "from", string(e.DeviceID), "timestamp", e.Timestamp)
				continue
			}
			err = m.backend.Store(op.Key, op.Content, op.Category, "")
			if err == nil {
				m.recordProvenance(op.Key, e.Timestamp, e.DeviceID)
			}
		case OpForget:
			_, err = m.backend.Forget(op.Key)
		}
		if err != nil {
			m.logger.Warn("apply remote delta failed", "error", err, "key", op.Key, "op", string(op.Kind))
			continue
		}
		applied++
	}
	return applied
}

// ApplyFullSyncEntries applies state-transfer entries from a manifest
// reconciliation. Unlike ApplyRemoteDeltas these are snapshots of the
// sender's current values, all stamped with the sender's current
// vector, so several entries may carry an identical clock for the
// sender; they bypass the journal's per-entry duplicate check and are
// judged only by last-writer-wins against the local backend. The
// sender's vector is still merged so later delta syncs don't re-offer
// ground the snapshot already covered.
func (m *SyncedMemory) ApplyFullSyncEntries(entries []*DeltaEntry) int {
	applied := 0
	for _, e := range entries {
		op := e.Operation
		if op.Kind != OpStore {
			continue
		}
		m.journal.ObserveRemoteVector(e.Version)
		if !m.acceptsWrite(op.Key, e.Timestamp, e.DeviceID) {
			continue
		}
		if err := m.backend.Store(op.Key, op.Content, op.Category, ""); err != nil {
			m.logger.Warn("apply full sync entry failed", "error", err, "key", op.Key)
			continue
		}
		m.recordProvenance(op.Key, e.Timestamp, e.DeviceID)
		applied++
	}
	return applied
}

// acceptsWrite reports whether a remote write to key with the given
// timestamp/device should overwrite the backend, per last-writer-wins.
// A key with no recorded provenance yet always accepts.
func (m *SyncedMemory) acceptsWrite(key string, ts int64, device DeviceID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.prov[key]
	if !ok {
		return true
	}
	return current.beats(ts, device)
}

// EncryptDeltasSince collects everything newer than remote and encrypts
// it. Returns nil if there is nothing to send.
func (m *SyncedMemory) EncryptDeltasSince(remote *VersionVector, device DeviceID) (*SyncEnvelope, error) {
	entries := m.journal.GetDeltasSince(remote)
	if len(entries) == 0 {
		return nil, nil
	}
	return m.crypto.Encrypt(entries, device, m.journal.Version().Clone())
}

// Decrypt delegates to the crypto box.
func (m *SyncedMemory) Decrypt(env *SyncEnvelope) ([]*DeltaEntry, error) {
	return m.crypto.Decrypt(env)
}

// BuildManifest lists every key currently in the backend. Only memory
// keys are populated; conversation/setting inventories are left empty
// since this backend doesn't model them.
func (m *SyncedMemory) BuildManifest() (FullSyncManifest, error) {
	entries, err := m.backend.List("", "")
	if err != nil {
		return FullSyncManifest{}, err
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return FullSyncManifest{MemoryKeys: keys, GeneratedAt: time.Now()}, nil
}

// ExportMissing reads each key's current value from the backend, wraps
// it as a Store delta stamped with the current vector, encrypts it
// individually, and emits a FullSyncEntry ready for the wire.
func (m *SyncedMemory) ExportMissing(keys []string, device DeviceID) ([]*FullSyncEntry, error) {
	out := make([]*FullSyncEntry, 0, len(keys))
	for _, key := range keys {
		entry, ok, err := m.backend.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		delta := NewStoreEntry(device, m.journal.Version().Clone(), entry.Key, entry.Content, entry.Category, time.Now())
		env, err := m.crypto.Encrypt([]*DeltaEntry{delta}, device, m.journal.Version().Clone())
		if err != nil {
			m.logger.Warn("export missing encrypt failed", "error", err, "key", key)
			continue
		}

		// auth_tag carries the trailing Poly1305 tag for clients that
		// split it out; decrypt here works from the ciphertext alone.
		var tag []byte
		if n := len(env.Ciphertext); n >= chacha20poly1305.Overhead {
			tag = env.Ciphertext[n-chacha20poly1305.Overhead:]
		}

		out = append(out, &FullSyncEntry{
			EntityType:       "memory",
			EntityID:         key,
			EncryptedPayload: env.Ciphertext,
			IV:               env.Nonce,
			AuthTag:          tag,
			FromDeviceID:     device,
		})
	}
	return out, nil
}
