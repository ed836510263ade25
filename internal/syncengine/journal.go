package syncengine

import (
	"sort"
	"sync"
	"time"

	"memsync/internal/pkg/logging"
)

// DefaultJournalRetention is how long a DeltaEntry stays in the journal
// before prune() may discard it.
const DefaultJournalRetention = 30 * 24 * time.Hour

// JournalMirror is the optional persistent backing for a Journal. A nil
// mirror means the journal is purely in-memory. Mirror failures are
// logged, never returned to the caller — per the journal's failure
// semantics, the in-memory journal is the source of truth.
type JournalMirror interface {
	Append(entry *DeltaEntry) error
	SaveVector(v *VersionVector) error
	DeleteBefore(cutoff time.Time) (int, error)
}

// Journal is the append-only log of DeltaEntries for one device. It owns
// the device's VersionVector: every local mutation increments it, every
// accepted remote entry merges into it.
type Journal struct {
	mu      sync.Mutex
	device  DeviceID
	version *VersionVector
	entries []*DeltaEntry
	mirror  JournalMirror
	logger  *logging.Logger
}

// NewJournal returns an empty journal for device, optionally backed by
// mirror for persistence across restarts.
func NewJournal(device DeviceID, mirror JournalMirror, logger *logging.Logger) *Journal {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Journal{
		device:  device,
		version: NewVersionVector(),
		mirror:  mirror,
		logger:  logger.Component("journal"),
	}
}

// Version returns the journal's current version vector (not a clone —
// callers must not mutate it).
func (j *Journal) Version() *VersionVector {
	return j.version
}

// Hydrate restores entries loaded from a mirror at process startup. It
// sorts by origin sequence first so GetDeltasSince's insertion-order
// contract holds, merges each entry's version into the local vector,
// and skips mirrorAppend — the entries are already persisted.
func (j *Journal) Hydrate(entries []*DeltaEntry) {
	sort.Slice(entries, func(i, k int) bool {
		if entries[i].DeviceID != entries[k].DeviceID {
			return entries[i].DeviceID < entries[k].DeviceID
		}
		return entries[i].originSeq() < entries[k].originSeq()
	})

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range entries {
		j.version.Merge(e.Version)
		j.entries = append(j.entries, e)
	}
}

// RecordStore increments the local clock and appends a Store entry.
func (j *Journal) RecordStore(key, content, category string) *DeltaEntry {
	return j.record(func(ts time.Time, version *VersionVector) *DeltaEntry {
		return NewStoreEntry(j.device, version, key, content, category, ts)
	})
}

// RecordForget increments the local clock and appends a Forget entry.
func (j *Journal) RecordForget(key string) *DeltaEntry {
	return j.record(func(ts time.Time, version *VersionVector) *DeltaEntry {
		return NewForgetEntry(j.device, version, key, ts)
	})
}

func (j *Journal) record(build func(time.Time, *VersionVector) *DeltaEntry) *DeltaEntry {
	j.mu.Lock()
	j.version.Increment(j.device)
	snapshot := j.version.Clone()
	entry := build(time.Now(), snapshot)
	j.entries = append(j.entries, entry)
	j.mu.Unlock()

	j.mirrorAppend(entry)
	return entry
}

func (j *Journal) mirrorAppend(entry *DeltaEntry) {
	if j.mirror == nil {
		return
	}
	if err := j.mirror.Append(entry); err != nil {
		j.logger.Warn("journal mirror append failed", "error", err, "entry_id", entry.ID)
	}
	if err := j.mirror.SaveVector(j.version); err != nil {
		j.logger.Warn("journal mirror vector save failed", "error", err)
	}
}

// GetDeltasSince returns every entry this journal has that the caller,
// holding remote, has not yet seen, in insertion order.
func (j *Journal) GetDeltasSince(remote *VersionVector) []*DeltaEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*DeltaEntry, 0)
	for _, e := range j.entries {
		if e.Version.Get(e.DeviceID) > remote.Get(e.DeviceID) {
			out = append(out, e)
		}
	}
	return out
}

// ApplyRemote merges each entry's version into the local vector and
// appends it, skipping anything already seen. Entries must be applied in
// the order given — callers (the Order Buffer) are responsible for
// presenting per-origin-contiguous order. Returns the entries that were
// actually new, so the caller can resolve same-key conflicts using their
// timestamp and origin device before touching the backend.
func (j *Journal) ApplyRemote(entries []*DeltaEntry) []*DeltaEntry {
	j.mu.Lock()
	fresh := make([]*DeltaEntry, 0, len(entries))
	for _, e := range entries {
		if e.Version.Get(e.DeviceID) > j.version.Get(e.DeviceID) {
			j.version.Merge(e.Version)
			j.entries = append(j.entries, e)
			fresh = append(fresh, e)
		}
	}
	j.mu.Unlock()

	for _, e := range fresh {
		j.mirrorAppend(e)
	}
	return fresh
}

// ObserveRemoteVector merges a peer's vector into the local one without
// appending any entries. Used by full-sync state transfer, where the
// peer ships current values rather than the mutation history behind
// them.
func (j *Journal) ObserveRemoteVector(v *VersionVector) {
	j.mu.Lock()
	j.version.Merge(v)
	j.mu.Unlock()

	if j.mirror != nil {
		if err := j.mirror.SaveVector(j.version); err != nil {
			j.logger.Warn("journal mirror vector save failed", "error", err)
		}
	}
}

// Device returns the journal's owning device ID.
func (j *Journal) Device() DeviceID {
	return j.device
}

// Prune drops entries older than retention and asks the mirror to do the
// same. Returns the number of in-memory entries dropped.
func (j *Journal) Prune(retention time.Duration) int {
	if retention <= 0 {
		retention = DefaultJournalRetention
	}
	cutoff := time.Now().Add(-retention)

	j.mu.Lock()
	kept := j.entries[:0:0]
	dropped := 0
	for _, e := range j.entries {
		if e.Timestamp < cutoff.Unix() {
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	j.entries = kept
	j.mu.Unlock()

	if j.mirror != nil {
		if _, err := j.mirror.DeleteBefore(cutoff); err != nil {
			j.logger.Warn("journal mirror prune failed", "error", err)
		}
	}
	return dropped
}

// Len returns the number of entries currently held in memory.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// Entries returns a snapshot copy of all entries, for manifest building
// and tests.
func (j *Journal) Entries() []*DeltaEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*DeltaEntry, len(j.entries))
	copy(out, j.entries)
	return out
}
