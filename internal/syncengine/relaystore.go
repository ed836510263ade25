package syncengine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRelayTTL is the lifetime of a relay entry before sweep_expired
// reclaims it.
const DefaultRelayTTL = 5 * time.Minute

// DefaultMaxPerDevice bounds how many outstanding entries a single
// sender may have queued for a user at once.
const DefaultMaxPerDevice = 64

// RelayEntry is the server-visible form of a relay item: an envelope
// wrapped with a user-scoped addressing tuple. The relay never decrypts
// the payload and never persists it to disk.
type RelayEntry struct {
	ID               string   `json:"id"`
	SenderDeviceID   DeviceID `json:"sender_device_id"`
	UserID           string   `json:"user_id"`
	EncryptedPayload []byte   `json:"encrypted_payload"`
	Nonce            []byte   `json:"nonce"`
	CreatedAtEpoch   int64    `json:"created_at_epoch"`
}

func (e *RelayEntry) expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultRelayTTL
	}
	return now.Unix()-e.CreatedAtEpoch >= int64(ttl.Seconds())
}

type userQueue struct {
	mu      sync.Mutex
	entries []*RelayEntry
}

// RelayStore is the server-side, in-memory, per-user queue of encrypted
// envelopes with TTL expiry. It is sharded by user ID with one mutex per
// user so unrelated users never contend, and it is never written to
// disk — payloads pass through the relay but are never at rest there
// longer than TTL.
type RelayStore struct {
	mu           sync.RWMutex
	queues       map[string]*userQueue
	ttl          time.Duration
	maxPerDevice int
}

// NewRelayStore builds a RelayStore with the given TTL and per-device
// cap; zero values fall back to the package defaults.
func NewRelayStore(ttl time.Duration, maxPerDevice int) *RelayStore {
	if ttl <= 0 {
		ttl = DefaultRelayTTL
	}
	if maxPerDevice <= 0 {
		maxPerDevice = DefaultMaxPerDevice
	}
	return &RelayStore{
		queues:       make(map[string]*userQueue),
		ttl:          ttl,
		maxPerDevice: maxPerDevice,
	}
}

func (s *RelayStore) queueFor(userID string) *userQueue {
	s.mu.RLock()
	q, ok := s.queues[userID]
	s.mu.RUnlock()
	if ok {
		return q
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok = s.queues[userID]; ok {
		return q
	}
	q = &userQueue{}
	s.queues[userID] = q
	return q
}

// Store inserts entry into its user's queue, sweeping that user's
// expired entries first and evicting the sender's oldest outstanding
// entry if it is already at the per-device cap. Returns the assigned
// entry ID.
func (s *RelayStore) Store(entry *RelayEntry) string {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAtEpoch == 0 {
		entry.CreatedAtEpoch = time.Now().Unix()
	}

	q := s.queueFor(entry.UserID)
	now := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = sweepLocked(q.entries, now, s.ttl)

	senderCount := 0
	oldestIdx := -1
	for i, e := range q.entries {
		if e.SenderDeviceID == entry.SenderDeviceID {
			senderCount++
			if oldestIdx == -1 {
				oldestIdx = i
			}
		}
	}
	if senderCount >= s.maxPerDevice && oldestIdx != -1 {
		q.entries = append(q.entries[:oldestIdx], q.entries[oldestIdx+1:]...)
	}

	q.entries = append(q.entries, entry)
	return entry.ID
}

// Pickup drains all non-expired entries in user's queue whose sender is
// not excludeDevice. Entries from excludeDevice are retained — they
// belong to a sync still owned by the sender, not yet consumed by
// either side.
func (s *RelayStore) Pickup(userID string, excludeDevice DeviceID) []*RelayEntry {
	q := s.queueFor(userID)
	now := time.Now()

	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = sweepLocked(q.entries, now, s.ttl)

	var picked, retained []*RelayEntry
	for _, e := range q.entries {
		if e.SenderDeviceID == excludeDevice {
			retained = append(retained, e)
		} else {
			picked = append(picked, e)
		}
	}
	q.entries = retained
	return picked
}

// SweepExpired runs a global pass over every user's queue and returns
// the total number of entries removed.
func (s *RelayStore) SweepExpired() int {
	s.mu.RLock()
	queues := make([]*userQueue, 0, len(s.queues))
	for _, q := range s.queues {
		queues = append(queues, q)
	}
	s.mu.RUnlock()

	now := time.Now()
	removed := 0
	for _, q := range queues {
		q.mu.Lock()
		before := len(q.entries)
		q.entries = sweepLocked(q.entries, now, s.ttl)
		removed += before - len(q.entries)
		q.mu.Unlock()
	}
	return removed
}

func sweepLocked(entries []*RelayEntry, now time.Time, ttl time.Duration) []*RelayEntry {
	kept := entries[:0:0]
	for _, e := range entries {
		if !e.expired(now, ttl) {
			kept = append(kept, e)
		}
	}
	return kept
}
