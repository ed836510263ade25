// Package badgerjournal persists a device's delta journal to BadgerDB:
// a primary key ordered by origin device and sequence, a secondary
// time index for prune-by-age, plus a version-vector snapshot row, so
// a restarted process can rebuild its Journal without re-fetching from
// peers.
package badgerjournal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"memsync/internal/storage/badgerstore"
	"memsync/internal/syncengine"
)

const (
	// prefixEntry keys: journal:{device}:{seq:020d}:{id}
	prefixEntry = "journal:"
	// prefixTime keys: journal_ts:{ts:020d}:{device}:{seq:020d}:{id} —
	// a secondary, time-ordered index used only by prune.
	prefixTime = "journal_ts:"
	vectorKey  = "journal_vector:current"
)

// Store persists DeltaEntries and the journal's version vector for one
// device's BadgerDB instance. It implements syncengine.JournalMirror.
type Store struct {
	db *badger.DB
}

// Open returns a Store backed by the BadgerDB instance named "journal"
// under mgr.
func Open(mgr *badgerstore.Manager) (*Store, error) {
	db, err := mgr.Open("journal")
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func entryKey(device syncengine.DeviceID, seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixEntry, device, seq, id))
}

func timeKey(ts int64, device syncengine.DeviceID, seq uint64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s:%020d:%s", prefixTime, ts, device, seq, id))
}

// Append persists a single DeltaEntry under both its primary and
// time-ordered keys.
func (s *Store) Append(entry *syncengine.DeltaEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	seq := entry.Version.Get(entry.DeviceID)

	return badgerstore.WriteTx(s.db, func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(entry.DeviceID, seq, entry.ID), data); err != nil {
			return err
		}
		return txn.Set(timeKey(entry.Timestamp, entry.DeviceID, seq, entry.ID), nil)
	})
}

// SaveVector persists the journal's current version vector snapshot.
func (s *Store) SaveVector(v *syncengine.VersionVector) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return badgerstore.WriteTx(s.db, func(txn *badger.Txn) error {
		return txn.Set([]byte(vectorKey), data)
	})
}

// LoadVector reads back the persisted version vector, or an empty one
// if none has been saved yet.
func (s *Store) LoadVector() (*syncengine.VersionVector, error) {
	v := syncengine.NewVersionVector()
	err := badgerstore.ReadTx(s.db, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(vectorKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return nil, badgerstore.WrapError(err)
	}
	return v, nil
}

// LoadEntries reconstructs every persisted DeltaEntry, in primary-key
// (device, sequence) order, for rebuilding an in-memory Journal at
// startup.
func (s *Store) LoadEntries() ([]*syncengine.DeltaEntry, error) {
	var out []*syncengine.DeltaEntry
	err := badgerstore.Iterate(s.db, []byte(prefixEntry), func(_, value []byte) error {
		var entry syncengine.DeltaEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return err
		}
		out = append(out, &entry)
		return nil
	})
	if err != nil {
		return nil, badgerstore.WrapError(err)
	}
	return out, nil
}

// DeleteBefore removes every entry whose timestamp predates cutoff,
// using the time-ordered index to avoid a full primary-key scan.
// Returns the number of entries removed.
func (s *Store) DeleteBefore(cutoff time.Time) (int, error) {
	var toDelete [][]byte

	err := badgerstore.IterateKeys(s.db, []byte(prefixTime), func(key []byte) error {
		ts, device, seq, id, ok := parseTimeKey(string(key))
		if !ok || ts >= cutoff.Unix() {
			return nil
		}
		toDelete = append(toDelete, append([]byte(nil), key...))
		toDelete = append(toDelete, entryKey(syncengine.DeviceID(device), seq, id))
		return nil
	})
	if err != nil {
		return 0, badgerstore.WrapError(err)
	}

	if len(toDelete) == 0 {
		return 0, nil
	}

	err = badgerstore.BatchWrite(s.db, func(wb *badger.WriteBatch) error {
		for _, key := range toDelete {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, badgerstore.WrapError(err)
	}
	return len(toDelete) / 2, nil
}

// parseTimeKey parses "journal_ts:{ts:020d}:{device}:{seq:020d}:{id}"
// back into its components. Assumes, as the rest of the key scheme
// does, that a DeviceID never contains a colon.
func parseTimeKey(key string) (ts int64, device string, seq uint64, id string, ok bool) {
	rest := strings.TrimPrefix(key, prefixTime)
	if rest == key || len(rest) < 21 {
		return 0, "", 0, "", false
	}
	tsStr, rest := rest[:20], rest[21:]

	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return 0, "", 0, "", false
	}
	device, rest = rest[:colon], rest[colon+1:]

	if len(rest) < 21 {
		return 0, "", 0, "", false
	}
	seqStr, id := rest[:20], rest[21:]

	tsVal, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, "", 0, "", false
	}
	seqVal, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return 0, "", 0, "", false
	}
	return tsVal, device, seqVal, id, true
}

// Close closes the underlying BadgerDB handle directly; the Manager
// that opened it is not notified.
func (s *Store) Close() error {
	return s.db.Close()
}
