package syncengine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind tags the variant held by a DeltaOperation.
type OperationKind string

const (
	OpStore  OperationKind = "store"
	OpForget OperationKind = "forget"
)

// DeltaOperation is the tagged Store/Forget mutation a DeltaEntry carries.
// Exactly one of the Store fields or Key (for Forget) is meaningful,
// selected by Kind.
type DeltaOperation struct {
	Kind     OperationKind `json:"kind"`
	Key      string        `json:"key"`
	Content  string        `json:"content,omitempty"`
	Category string        `json:"category,omitempty"`
}

// MarshalJSON renders the operation as the tagged-sum shape the wire
// protocol expects: {"Store": {...}} or {"Forget": {...}}.
func (op DeltaOperation) MarshalJSON() ([]byte, error) {
	switch op.Kind {
	case OpStore:
		return json.Marshal(map[string]any{
			"Store": map[string]string{
				"key":      op.Key,
				"content":  op.Content,
				"category": op.Category,
			},
		})
	case OpForget:
		return json.Marshal(map[string]any{
			"Forget": map[string]string{"key": op.Key},
		})
	default:
		return nil, fmt.Errorf("syncengine: unknown operation kind %q", op.Kind)
	}
}

// UnmarshalJSON parses the tagged-sum wire shape back into a DeltaOperation.
func (op *DeltaOperation) UnmarshalJSON(data []byte) error {
	var wrapper struct {
		Store *struct {
			Key      string `json:"key"`
			Content  string `json:"content"`
			Category string `json:"category"`
		} `json:"Store"`
		Forget *struct {
			Key string `json:"key"`
		} `json:"Forget"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	switch {
	case wrapper.Store != nil:
		op.Kind = OpStore
		op.Key = wrapper.Store.Key
		op.Content = wrapper.Store.Content
		op.Category = wrapper.Store.Category
	case wrapper.Forget != nil:
		op.Kind = OpForget
		op.Key = wrapper.Forget.Key
		op.Content = ""
		op.Category = ""
	default:
		return fmt.Errorf("syncengine: delta operation has neither Store nor Forget variant")
	}
	return nil
}

// DeltaEntry is one mutation record: who made it, what clock it carries,
// and what operation it represents. Entries are immutable after creation.
type DeltaEntry struct {
	ID        string         `json:"id"`
	DeviceID  DeviceID       `json:"device_id"`
	Version   *VersionVector `json:"version"`
	Operation DeltaOperation `json:"operation"`
	Timestamp int64          `json:"timestamp"`
}

// newDeltaID derives a short, unique delta identifier from the
// originating device, the current wall-clock timestamp, and fresh
// entropy.
func newDeltaID(device DeviceID, ts int64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", device, ts, uuid.NewString())))
	return "delta-" + hex.EncodeToString(h[:])[:16]
}

// NewStoreEntry builds a DeltaEntry for a Store mutation, stamped with
// version (the originator's vector snapshot taken *after* incrementing).
func NewStoreEntry(device DeviceID, version *VersionVector, key, content, category string, ts time.Time) *DeltaEntry {
	return &DeltaEntry{
		ID:       newDeltaID(device, ts.Unix()),
		DeviceID: device,
		Version:  version,
		Operation: DeltaOperation{
			Kind: OpStore, Key: key, Content: content, Category: category,
		},
		Timestamp: ts.Unix(),
	}
}

// NewForgetEntry builds a DeltaEntry for a Forget mutation.
func NewForgetEntry(device DeviceID, version *VersionVector, key string, ts time.Time) *DeltaEntry {
	return &DeltaEntry{
		ID:        newDeltaID(device, ts.Unix()),
		DeviceID:  device,
		Version:   version,
		Operation: DeltaOperation{Kind: OpForget, Key: key},
		Timestamp: ts.Unix(),
	}
}

// originSeq returns the entry's position in its own device's clock —
// the per-origin sequence number the Order Buffer orders on.
func (e *DeltaEntry) originSeq() uint64 {
	return e.Version.Get(e.DeviceID)
}
