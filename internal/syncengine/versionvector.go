// Package syncengine implements cross-device memory synchronization:
// delta journaling, version-vector ordering, encrypted relay delivery,
// and full-manifest reconciliation.
package syncengine

import (
	"encoding/json"
	"sync"
)

// DeviceID identifies a single device participating in sync.
type DeviceID string

// VersionVector tracks the highest sequence number this device has
// observed from every device it has synced with, including itself.
// It is the causal clock the rest of the package orders deltas by.
type VersionVector struct {
	mu     sync.RWMutex
	clocks map[DeviceID]uint64
}

// NewVersionVector returns an empty version vector.
func NewVersionVector() *VersionVector {
	return &VersionVector{clocks: make(map[DeviceID]uint64)}
}

// VersionVectorFromMap builds a version vector from a plain map, cloning
// it so the caller's map can be mutated freely afterward.
func VersionVectorFromMap(m map[DeviceID]uint64) *VersionVector {
	clocks := make(map[DeviceID]uint64, len(m))
	for k, v := range m {
		clocks[k] = v
	}
	return &VersionVector{clocks: clocks}
}

// Increment advances the counter for device and returns the new value.
func (v *VersionVector) Increment(device DeviceID) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clocks[device]++
	return v.clocks[device]
}

// Observe records seq for device if it is higher than what is already
// known. Used when applying a remote delta so the vector reflects the
// highest sequence actually seen, not just locally-incremented counts.
func (v *VersionVector) Observe(device DeviceID, seq uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if seq > v.clocks[device] {
		v.clocks[device] = seq
	}
}

// Get returns the counter for device, or 0 if never observed.
func (v *VersionVector) Get(device DeviceID) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.clocks[device]
}

// Clone returns a deep copy.
func (v *VersionVector) Clone() *VersionVector {
	v.mu.RLock()
	defer v.mu.RUnlock()
	clocks := make(map[DeviceID]uint64, len(v.clocks))
	for k, val := range v.clocks {
		clocks[k] = val
	}
	return &VersionVector{clocks: clocks}
}

// ToMap returns a plain-map snapshot of the vector.
func (v *VersionVector) ToMap() map[DeviceID]uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(map[DeviceID]uint64, len(v.clocks))
	for k, val := range v.clocks {
		out[k] = val
	}
	return out
}

// Merge folds other into v, taking the elementwise maximum of each
// device's counter. other is snapshotted via ToMap before v's lock is
// taken, so two vectors merging each other concurrently cannot deadlock.
func (v *VersionVector) Merge(other *VersionVector) {
	if other == nil {
		return
	}
	snapshot := other.ToMap()

	v.mu.Lock()
	defer v.mu.Unlock()
	for device, seq := range snapshot {
		if seq > v.clocks[device] {
			v.clocks[device] = seq
		}
	}
}

// compareResult mirrors the four-way outcome of comparing two vectors.
type compareResult int

const (
	compareEqual compareResult = iota
	compareBefore
	compareAfter
	compareConcurrent
)

// compare snapshots both vectors and determines their causal relation.
func (v *VersionVector) compare(other *VersionVector) compareResult {
	a := v.ToMap()
	b := other.ToMap()

	aLessSomewhere, aGreaterSomewhere := false, false

	devices := make(map[DeviceID]struct{}, len(a)+len(b))
	for d := range a {
		devices[d] = struct{}{}
	}
	for d := range b {
		devices[d] = struct{}{}
	}

	for d := range devices {
		av, bv := a[d], b[d]
		switch {
		case av < bv:
			aLessSomewhere = true
		case av > bv:
			aGreaterSomewhere = true
		}
	}

	switch {
	case !aLessSomewhere && !aGreaterSomewhere:
		return compareEqual
	case aLessSomewhere && !aGreaterSomewhere:
		return compareBefore
	case !aLessSomewhere && aGreaterSomewhere:
		return compareAfter
	default:
		return compareConcurrent
	}
}

// Dominates reports whether v has observed everything other has (v ==
// other or other happened-before v).
func (v *VersionVector) Dominates(other *VersionVector) bool {
	r := v.compare(other)
	return r == compareEqual || r == compareAfter
}

// HappensBefore reports whether v causally precedes other.
func (v *VersionVector) HappensBefore(other *VersionVector) bool {
	return v.compare(other) == compareBefore
}

// IsConcurrentWith reports whether neither vector dominates the other.
func (v *VersionVector) IsConcurrentWith(other *VersionVector) bool {
	return v.compare(other) == compareConcurrent
}

// Equal reports whether the two vectors hold identical counters.
func (v *VersionVector) Equal(other *VersionVector) bool {
	return v.compare(other) == compareEqual
}

// vectorWire is the vector's JSON shape: the device->seq map nested
// under a "clocks" key.
type vectorWire struct {
	Clocks map[DeviceID]uint64 `json:"clocks"`
}

// MarshalJSON encodes the vector as {"clocks": {device: seq, ...}}.
func (v *VersionVector) MarshalJSON() ([]byte, error) {
	return json.Marshal(vectorWire{Clocks: v.ToMap()})
}

// UnmarshalJSON decodes the wire shape back into the vector.
func (v *VersionVector) UnmarshalJSON(data []byte) error {
	var w vectorWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clocks = w.Clocks
	if v.clocks == nil {
		v.clocks = make(map[DeviceID]uint64)
	}
	return nil
}
