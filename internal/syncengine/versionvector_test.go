package syncengine

import "testing"

func TestVersionVector_GetMissingIsZero(t *testing.T) {
	v := NewVersionVector()
	if got := v.Get("device-a"); got != 0 {
		t.Errorf("expected 0 for unseen device, got %d", got)
	}
}

func TestVersionVector_IncrementMonotonic(t *testing.T) {
	v := NewVersionVector()
	var last uint64
	for i := 0; i < 5; i++ {
		next := v.Increment("device-a")
		if next <= last {
			t.Fatalf("clock did not increase: %d -> %d", last, next)
		}
		last = next
	}
	if got := v.Get("device-a"); got != 5 {
		t.Errorf("expected clock 5, got %d", got)
	}
}

func TestVersionVector_MergeTakesPointwiseMax(t *testing.T) {
	a := VersionVectorFromMap(map[DeviceID]uint64{"A": 3, "B": 1})
	b := VersionVectorFromMap(map[DeviceID]uint64{"A": 2, "B": 5, "C": 1})

	a.Merge(b)

	if got := a.Get("A"); got != 3 {
		t.Errorf("A: expected max(3,2)=3, got %d", got)
	}
	if got := a.Get("B"); got != 5 {
		t.Errorf("B: expected max(1,5)=5, got %d", got)
	}
	if got := a.Get("C"); got != 1 {
		t.Errorf("C: expected 1 (only in b), got %d", got)
	}
}

func TestVersionVector_DominatesCorrectness(t *testing.T) {
	a := VersionVectorFromMap(map[DeviceID]uint64{"A": 3, "B": 2})
	b := VersionVectorFromMap(map[DeviceID]uint64{"A": 2, "B": 2})

	if !a.Dominates(b) {
		t.Error("expected a to dominate b")
	}
	if b.Dominates(a) {
		t.Error("expected b to not dominate a")
	}
	if a.IsConcurrentWith(b) {
		t.Error("a dominates b, so they are not concurrent")
	}
}

func TestVersionVector_EqualIffMutualDominance(t *testing.T) {
	a := VersionVectorFromMap(map[DeviceID]uint64{"A": 3, "B": 2})
	b := VersionVectorFromMap(map[DeviceID]uint64{"A": 3, "B": 2})

	if !(a.Dominates(b) && b.Dominates(a)) {
		t.Fatal("expected mutual dominance for equal vectors")
	}
	if !a.Equal(b) {
		t.Error("expected a == b")
	}

	c := VersionVectorFromMap(map[DeviceID]uint64{"A": 3, "B": 1})
	if a.Equal(c) {
		t.Error("expected a != c")
	}
}

func TestVersionVector_Concurrent(t *testing.T) {
	a := VersionVectorFromMap(map[DeviceID]uint64{"A": 2, "B": 0})
	b := VersionVectorFromMap(map[DeviceID]uint64{"A": 0, "B": 2})

	if a.Dominates(b) || b.Dominates(a) {
		t.Fatal("neither vector should dominate the other")
	}
	if !a.IsConcurrentWith(b) {
		t.Error("expected a and b to be concurrent")
	}
	if !b.IsConcurrentWith(a) {
		t.Error("concurrency must be symmetric")
	}
}

func TestVersionVector_JSONRoundTrip(t *testing.T) {
	a := VersionVectorFromMap(map[DeviceID]uint64{"A": 3, "B": 7})
	data, err := a.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	b := NewVersionVector()
	if err := b.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !a.Equal(b) {
		t.Errorf("expected round-tripped vector to equal original, got %v vs %v", a.ToMap(), b.ToMap())
	}
}
