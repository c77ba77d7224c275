package clock

import (
	"testing"
	"time"
)

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// fromCounters builds a clock from node->counter pairs with zero update times.
func fromCounters(counters map[NodeID]uint64) *VectorClock {
	entries := make([]Entry, 0, len(counters))
	for id, c := range counters {
		entries = append(entries, Entry{Node: id, Counter: c})
	}
	return FromEntries(entries, time.UnixMilli(0))
}

func TestVectorClock_Incremented(t *testing.T) {
	vc := New()

	vc1 := vc.Incremented(1, at(10))
	if vc1.Counter(1) != 1 {
		t.Errorf("Expected counter 1, got %d", vc1.Counter(1))
	}
	if vc1.Timestamp() != 10 {
		t.Errorf("Expected timestamp 10, got %d", vc1.Timestamp())
	}

	vc2 := vc1.Incremented(1, at(20))
	if vc2.Counter(1) != 2 {
		t.Errorf("Expected counter 2, got %d", vc2.Counter(1))
	}

	vc3 := vc2.Incremented(2, at(30))
	if vc3.Counter(2) != 1 {
		t.Errorf("Expected counter 1 for node 2, got %d", vc3.Counter(2))
	}

	// The originals must be untouched.
	if vc.Counter(1) != 0 {
		t.Errorf("Incremented mutated its receiver: counter %d", vc.Counter(1))
	}
	if vc1.Counter(1) != 1 || vc2.Counter(2) != 0 {
		t.Error("Incremented mutated a previously returned clock")
	}
}

func TestVectorClock_Merged(t *testing.T) {
	a := fromCounters(map[NodeID]uint64{1: 3, 2: 1})
	b := fromCounters(map[NodeID]uint64{1: 2, 2: 5, 3: 1})

	m := a.Merged(b)

	if m.Counter(1) != 3 {
		t.Errorf("Expected 3 (max), got %d", m.Counter(1))
	}
	if m.Counter(2) != 5 {
		t.Errorf("Expected 5 (max), got %d", m.Counter(2))
	}
	if m.Counter(3) != 1 {
		t.Errorf("Expected 1, got %d", m.Counter(3))
	}
	if a.Counter(2) != 1 {
		t.Error("Merged mutated its receiver")
	}
}

func TestVectorClock_Merged_Timestamp(t *testing.T) {
	a := NewAt(at(100)).Incremented(1, at(100))
	b := NewAt(at(200)).Incremented(2, at(200))

	if got := a.Merged(b).Timestamp(); got != 200 {
		t.Errorf("Expected merged timestamp 200, got %d", got)
	}
	if got := b.Merged(a).Timestamp(); got != 200 {
		t.Errorf("Expected merged timestamp 200, got %d", got)
	}
}

func TestVectorClock_Compare(t *testing.T) {
	tests := []struct {
		name     string
		a        map[NodeID]uint64
		b        map[NodeID]uint64
		expected Occurrence
	}{
		{
			name:     "equal clocks",
			a:        map[NodeID]uint64{1: 1, 2: 2},
			b:        map[NodeID]uint64{1: 1, 2: 2},
			expected: Equal,
		},
		{
			name:     "empty clocks are equal",
			a:        map[NodeID]uint64{},
			b:        map[NodeID]uint64{},
			expected: Equal,
		},
		{
			name:     "a before b",
			a:        map[NodeID]uint64{1: 1, 2: 1},
			b:        map[NodeID]uint64{1: 2, 2: 2},
			expected: Before,
		},
		{
			name:     "a after b",
			a:        map[NodeID]uint64{1: 2, 2: 2},
			b:        map[NodeID]uint64{1: 1, 2: 1},
			expected: After,
		},
		{
			name:     "concurrent: a leads on node 1, b leads on node 2",
			a:        map[NodeID]uint64{1: 2, 2: 1},
			b:        map[NodeID]uint64{1: 1, 2: 2},
			expected: Concurrent,
		},
		{
			name:     "absent entry counts as zero (subset before)",
			a:        map[NodeID]uint64{1: 1},
			b:        map[NodeID]uint64{1: 2, 2: 1},
			expected: Before,
		},
		{
			name:     "absent entry counts as zero (concurrent)",
			a:        map[NodeID]uint64{1: 2},
			b:        map[NodeID]uint64{1: 1, 2: 2},
			expected: Concurrent,
		},
		{
			name:     "empty before anything nonzero",
			a:        map[NodeID]uint64{},
			b:        map[NodeID]uint64{7: 1},
			expected: Before,
		},
		{
			name:     "disjoint replica sets are concurrent",
			a:        map[NodeID]uint64{1: 1},
			b:        map[NodeID]uint64{2: 1},
			expected: Concurrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fromCounters(tt.a).Compare(fromCounters(tt.b))
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestVectorClock_Equal_IgnoresTimestamp(t *testing.T) {
	a := New().Incremented(1, at(10))
	b := New().Incremented(1, at(9999))

	if !a.Equal(b) {
		t.Error("Equality must ignore timestamps")
	}
	if a.Compare(b) != Equal {
		t.Errorf("Expected Equal, got %v", a.Compare(b))
	}
}

func TestOccurrence_AtOrBefore(t *testing.T) {
	if !Before.AtOrBefore() || !Equal.AtOrBefore() {
		t.Error("Before and Equal both license discarding the left clock")
	}
	if After.AtOrBefore() || Concurrent.AtOrBefore() {
		t.Error("After and Concurrent must not license discarding")
	}
}

func TestVectorClock_String(t *testing.T) {
	if got := New().String(); got != "{}" {
		t.Errorf("Expected {}, got %s", got)
	}
	vc := fromCounters(map[NodeID]uint64{2: 1, 1: 2})
	if got := vc.String(); got != "{1:2, 2:1}" {
		t.Errorf("Expected {1:2, 2:1}, got %s", got)
	}
}
