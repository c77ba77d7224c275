package clock

import (
	"testing"
)

// TestVectorClock_Property_CompareReflexive tests that every clock is Equal to itself.
func TestVectorClock_Property_CompareReflexive(t *testing.T) {
	clocks := []*VectorClock{
		New(),
		fromCounters(map[NodeID]uint64{1: 1}),
		fromCounters(map[NodeID]uint64{1: 3, 2: 1, 5: 9}),
	}
	for _, vc := range clocks {
		if got := vc.Compare(vc); got != Equal {
			t.Errorf("compare(%s, %s) = %v, want Equal", vc, vc, got)
		}
	}
}

// TestVectorClock_Property_CompareInverse tests that Compare in both directions
// gives inverse results: Before<->After, Concurrent<->Concurrent, Equal<->Equal.
func TestVectorClock_Property_CompareInverse(t *testing.T) {
	pairs := []struct {
		a, b map[NodeID]uint64
	}{
		{map[NodeID]uint64{1: 1}, map[NodeID]uint64{1: 2}},
		{map[NodeID]uint64{1: 2, 2: 1}, map[NodeID]uint64{1: 1, 2: 2}},
		{map[NodeID]uint64{1: 1, 2: 2}, map[NodeID]uint64{1: 1, 2: 2}},
		{map[NodeID]uint64{}, map[NodeID]uint64{3: 4}},
		{map[NodeID]uint64{1: 1}, map[NodeID]uint64{2: 1}},
	}

	inverse := map[Occurrence]Occurrence{
		Before:     After,
		After:      Before,
		Concurrent: Concurrent,
		Equal:      Equal,
	}

	for _, p := range pairs {
		a, b := fromCounters(p.a), fromCounters(p.b)
		ab, ba := a.Compare(b), b.Compare(a)
		if ba != inverse[ab] {
			t.Errorf("compare(%s, %s) = %v but compare(%s, %s) = %v", a, b, ab, b, a, ba)
		}
	}
}

// TestVectorClock_Property_IncrementSucceedsOrigin tests that an increment
// always causally succeeds the clock it came from.
func TestVectorClock_Property_IncrementSucceedsOrigin(t *testing.T) {
	clocks := []*VectorClock{
		New(),
		fromCounters(map[NodeID]uint64{1: 1}),
		fromCounters(map[NodeID]uint64{2: 7, 3: 1}),
	}
	for _, vc := range clocks {
		for _, id := range []NodeID{1, 2, 9} {
			next := vc.Incremented(id, at(50))
			if got := vc.Compare(next); got != Before {
				t.Errorf("compare(%s, %s.Incremented(%d)) = %v, want Before", vc, vc, id, got)
			}
		}
	}
}

// TestVectorClock_Property_MergeDominatesBoth tests that merge(a,b) dominates
// or equals both inputs.
func TestVectorClock_Property_MergeDominatesBoth(t *testing.T) {
	a := fromCounters(map[NodeID]uint64{1: 1, 2: 1})
	b := fromCounters(map[NodeID]uint64{1: 2, 3: 1})

	m := a.Merged(b)

	if got := a.Compare(m); !got.AtOrBefore() {
		t.Errorf("compare(a, merge(a,b)) = %v, want Before or Equal", got)
	}
	if got := b.Compare(m); !got.AtOrBefore() {
		t.Errorf("compare(b, merge(a,b)) = %v, want Before or Equal", got)
	}
}

// TestVectorClock_Property_MergeCommutes tests that merge order does not
// change the causal state.
func TestVectorClock_Property_MergeCommutes(t *testing.T) {
	a := fromCounters(map[NodeID]uint64{1: 4, 2: 1})
	b := fromCounters(map[NodeID]uint64{2: 3, 5: 2})

	if ab, ba := a.Merged(b), b.Merged(a); !ab.Equal(ba) {
		t.Errorf("merge(a,b) = %s but merge(b,a) = %s", ab, ba)
	}
}

// TestVectorClock_ConcurrentScenario pins the documented concurrent pair:
// A = {1:2, 2:1}, B = {1:1, 2:2} are concurrent and merge to {1:2, 2:2}.
func TestVectorClock_ConcurrentScenario(t *testing.T) {
	a := fromCounters(map[NodeID]uint64{1: 2, 2: 1})
	b := fromCounters(map[NodeID]uint64{1: 1, 2: 2})

	if got := a.Compare(b); got != Concurrent {
		t.Errorf("compare(A, B) = %v, want Concurrent", got)
	}

	m := a.Merged(b)
	want := fromCounters(map[NodeID]uint64{1: 2, 2: 2})
	if !m.Equal(want) {
		t.Errorf("merge(A, B) = %s, want %s", m, want)
	}
}
