package repair

import (
	"bytes"
	"sort"

	"dynastore/internal/clock"
	"dynastore/internal/storage"
)

// Result is the outcome of reconciling the versions read for one key.
type Result struct {
	// Winners is the maximal set of non-dominated versions. More than one
	// winner means the key is in a genuine conflict state that the caller
	// must surface, never collapse.
	Winners []storage.Versioned

	// Stale maps a replica to the dominated version it returned, for read
	// repair.
	Stale map[clock.NodeID]storage.Versioned
}

// HasConflict reports whether multiple concurrent winners remain.
func (r *Result) HasConflict() bool {
	return len(r.Winners) > 1
}

// IsResolved reports whether exactly one winner remains.
func (r *Result) IsResolved() bool {
	return len(r.Winners) == 1
}

// IsNotFound reports whether no version was read at all.
func (r *Result) IsNotFound() bool {
	return len(r.Winners) == 0
}

// Resolve returns the maximal antichain of the given versions: every version
// causally at or before another is pruned. The output is a pure function of
// the input set, independent of its order; of equal versions exactly one
// representative survives, chosen by smallest value bytes and then by clock
// rendering so runs are reproducible.
func Resolve(versions []storage.Versioned) []storage.Versioned {
	if len(versions) == 0 {
		return nil
	}

	ordered := append([]storage.Versioned(nil), versions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if c := bytes.Compare(ordered[i].Value, ordered[j].Value); c != 0 {
			return c < 0
		}
		return ordered[i].VClock().String() < ordered[j].VClock().String()
	})

	var winners []storage.Versioned
	for i, v := range ordered {
		discard := false
		for j, other := range ordered {
			if i == j {
				continue
			}
			switch v.VClock().Compare(other.VClock()) {
			case clock.Before:
				discard = true
			case clock.Equal:
				// Keep only the first of an equal pair in the sorted order.
				if j < i {
					discard = true
				}
			}
			if discard {
				break
			}
		}
		if !discard {
			winners = append(winners, v)
		}
	}
	return winners
}

// Reconcile resolves the versions returned by a set of replicas and records
// which replica returned a dominated version. replicas must correspond 1:1
// with versions; replicas that returned nothing are simply absent from both.
func Reconcile(versions []storage.Versioned, replicas []clock.NodeID) Result {
	result := Result{
		Winners: Resolve(versions),
		Stale:   make(map[clock.NodeID]storage.Versioned),
	}
	if len(replicas) != len(versions) {
		return result
	}

	for i, v := range versions {
		for _, w := range result.Winners {
			if v.VClock().Compare(w.VClock()) == clock.Before {
				result.Stale[replicas[i]] = v
				break
			}
		}
	}
	return result
}
