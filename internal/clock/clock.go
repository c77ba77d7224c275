package clock

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NodeID identifies the replica that mastered a write.
type NodeID int32

// Occurrence classifies the causal relationship between two vector clocks.
type Occurrence int

const (
	// Before indicates this clock causally precedes the other.
	Before Occurrence = iota
	// After indicates this clock causally succeeds the other.
	After
	// Concurrent indicates neither clock dominates the other.
	Concurrent
	// Equal indicates the clocks carry identical counters.
	Equal
)

// String returns a human-readable name for the occurrence.
func (o Occurrence) String() string {
	switch o {
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	case Equal:
		return "equal"
	default:
		return fmt.Sprintf("occurrence(%d)", int(o))
	}
}

// AtOrBefore reports whether the left-hand clock of the comparison may be
// discarded in favor of the right-hand one. Equal counts: a duplicate version
// carries no information its twin lacks.
func (o Occurrence) AtOrBefore() bool {
	return o == Before || o == Equal
}

type entry struct {
	counter uint64
	updated int64 // wall-clock millis of this entry's last advance
}

// Entry is the exported form of a single clock component, used for
// serialization and inspection. Entries with a zero counter are never stored.
type Entry struct {
	Node    NodeID
	Counter uint64
	Updated int64
}

// VectorClock counts the writes mastered by each replica for one version of a
// key. The vector is stored sparsely since in general a key's writes are
// mastered by few nodes: replicas that never wrote it are implicitly at zero
// and take no space. A clock is immutable once constructed; every advancing
// operation returns a new clock, so a published *VectorClock may be read and
// compared from any number of goroutines without locking.
type VectorClock struct {
	entries   map[NodeID]entry
	timestamp int64 // wall-clock millis of the last mutation, not causal state
}

// New returns an empty clock with a zero timestamp.
func New() *VectorClock {
	return &VectorClock{entries: map[NodeID]entry{}}
}

// NewAt returns an empty clock stamped with the given time.
func NewAt(ts time.Time) *VectorClock {
	return &VectorClock{entries: map[NodeID]entry{}, timestamp: ts.UnixMilli()}
}

// FromEntries builds a clock from explicit components. Zero counters are
// dropped so the sparse invariant holds regardless of input.
func FromEntries(entries []Entry, ts time.Time) *VectorClock {
	vc := &VectorClock{
		entries:   make(map[NodeID]entry, len(entries)),
		timestamp: ts.UnixMilli(),
	}
	for _, e := range entries {
		if e.Counter == 0 {
			continue
		}
		vc.entries[e.Node] = entry{counter: e.Counter, updated: e.Updated}
	}
	return vc
}

func (vc *VectorClock) clone() *VectorClock {
	out := &VectorClock{
		entries:   make(map[NodeID]entry, len(vc.entries)+1),
		timestamp: vc.timestamp,
	}
	for id, e := range vc.entries {
		out.entries[id] = e
	}
	return out
}

// Incremented returns a new clock with the given replica's counter advanced
// by one and the timestamp set to now. The receiver is unchanged. A replica
// calls this exactly once per local write it masters.
func (vc *VectorClock) Incremented(id NodeID, now time.Time) *VectorClock {
	ms := now.UnixMilli()
	out := vc.clone()
	e := out.entries[id]
	out.entries[id] = entry{counter: e.counter + 1, updated: ms}
	out.timestamp = ms
	return out
}

// Counter returns the write count for the given replica, zero if absent.
func (vc *VectorClock) Counter(id NodeID) uint64 {
	return vc.entries[id].counter
}

// Len returns the number of replicas with a nonzero counter.
func (vc *VectorClock) Len() int {
	return len(vc.entries)
}

// Timestamp returns the wall-clock millis of the last mutation. It is a
// diagnostic and takes no part in causal comparison or equality.
func (vc *VectorClock) Timestamp() int64 {
	return vc.timestamp
}

// Compare classifies the causal relationship between two clocks. Replicas
// absent from one side count as zero, consistent with sparse storage.
// Returns:
//   - Equal: all counters identical
//   - Before: every counter here <= the other's, at least one strictly less
//   - After: every counter here >= the other's, at least one strictly greater
//   - Concurrent: each side exceeds the other somewhere; neither dominates
func (vc *VectorClock) Compare(other *VectorClock) Occurrence {
	if vc.Equal(other) {
		return Equal
	}

	var less, greater bool
	for id, e := range vc.entries {
		switch oc := other.counterOrZero(id); {
		case e.counter < oc:
			less = true
		case e.counter > oc:
			greater = true
		}
	}
	if other != nil {
		for id := range other.entries {
			if _, ok := vc.entries[id]; !ok {
				// present there, implicitly zero here
				less = true
				break
			}
		}
	}

	switch {
	case less && !greater:
		return Before
	case greater && !less:
		return After
	default:
		return Concurrent
	}
}

func (vc *VectorClock) counterOrZero(id NodeID) uint64 {
	if vc == nil {
		return 0
	}
	return vc.entries[id].counter
}

// Merged returns a new clock holding the component-wise maximum of both
// clocks, the max of the two timestamps, and for each entry the most recent
// advance time. Used to fold two divergent versions into one superseding
// clock after reconciliation.
func (vc *VectorClock) Merged(other *VectorClock) *VectorClock {
	out := vc.clone()
	if other == nil {
		return out
	}
	for id, oe := range other.entries {
		e, ok := out.entries[id]
		if !ok || oe.counter > e.counter {
			e.counter = oe.counter
		}
		if oe.updated > e.updated {
			e.updated = oe.updated
		}
		out.entries[id] = e
	}
	if other.timestamp > out.timestamp {
		out.timestamp = other.timestamp
	}
	return out
}

// Pruned returns a clock with at most max entries, dropping the entries
// whose last advance is oldest until the cap is met. The entry for keep is
// never dropped. Pruning is lossy: a pruned clock can compare Concurrent
// against a clock it would otherwise dominate, which callers accept as a
// rare availability trade-off rather than a correctness bug.
func (vc *VectorClock) Pruned(max int, keep NodeID) *VectorClock {
	if max <= 0 || len(vc.entries) <= max {
		return vc
	}

	victims := make([]Entry, 0, len(vc.entries))
	for id, e := range vc.entries {
		if id == keep {
			continue
		}
		victims = append(victims, Entry{Node: id, Counter: e.counter, Updated: e.updated})
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].Updated != victims[j].Updated {
			return victims[i].Updated < victims[j].Updated
		}
		return victims[i].Node < victims[j].Node
	})

	out := vc.clone()
	for i := 0; len(out.entries) > max && i < len(victims); i++ {
		delete(out.entries, victims[i].Node)
	}
	return out
}

// Equal reports whether both clocks carry the same entries with the same
// counters. Timestamps are metadata and are excluded.
func (vc *VectorClock) Equal(other *VectorClock) bool {
	if other == nil {
		return len(vc.entries) == 0
	}
	if len(vc.entries) != len(other.entries) {
		return false
	}
	for id, e := range vc.entries {
		if other.entries[id].counter != e.counter {
			return false
		}
	}
	return true
}

// Entries returns a copy of the clock's components sorted by node id.
func (vc *VectorClock) Entries() []Entry {
	out := make([]Entry, 0, len(vc.entries))
	for id, e := range vc.entries {
		out = append(out, Entry{Node: id, Counter: e.counter, Updated: e.updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

// String renders the clock as "{1:2, 2:1}" sorted by node id.
func (vc *VectorClock) String() string {
	entries := vc.Entries()
	if len(entries) == 0 {
		return "{}"
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%d:%d", e.Node, e.Counter)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalBinary encodes the clock as a fixed big-endian record: a uint16
// entry count, each entry as (int32 node, uint64 counter, int64 updated)
// sorted by node id, then the int64 timestamp. The encoding round-trips
// exactly through UnmarshalBinary.
func (vc *VectorClock) MarshalBinary() ([]byte, error) {
	entries := vc.Entries()
	if len(entries) > int(^uint16(0)) {
		return nil, fmt.Errorf("vector clock has %d entries, exceeds encodable maximum", len(entries))
	}

	buf := make([]byte, 2+len(entries)*20+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(entries)))
	off := 2
	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[off:], uint32(e.Node))
		binary.BigEndian.PutUint64(buf[off+4:], e.Counter)
		binary.BigEndian.PutUint64(buf[off+12:], uint64(e.Updated))
		off += 20
	}
	binary.BigEndian.PutUint64(buf[off:], uint64(vc.timestamp))
	return buf, nil
}

// UnmarshalBinary decodes a clock produced by MarshalBinary. It must only be
// called on a freshly constructed clock, never on one already published.
func (vc *VectorClock) UnmarshalBinary(data []byte) error {
	if len(data) < 10 {
		return fmt.Errorf("vector clock encoding too short: %d bytes", len(data))
	}
	n := int(binary.BigEndian.Uint16(data[0:2]))
	want := 2 + n*20 + 8
	if len(data) != want {
		return fmt.Errorf("vector clock encoding is %d bytes, want %d for %d entries", len(data), want, n)
	}

	entries := make(map[NodeID]entry, n)
	off := 2
	for i := 0; i < n; i++ {
		id := NodeID(int32(binary.BigEndian.Uint32(data[off:])))
		c := binary.BigEndian.Uint64(data[off+4:])
		u := int64(binary.BigEndian.Uint64(data[off+12:]))
		if c == 0 {
			return fmt.Errorf("vector clock encoding holds zero counter for node %d", id)
		}
		entries[id] = entry{counter: c, updated: u}
		off += 20
	}
	vc.entries = entries
	vc.timestamp = int64(binary.BigEndian.Uint64(data[off:]))
	return nil
}
