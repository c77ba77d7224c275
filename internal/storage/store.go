package storage

import (
	"bytes"
	"errors"
	"fmt"

	"dynastore/internal/clock"
)

// Kind tags the storage backend a store is built on. The registry's
// predicate-based engine lookup classifies engines by Kind rather than by
// runtime type.
type Kind string

const (
	// KindMemory marks stores backed by the in-process ordered map.
	KindMemory Kind = "memory"
	// KindBolt marks stores backed by a bbolt file.
	KindBolt Kind = "bolt"
	// KindRouted marks stores that fan operations out to replicas rather
	// than persisting anything themselves.
	KindRouted Kind = "routed"
)

// ErrObsoleteVersion is returned by Put when the incoming version is causally
// at or before a version the store already holds. The write carries no new
// information and must be discarded by the caller.
var ErrObsoleteVersion = errors.New("obsolete version")

// Versioned pairs an opaque value with exactly one vector clock.
type Versioned struct {
	Value []byte
	Clock *clock.VectorClock
}

// VClock returns the version's clock, substituting an empty clock for nil so
// an unstamped value compares as causally first.
func (v Versioned) VClock() *clock.VectorClock {
	if v.Clock == nil {
		return clock.New()
	}
	return v.Clock
}

// Equal reports whether two versioned values carry the same bytes and the
// same causal state.
func (v Versioned) Equal(other Versioned) bool {
	return bytes.Equal(v.Value, other.Value) && v.VClock().Equal(other.VClock())
}

// Store is the minimal capability a registered store handle exposes: a name
// (the registry key), a backend kind, and a versioned read/write surface.
// Get returns the key's current sibling set, which is pairwise concurrent.
type Store interface {
	Name() string
	Kind() Kind
	Get(key []byte) ([]Versioned, error)
	Put(key []byte, v Versioned) error
	// Delete removes every sibling at or before the given clock; a nil clock
	// removes them all. Reports whether anything was removed.
	Delete(key []byte, at *clock.VectorClock) (bool, error)
	Close() error
}

// Entry is one key and its sibling set, produced by engine iteration.
type Entry struct {
	Key      []byte
	Versions []Versioned
}

// EntryIterator walks a snapshot of an engine's contents. Callers must Close
// it and check Err after Next returns false.
type EntryIterator interface {
	Next() bool
	Entry() Entry
	Err() error
	Close() error
}

// StorageEngine is the lowest level of the storage chain: a Store that can
// additionally iterate over everything it holds, for maintenance jobs and
// hint replay.
type StorageEngine interface {
	Store
	Entries() (EntryIterator, error)
}

// updateSiblings folds an incoming version into an existing sibling set.
// Siblings the incoming version dominates are superseded; if any sibling is
// at or after the incoming version the write fails with ErrObsoleteVersion
// and the set is unchanged.
func updateSiblings(existing []Versioned, incoming Versioned) ([]Versioned, error) {
	out := make([]Versioned, 0, len(existing)+1)
	for _, v := range existing {
		switch incoming.VClock().Compare(v.VClock()) {
		case clock.Before, clock.Equal:
			return nil, fmt.Errorf("version %s at or before stored %s: %w",
				incoming.VClock(), v.VClock(), ErrObsoleteVersion)
		case clock.After:
			// superseded, drop
		default:
			out = append(out, v)
		}
	}
	return append(out, incoming), nil
}

// deleteSiblings removes every sibling at or before the given clock. A nil
// clock removes all of them.
func deleteSiblings(existing []Versioned, at *clock.VectorClock) (kept []Versioned, removed bool) {
	if at == nil {
		return nil, len(existing) > 0
	}
	for _, v := range existing {
		if v.VClock().Compare(at).AtOrBefore() {
			removed = true
			continue
		}
		kept = append(kept, v)
	}
	return kept, removed
}

func copyVersions(versions []Versioned) []Versioned {
	if versions == nil {
		return nil
	}
	out := make([]Versioned, len(versions))
	for i, v := range versions {
		out[i] = Versioned{
			Value: append([]byte(nil), v.Value...),
			Clock: v.Clock, // clocks are immutable, safe to share
		}
	}
	return out
}
