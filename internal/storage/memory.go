package storage

import (
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"

	"dynastore/internal/clock"
)

// MemoryEngine is an in-process storage engine holding sibling sets in an
// ordered map, so iteration walks keys in byte order. It is safe for
// concurrent use.
type MemoryEngine struct {
	name string

	mu   sync.RWMutex
	data *treemap.Map // string(key) -> []Versioned
}

var _ StorageEngine = (*MemoryEngine)(nil)

// NewMemoryEngine creates an empty in-memory engine with the given store name.
func NewMemoryEngine(name string) *MemoryEngine {
	return &MemoryEngine{
		name: name,
		data: treemap.NewWith(utils.StringComparator),
	}
}

func (e *MemoryEngine) Name() string { return e.name }

func (e *MemoryEngine) Kind() Kind { return KindMemory }

// Get returns a copy of the key's sibling set, nil if absent.
func (e *MemoryEngine) Get(key []byte) ([]Versioned, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	raw, ok := e.data.Get(string(key))
	if !ok {
		return nil, nil
	}
	return copyVersions(raw.([]Versioned)), nil
}

// Put folds the version into the key's sibling set, failing with
// ErrObsoleteVersion when a stored sibling is at or after it. The update is
// atomic per key.
func (e *MemoryEngine) Put(key []byte, v Versioned) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var existing []Versioned
	if raw, ok := e.data.Get(string(key)); ok {
		existing = raw.([]Versioned)
	}

	updated, err := updateSiblings(existing, Versioned{
		Value: append([]byte(nil), v.Value...),
		Clock: v.Clock,
	})
	if err != nil {
		return err
	}
	e.data.Put(string(key), updated)
	return nil
}

// Delete removes every sibling at or before the given clock (all of them for
// a nil clock) and drops the key once no sibling remains.
func (e *MemoryEngine) Delete(key []byte, at *clock.VectorClock) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	raw, ok := e.data.Get(string(key))
	if !ok {
		return false, nil
	}

	kept, removed := deleteSiblings(raw.([]Versioned), at)
	if !removed {
		return false, nil
	}
	if len(kept) == 0 {
		e.data.Remove(string(key))
	} else {
		e.data.Put(string(key), kept)
	}
	return true, nil
}

// Entries returns an iterator over a point-in-time snapshot of the engine.
func (e *MemoryEngine) Entries() (EntryIterator, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snapshot := make([]Entry, 0, e.data.Size())
	it := e.data.Iterator()
	for it.Next() {
		snapshot = append(snapshot, Entry{
			Key:      []byte(it.Key().(string)),
			Versions: copyVersions(it.Value().([]Versioned)),
		})
	}
	return &sliceIterator{entries: snapshot}, nil
}

func (e *MemoryEngine) Close() error { return nil }

// sliceIterator iterates an in-memory snapshot. Shared by the memory and
// bolt engines.
type sliceIterator struct {
	entries []Entry
	pos     int
	current Entry
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.entries) {
		return false
	}
	it.current = it.entries[it.pos]
	it.pos++
	return true
}

func (it *sliceIterator) Entry() Entry { return it.current }

func (it *sliceIterator) Err() error { return nil }

func (it *sliceIterator) Close() error { return nil }
