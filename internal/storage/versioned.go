package storage

import (
	"time"

	"dynastore/internal/clock"
)

// VersionedStore decorates a store with the local write path: each Put merges
// the caller's clock with every stored sibling clock, advances this node's
// counter once, and prunes the result to the configured entry cap before
// writing through. This is the store request-serving code reads and writes
// without network hops.
type VersionedStore struct {
	inner      Store
	self       clock.NodeID
	maxEntries int
	now        func() time.Time
}

var _ Store = (*VersionedStore)(nil)

// NewVersionedStore wraps inner for local writes mastered by self. maxEntries
// caps clock growth; zero or negative disables pruning.
func NewVersionedStore(inner Store, self clock.NodeID, maxEntries int) *VersionedStore {
	return &VersionedStore{
		inner:      inner,
		self:       self,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (s *VersionedStore) Name() string { return s.inner.Name() }

func (s *VersionedStore) Kind() Kind { return s.inner.Kind() }

func (s *VersionedStore) Get(key []byte) ([]Versioned, error) {
	return s.inner.Get(key)
}

// Put stamps and stores the value, discarding the resulting clock.
func (s *VersionedStore) Put(key []byte, v Versioned) error {
	_, err := s.Apply(key, v)
	return err
}

// Apply stamps the value with a clock that succeeds both the caller's context
// and everything stored, writes it through, and returns the stamped clock for
// propagation to other replicas.
//
// The read-stamp-write sequence is not atomic across writers; a concurrent
// writer that lands in between makes this write fail with ErrObsoleteVersion
// or produces two concurrent siblings, both of which are correct outcomes.
func (s *VersionedStore) Apply(key []byte, v Versioned) (*clock.VectorClock, error) {
	stamped := v.VClock()

	existing, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	for _, sibling := range existing {
		stamped = stamped.Merged(sibling.VClock())
	}

	stamped = stamped.Incremented(s.self, s.now())
	if s.maxEntries > 0 {
		stamped = stamped.Pruned(s.maxEntries, s.self)
	}

	if err := s.inner.Put(key, Versioned{Value: v.Value, Clock: stamped}); err != nil {
		return nil, err
	}
	return stamped, nil
}

// PutRepair writes a version with its exact clock, no stamping, for read
// repair and hint replay. The underlying sibling update still rejects
// versions the store already dominates.
func (s *VersionedStore) PutRepair(key []byte, v Versioned) error {
	return s.inner.Put(key, v)
}

func (s *VersionedStore) Delete(key []byte, at *clock.VectorClock) (bool, error) {
	return s.inner.Delete(key, at)
}

func (s *VersionedStore) Close() error {
	return s.inner.Close()
}
