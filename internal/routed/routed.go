package routed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dynastore/internal/clock"
	"dynastore/internal/handoff"
	"dynastore/internal/metrics"
	"dynastore/internal/registry"
	"dynastore/internal/repair"
	"dynastore/internal/storage"
)

// ReplicaPicker names the replicas responsible for a key. Partition
// ownership is decided above this core and injected here.
type ReplicaPicker func(key []byte) []clock.NodeID

// DefaultPerReplicaTimeout bounds one call to a remote replica's store
// handle. A replica that stalls past it is treated as unreachable.
const DefaultPerReplicaTimeout = 2 * time.Second

// Config assembles a routed store.
type Config struct {
	Name     string
	Self     clock.NodeID
	Local    *storage.VersionedStore
	Repo     *registry.StoreRepository
	Pick     ReplicaPicker
	Recorder *handoff.Recorder // nil disables hinted handoff
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// Timeout bounds each remote replica call. Zero or negative means
	// DefaultPerReplicaTimeout.
	Timeout time.Duration
}

// RoutedStore fans one logical operation out to the key's replicas. Writes
// are stamped by the local versioned store, then pushed to each remote
// replica's store handle; a replica that cannot be reached gets its write
// parked as a hint. Reads collect every replica's siblings, resolve them to
// the causally maximal set, and converge stale replicas in the background.
type RoutedStore struct {
	name    string
	self    clock.NodeID
	local   *storage.VersionedStore
	repo    *registry.StoreRepository
	pick    ReplicaPicker
	hints   *handoff.Recorder
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

var _ storage.Store = (*RoutedStore)(nil)

// New creates a routed store from the given configuration.
func New(cfg Config) *RoutedStore {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultPerReplicaTimeout
	}
	return &RoutedStore{
		name:    cfg.Name,
		self:    cfg.Self,
		local:   cfg.Local,
		repo:    cfg.Repo,
		pick:    cfg.Pick,
		hints:   cfg.Recorder,
		logger:  logger.With(zap.String("store", cfg.Name)),
		metrics: cfg.Metrics,
		timeout: timeout,
		now:     time.Now,
	}
}

func (s *RoutedStore) Name() string { return s.name }

func (s *RoutedStore) Kind() storage.Kind { return storage.KindRouted }

// Put stamps the write and fans it out to every replica of the key. Remote
// replicas that cannot be reached get the write parked as a hint. The write
// fails only when the local stamp is obsolete or no replica accepted it.
func (s *RoutedStore) Put(key []byte, v storage.Versioned) error {
	replicas := s.pick(key)
	if len(replicas) == 0 {
		return fmt.Errorf("store %q: no replicas for key", s.name)
	}

	stamped := v.VClock()
	acked := 0
	isReplica := false
	for _, node := range replicas {
		if node == s.self {
			isReplica = true
			break
		}
	}

	if isReplica {
		fresh, err := s.local.Apply(key, v)
		if err != nil {
			if errors.Is(err, storage.ErrObsoleteVersion) {
				s.metrics.ObsoleteWrite()
			}
			return fmt.Errorf("store %q: local write: %w", s.name, err)
		}
		stamped = fresh
		acked++
	} else {
		stamped = stamped.Incremented(s.self, s.now())
	}

	out := storage.Versioned{Value: v.Value, Clock: stamped}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, node := range replicas {
		if node == s.self {
			continue
		}
		wg.Add(1)
		go func(node clock.NodeID) {
			defer wg.Done()
			if s.putReplica(node, key, out) {
				mu.Lock()
				acked++
				mu.Unlock()
			}
		}(node)
	}
	wg.Wait()

	if acked == 0 {
		return fmt.Errorf("store %q: no replica accepted the write", s.name)
	}
	return nil
}

// remotePut writes to target under the per-replica deadline. The store
// handle interface carries no context, so a call that outlives the deadline
// is abandoned; its goroutine ends whenever the handle returns.
func (s *RoutedStore) remotePut(target storage.Store, key []byte, v storage.Versioned) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- target.Put(key, v) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remoteGet reads from target under the per-replica deadline.
func (s *RoutedStore) remoteGet(target storage.Store, key []byte) ([]storage.Versioned, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	type reply struct {
		versions []storage.Versioned
		err      error
	}
	done := make(chan reply, 1)
	go func() {
		versions, err := target.Get(key)
		done <- reply{versions: versions, err: err}
	}()
	select {
	case r := <-done:
		return r.versions, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// remoteDelete deletes on target under the per-replica deadline.
func (s *RoutedStore) remoteDelete(target storage.Store, key []byte, at *clock.VectorClock) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	type reply struct {
		removed bool
		err     error
	}
	done := make(chan reply, 1)
	go func() {
		removed, err := target.Delete(key, at)
		done <- reply{removed: removed, err: err}
	}()
	select {
	case r := <-done:
		return r.removed, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// putReplica writes to one remote replica, parking a hint on failure or
// timeout. Reports whether the replica is covered (written, already current,
// or hinted).
func (s *RoutedStore) putReplica(node clock.NodeID, key []byte, v storage.Versioned) bool {
	target, ok := s.storeFor(node)
	if ok {
		err := s.remotePut(target, key, v)
		if err == nil {
			return true
		}
		if errors.Is(err, storage.ErrObsoleteVersion) {
			// Replica already holds something at or past this write.
			return true
		}
		s.logger.Warn("replica write failed",
			zap.Int32("node", int32(node)),
			zap.Error(err))
	}

	if s.hints == nil {
		return false
	}
	// The handoff engine is local; give the hint its own deadline rather
	// than whatever the failed replica call left over.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.hints.Record(ctx, handoff.Hint{Store: s.name, Node: node, Key: key, Version: v})
	if err != nil {
		s.logger.Warn("hint not recorded",
			zap.Int32("node", int32(node)),
			zap.Error(err))
		return false
	}
	return true
}

// Get collects every replica's siblings, resolves them to the causally
// maximal set, and kicks off background repair of stale replicas. A
// multi-version result is a conflict the caller must reconcile.
func (s *RoutedStore) Get(key []byte) ([]storage.Versioned, error) {
	replicas := s.pick(key)
	if len(replicas) == 0 {
		return nil, fmt.Errorf("store %q: no replicas for key", s.name)
	}

	type response struct {
		node     clock.NodeID
		versions []storage.Versioned
		err      error
	}
	responses := make([]response, len(replicas))

	var wg sync.WaitGroup
	for i, node := range replicas {
		wg.Add(1)
		go func(i int, node clock.NodeID) {
			defer wg.Done()
			responses[i].node = node
			if node == s.self {
				responses[i].versions, responses[i].err = s.local.Get(key)
				return
			}
			target, ok := s.storeFor(node)
			if !ok {
				responses[i].err = fmt.Errorf("no store handle for node %d", node)
				return
			}
			responses[i].versions, responses[i].err = s.remoteGet(target, key)
		}(i, node)
	}
	wg.Wait()

	var versions []storage.Versioned
	var ids []clock.NodeID
	reached := 0
	for _, resp := range responses {
		if resp.err != nil {
			s.logger.Debug("replica read failed",
				zap.Int32("node", int32(resp.node)),
				zap.Error(resp.err))
			continue
		}
		reached++
		for _, v := range resp.versions {
			versions = append(versions, v)
			ids = append(ids, resp.node)
		}
	}
	if reached == 0 {
		return nil, fmt.Errorf("store %q: no replica reachable", s.name)
	}

	result := repair.Reconcile(versions, ids)
	if result.HasConflict() {
		s.metrics.ConflictDetected()
	}
	if len(result.Stale) > 0 {
		go s.repairStale(key, result)
	}
	return result.Winners, nil
}

// repairStale converges replicas that returned dominated versions by writing
// the winners to them with their exact clocks. Fire and forget: failures are
// logged, never retried here.
func (s *RoutedStore) repairStale(key []byte, result repair.Result) {
	repaired, failed := 0, 0
	for node := range result.Stale {
		for _, winner := range result.Winners {
			var err error
			if node == s.self {
				err = s.local.PutRepair(key, winner)
			} else if target, ok := s.storeFor(node); ok {
				err = s.remotePut(target, key, winner)
			} else {
				err = fmt.Errorf("no store handle for node %d", node)
			}
			if err != nil && !errors.Is(err, storage.ErrObsoleteVersion) {
				failed++
				s.logger.Warn("read repair failed",
					zap.Int32("node", int32(node)),
					zap.Error(err))
				continue
			}
			repaired++
		}
	}
	s.logger.Debug("read repair finished",
		zap.Int("repaired", repaired),
		zap.Int("failed", failed))
}

// Delete removes siblings at or before the given clock on every replica,
// best effort.
func (s *RoutedStore) Delete(key []byte, at *clock.VectorClock) (bool, error) {
	replicas := s.pick(key)
	if len(replicas) == 0 {
		return false, fmt.Errorf("store %q: no replicas for key", s.name)
	}

	removed := false
	reached := 0
	for _, node := range replicas {
		var rm bool
		var err error
		if node == s.self {
			rm, err = s.local.Delete(key, at)
		} else if target, ok := s.storeFor(node); ok {
			rm, err = s.remoteDelete(target, key, at)
		} else {
			err = fmt.Errorf("no store handle for node %d", node)
		}
		if err != nil {
			s.logger.Warn("replica delete failed",
				zap.Int32("node", int32(node)),
				zap.Error(err))
			continue
		}
		reached++
		removed = removed || rm
	}
	if reached == 0 {
		return false, fmt.Errorf("store %q: no replica reachable", s.name)
	}
	return removed, nil
}

// Close releases nothing: the replica handles belong to the repository.
func (s *RoutedStore) Close() error { return nil }

// storeFor resolves the handle for one remote replica, preferring the
// redirecting store while a rebalance is forwarding this node's traffic.
func (s *RoutedStore) storeFor(node clock.NodeID) (storage.Store, bool) {
	if target, ok := s.repo.RedirectingStore(s.name, node); ok {
		return target, true
	}
	return s.repo.NodeStore(s.name, node)
}
