package registry

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"dynastore/internal/clock"
	"dynastore/internal/storage"
)

var (
	// ErrAlreadyRegistered is returned when an add targets a name (or
	// name+node) that is already registered. It signals an assembly bug and
	// is never retriable: topology is built once at startup or during a
	// controlled rebalance, never silently replaced.
	ErrAlreadyRegistered = errors.New("already initialized")

	// ErrHandoffNotSet is returned by HandoffStore before a handoff engine
	// has been set. Callers treat it as "hinted handoff unavailable".
	ErrHandoffNotSet = errors.New("handoff store has not been set")
)

// nodeKey addresses stores that exist per (store name, remote node).
type nodeKey struct {
	name string
	node clock.NodeID
}

// StoreRepository is the process-wide registry of every store handle keys
// flow through: storage engines (the lowest level of the chain, iterable),
// local stores (reachable without network hops, possibly wrapped), routed
// stores (fanning one logical operation out to replicas), node stores
// (direct connections to one store on one remote node), redirecting stores
// (node stores layered to forward requests during a rebalance), and the one
// deferred-write engine hints are parked in.
//
// A store may appear under several categories wrapped differently; the
// categories are distinct namespaces. Lookups vastly outnumber
// registrations, so a single RWMutex over plain maps serves: every mutation
// is visible to all lookups that start after it returns, and concurrent adds
// for the same key cannot both succeed.
type StoreRepository struct {
	logger *zap.Logger

	mu          sync.RWMutex
	local       map[string]storage.Store
	engines     map[string]storage.StorageEngine
	routed      map[string]storage.Store
	node        map[nodeKey]storage.Store
	redirecting map[nodeKey]storage.Store
	handoff     storage.StorageEngine
}

// New creates an empty repository. A nil logger falls back to the global one.
func New(logger *zap.Logger) *StoreRepository {
	if logger == nil {
		logger = zap.L()
	}
	return &StoreRepository{
		logger:      logger,
		local:       make(map[string]storage.Store),
		engines:     make(map[string]storage.StorageEngine),
		routed:      make(map[string]storage.Store),
		node:        make(map[nodeKey]storage.Store),
		redirecting: make(map[nodeKey]storage.Store),
	}
}

// --- local stores ---

func (r *StoreRepository) HasLocalStore(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.local[name]
	return ok
}

func (r *StoreRepository) LocalStore(name string) (storage.Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.local[name]
	return s, ok
}

func (r *StoreRepository) AddLocalStore(s storage.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.local[s.Name()]; ok {
		return fmt.Errorf("local store %q: %w", s.Name(), ErrAlreadyRegistered)
	}
	r.local[s.Name()] = s
	return nil
}

func (r *StoreRepository) RemoveLocalStore(name string) (storage.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.local[name]
	delete(r.local, name)
	return s, ok
}

func (r *StoreRepository) AllLocalStores() []storage.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.Store, 0, len(r.local))
	for _, s := range r.local {
		out = append(out, s)
	}
	return out
}

// --- storage engines ---

func (r *StoreRepository) HasStorageEngine(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.engines[name]
	return ok
}

func (r *StoreRepository) StorageEngine(name string) (storage.StorageEngine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	return e, ok
}

func (r *StoreRepository) AddStorageEngine(e storage.StorageEngine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[e.Name()]; ok {
		return fmt.Errorf("storage engine %q: %w", e.Name(), ErrAlreadyRegistered)
	}
	r.engines[e.Name()] = e
	return nil
}

func (r *StoreRepository) RemoveStorageEngine(name string) (storage.StorageEngine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.engines[name]
	delete(r.engines, name)
	return e, ok
}

func (r *StoreRepository) AllStorageEngines() []storage.StorageEngine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.StorageEngine, 0, len(r.engines))
	for _, e := range r.engines {
		out = append(out, e)
	}
	return out
}

// StorageEnginesMatching returns every registered engine the predicate
// accepts. Maintenance and repair jobs use it to operate uniformly on all
// engines of one backend kind.
func (r *StoreRepository) StorageEnginesMatching(pred func(storage.StorageEngine) bool) []storage.StorageEngine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []storage.StorageEngine
	for _, e := range r.engines {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// --- routed stores ---

func (r *StoreRepository) HasRoutedStore(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routed[name]
	return ok
}

func (r *StoreRepository) RoutedStore(name string) (storage.Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.routed[name]
	return s, ok
}

func (r *StoreRepository) AddRoutedStore(s storage.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.routed[s.Name()]; ok {
		return fmt.Errorf("routed store %q: %w", s.Name(), ErrAlreadyRegistered)
	}
	r.routed[s.Name()] = s
	return nil
}

func (r *StoreRepository) RemoveRoutedStore(name string) (storage.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.routed[name]
	delete(r.routed, name)
	return s, ok
}

func (r *StoreRepository) AllRoutedStores() []storage.Store {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.Store, 0, len(r.routed))
	for _, s := range r.routed {
		out = append(out, s)
	}
	return out
}

// --- node stores ---

func (r *StoreRepository) HasNodeStore(name string, node clock.NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.node[nodeKey{name, node}]
	return ok
}

func (r *StoreRepository) NodeStore(name string, node clock.NodeID) (storage.Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.node[nodeKey{name, node}]
	return s, ok
}

func (r *StoreRepository) AddNodeStore(node clock.NodeID, s storage.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nodeKey{s.Name(), node}
	if _, ok := r.node[key]; ok {
		return fmt.Errorf("node store %q for node %d: %w", s.Name(), node, ErrAlreadyRegistered)
	}
	r.node[key] = s
	return nil
}

func (r *StoreRepository) RemoveNodeStore(name string, node clock.NodeID) (storage.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nodeKey{name, node}
	s, ok := r.node[key]
	delete(r.node, key)
	return s, ok
}

// NodeStoreEntry pairs a node store with the node it connects to.
type NodeStoreEntry struct {
	Node  clock.NodeID
	Store storage.Store
}

func (r *StoreRepository) AllNodeStores() []NodeStoreEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeStoreEntry, 0, len(r.node))
	for k, s := range r.node {
		out = append(out, NodeStoreEntry{Node: k.node, Store: s})
	}
	return out
}

// --- redirecting stores ---

func (r *StoreRepository) HasRedirectingStore(name string, node clock.NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.redirecting[nodeKey{name, node}]
	return ok
}

func (r *StoreRepository) RedirectingStore(name string, node clock.NodeID) (storage.Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.redirecting[nodeKey{name, node}]
	return s, ok
}

func (r *StoreRepository) AddRedirectingStore(node clock.NodeID, s storage.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nodeKey{s.Name(), node}
	if _, ok := r.redirecting[key]; ok {
		return fmt.Errorf("redirecting store %q for node %d: %w", s.Name(), node, ErrAlreadyRegistered)
	}
	r.redirecting[key] = s
	return nil
}

func (r *StoreRepository) RemoveRedirectingStore(name string, node clock.NodeID) (storage.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := nodeKey{name, node}
	s, ok := r.redirecting[key]
	delete(r.redirecting, key)
	return s, ok
}

func (r *StoreRepository) AllRedirectingStores() []NodeStoreEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeStoreEntry, 0, len(r.redirecting))
	for k, s := range r.redirecting {
		out = append(out, NodeStoreEntry{Node: k.node, Store: s})
	}
	return out
}

// --- deferred-write (handoff) store ---

func (r *StoreRepository) HasHandoffStore() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handoff != nil
}

// HandoffStore returns the engine holding hints for unreachable replicas, or
// ErrHandoffNotSet before SetHandoffStore has run.
func (r *StoreRepository) HandoffStore() (storage.StorageEngine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.handoff == nil {
		return nil, ErrHandoffNotSet
	}
	return r.handoff, nil
}

// SetHandoffStore assigns the process-wide handoff engine. Normally called
// exactly once during startup; replacing an existing engine is an
// administrative override and is logged as such.
func (r *StoreRepository) SetHandoffStore(e storage.StorageEngine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handoff != nil {
		r.logger.Warn("replacing handoff store",
			zap.String("previous", r.handoff.Name()),
			zap.String("next", e.Name()))
	}
	r.handoff = e
}
