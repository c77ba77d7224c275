package node

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"dynastore/internal/config"
	"dynastore/internal/handoff"
	"dynastore/internal/metrics"
	"dynastore/internal/registry"
	"dynastore/internal/routed"
	"dynastore/internal/storage"
)

// Options carries the collaborators assembly wires into the stores it
// builds.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Pick, when set, enables a routed store per configured store. Replica
	// selection stays with the partitioning layer that provides it.
	Pick routed.ReplicaPicker
}

// Assemble builds the node's store topology from its configuration: one
// storage engine and one local versioned store per declared store, the
// handoff engine when enabled, and, given a replica picker, one routed store
// per declared store. Registration failures abort assembly, since a
// duplicate registration means the configuration itself is broken.
//
// Node and redirecting stores are registered later by the transport and
// rebalancing layers, which own the connections they wrap.
func Assemble(cfg *config.Config, opts Options) (*registry.StoreRepository, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}

	repo := registry.New(logger)
	var opened []storage.StorageEngine
	fail := func(err error) (*registry.StoreRepository, error) {
		for _, e := range opened {
			if cerr := e.Close(); cerr != nil {
				logger.Warn("closing engine during failed assembly",
					zap.String("store", e.Name()), zap.Error(cerr))
			}
		}
		return nil, err
	}

	for _, def := range cfg.Stores {
		engine, err := openEngine(def.Engine, cfg.DataDir, def.Name, "")
		if err != nil {
			return fail(fmt.Errorf("store %q: %w", def.Name, err))
		}
		opened = append(opened, engine)

		if err := repo.AddStorageEngine(engine); err != nil {
			return fail(err)
		}
		local := storage.NewVersionedStore(engine, cfg.NodeID, cfg.MaxClockEntries)
		if err := repo.AddLocalStore(local); err != nil {
			return fail(err)
		}
		logger.Info("store assembled",
			zap.String("store", def.Name),
			zap.String("engine", def.Engine))
	}

	if cfg.Handoff.Enabled {
		engine, err := openEngine(cfg.Handoff.Engine, cfg.DataDir, "handoff", cfg.Handoff.Path)
		if err != nil {
			return fail(fmt.Errorf("handoff store: %w", err))
		}
		opened = append(opened, engine)
		repo.SetHandoffStore(engine)
	}

	registered := len(cfg.Stores) * 2 // one engine and one local store each
	if cfg.Handoff.Enabled {
		registered++
	}

	if opts.Pick != nil {
		var recorder *handoff.Recorder
		if cfg.Handoff.Enabled {
			recorder = handoff.NewRecorder(repo, logger, opts.Metrics)
		}
		for _, def := range cfg.Stores {
			local, _ := repo.LocalStore(def.Name)
			rs := routed.New(routed.Config{
				Name:     def.Name,
				Self:     cfg.NodeID,
				Local:    local.(*storage.VersionedStore),
				Repo:     repo,
				Pick:     opts.Pick,
				Recorder: recorder,
				Logger:   logger,
				Metrics:  opts.Metrics,
			})
			if err := repo.AddRoutedStore(rs); err != nil {
				return fail(err)
			}
			registered++
		}
	}

	opts.Metrics.SetRegisteredStores(registered)
	return repo, nil
}

// openEngine creates the backing engine for one store. Bolt files live under
// dataDir unless an explicit path overrides that.
func openEngine(kind, dataDir, name, path string) (storage.StorageEngine, error) {
	switch storage.Kind(kind) {
	case storage.KindMemory:
		return storage.NewMemoryEngine(name), nil
	case storage.KindBolt:
		if path == "" {
			path = filepath.Join(dataDir, name+".db")
		}
		return storage.OpenBolt(path, name)
	default:
		return nil, fmt.Errorf("unknown engine kind %q", kind)
	}
}
