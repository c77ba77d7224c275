package handoff

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dynastore/internal/metrics"
	"dynastore/internal/registry"
	"dynastore/internal/storage"
)

// Recorder parks undeliverable writes in the repository's handoff engine.
type Recorder struct {
	repo    *registry.StoreRepository
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRecorder creates a recorder writing through repo's handoff store.
func NewRecorder(repo *registry.StoreRepository, logger *zap.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = zap.L()
	}
	return &Recorder{repo: repo, logger: logger, metrics: m, now: time.Now}
}

// Record stores the hint, keeping only the newest version per (node, store,
// key) slot: a hint whose clock is at or before the parked one is dropped
// silently, since the parked write already covers it. Returns
// registry.ErrHandoffNotSet when no handoff engine is configured; callers
// treat that as hinted handoff being unavailable, not as a crash.
func (r *Recorder) Record(ctx context.Context, h Hint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	engine, err := r.repo.HandoffStore()
	if err != nil {
		return err
	}

	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt == 0 {
		h.CreatedAt = r.now().UnixMilli()
	}

	encoded, err := encodeHint(h)
	if err != nil {
		return err
	}

	err = engine.Put(h.slotKey(), storage.Versioned{Value: encoded, Clock: h.Version.Clock})
	if errors.Is(err, storage.ErrObsoleteVersion) {
		// A newer write for the same slot is already parked.
		return nil
	}
	if err != nil {
		return err
	}

	r.metrics.HintRecorded()
	r.logger.Debug("recorded handoff hint",
		zap.String("hint", h.ID),
		zap.String("store", h.Store),
		zap.Int32("node", int32(h.Node)))
	return nil
}
