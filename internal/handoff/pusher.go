package handoff

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dynastore/internal/metrics"
	"dynastore/internal/registry"
	"dynastore/internal/storage"
)

// DefaultPushInterval is how often the pusher scans for parked hints.
const DefaultPushInterval = 30 * time.Second

// DefaultDeliveryTimeout bounds one delivery attempt to a replica. A
// destination that stalls past it keeps its hint for the next pass.
const DefaultDeliveryTimeout = 2 * time.Second

// Pusher replays parked hints to their destination replicas. Delivery is
// best effort: failures are counted and logged, never retried within a pass,
// and a hint survives until a pass delivers it.
type Pusher struct {
	repo     *registry.StoreRepository
	logger   *zap.Logger
	metrics  *metrics.Metrics
	interval time.Duration
	timeout  time.Duration
}

// NewPusher creates a pusher over repo's handoff store. interval <= 0 uses
// DefaultPushInterval.
func NewPusher(repo *registry.StoreRepository, logger *zap.Logger, m *metrics.Metrics, interval time.Duration) *Pusher {
	if logger == nil {
		logger = zap.L()
	}
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	return &Pusher{
		repo:     repo,
		logger:   logger,
		metrics:  m,
		interval: interval,
		timeout:  DefaultDeliveryTimeout,
	}
}

// Run replays hints on every interval tick until ctx is canceled.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered, failed, err := p.PushOnce(ctx)
			if err != nil {
				p.logger.Warn("handoff pass aborted", zap.Error(err))
				continue
			}
			if delivered > 0 || failed > 0 {
				p.logger.Info("handoff pass finished",
					zap.Int("delivered", delivered),
					zap.Int("failed", failed))
			}
		}
	}
}

// PushOnce scans the handoff engine once and attempts to deliver every
// parked hint. A hint is deleted only when delivery succeeded and the slot
// still holds the delivered version, so a write parked mid-pass is never
// lost. Returns registry.ErrHandoffNotSet when handoff is not configured.
func (p *Pusher) PushOnce(ctx context.Context) (delivered, failed int, err error) {
	engine, err := p.repo.HandoffStore()
	if err != nil {
		return 0, 0, err
	}

	it, err := engine.Entries()
	if err != nil {
		return 0, 0, err
	}
	defer it.Close()

	outstanding := 0
	for it.Next() {
		if ctx.Err() != nil {
			return delivered, failed, ctx.Err()
		}
		entry := it.Entry()
		for _, version := range entry.Versions {
			hint, decodeErr := decodeHint(version.Value)
			if decodeErr != nil {
				failed++
				p.logger.Error("undecodable hint dropped",
					zap.ByteString("slot", entry.Key),
					zap.Error(decodeErr))
				if _, delErr := engine.Delete(entry.Key, version.Clock); delErr != nil {
					p.logger.Error("dropping hint failed", zap.Error(delErr))
				}
				continue
			}

			if p.deliver(ctx, hint) {
				delivered++
				p.metrics.HintReplayed()
				// Remove the hint unless a newer one took the slot meanwhile.
				if _, delErr := engine.Delete(hint.slotKey(), hint.Version.Clock); delErr != nil {
					p.logger.Error("delivered hint not removed",
						zap.String("hint", hint.ID),
						zap.Error(delErr))
				}
			} else {
				failed++
				outstanding++
				p.metrics.HintFailed()
			}
		}
	}
	if err := it.Err(); err != nil {
		return delivered, failed, err
	}

	p.metrics.SetHandoffDepth(outstanding)
	return delivered, failed, nil
}

// deliver writes the hint through the destination's store handle, preferring
// a redirecting store when the topology is mid-rebalance. Each attempt is
// bounded by the delivery timeout; a stalled destination is abandoned and
// counted as a failure.
func (p *Pusher) deliver(ctx context.Context, h Hint) bool {
	target, ok := p.repo.RedirectingStore(h.Store, h.Node)
	if !ok {
		target, ok = p.repo.NodeStore(h.Store, h.Node)
	}
	if !ok {
		p.logger.Warn("no store handle for hint destination",
			zap.String("hint", h.ID),
			zap.String("store", h.Store),
			zap.Int32("node", int32(h.Node)))
		return false
	}

	attempt, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- target.Put(h.Key, h.Version) }()
	var err error
	select {
	case err = <-done:
	case <-attempt.Done():
		err = attempt.Err()
	}
	if errors.Is(err, storage.ErrObsoleteVersion) {
		// The destination caught up by other means; the hint is moot.
		return true
	}
	if err != nil {
		p.logger.Warn("hint delivery failed",
			zap.String("hint", h.ID),
			zap.String("store", h.Store),
			zap.Int32("node", int32(h.Node)),
			zap.Error(err))
		return false
	}
	return true
}
