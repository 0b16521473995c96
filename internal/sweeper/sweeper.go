// Package sweeper hosts the two background loops the engine needs to stay
// honest: retention cleanup of old attempt history, and the recovery sweep
// that rescues deliveries a crashed worker or a lost enqueue left behind.
package sweeper

import (
	"context"
	"time"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/delivery"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/queue"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
)

const sweepBatch = 100

type Sweeper struct {
	store store.Store
	queue queue.Publisher
	cfg   config.Engine
	log   *logging.Logger
	now   func() time.Time
}

func New(st store.Store, q queue.Publisher, cfg config.Engine, log *logging.Logger) *Sweeper {
	return &Sweeper{
		store: st,
		queue: q,
		cfg:   cfg,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source for deterministic tests.
func (s *Sweeper) SetClock(now func() time.Time) { s.now = now }

// Run drives both loops until ctx is canceled. Sweep failures are logged
// and retried on the next tick, never fatal.
func (s *Sweeper) Run(ctx context.Context) {
	cleanup := time.NewTicker(s.cfg.CleanupInterval)
	recovery := time.NewTicker(s.cfg.RecoveryInterval)
	defer cleanup.Stop()
	defer recovery.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			if _, _, err := s.SweepRetention(ctx); err != nil {
				s.log.WithContext(ctx).WithError(err).Error("retention sweep failed")
			}
		case <-recovery.C:
			if _, err := s.SweepRecovery(ctx); err != nil {
				s.log.WithContext(ctx).WithError(err).Error("recovery sweep failed")
			}
		}
	}
}

// SweepRetention purges attempts past the retention horizon, then terminal
// deliveries past the same horizon. Only age and terminality are consulted,
// so running concurrently with ingestion and delivery is safe.
func (s *Sweeper) SweepRetention(ctx context.Context) (attempts, deliveries int64, err error) {
	if s.cfg.AttemptRetentionWindow <= 0 {
		return 0, 0, nil // retention disabled
	}
	ctx, span := tracing.StartSpan(ctx, "sweeper.retention")
	defer span.End()

	cutoff := s.now().Add(-s.cfg.AttemptRetentionWindow)
	attempts, err = s.store.PurgeAttempts(ctx, cutoff)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, 0, err
	}
	metrics.RecordSwept("attempts", attempts)

	deliveries, err = s.store.PurgeTerminalDeliveries(ctx, cutoff)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return attempts, 0, err
	}
	metrics.RecordSwept("deliveries", deliveries)

	if attempts > 0 || deliveries > 0 {
		s.log.WithContext(ctx).WithFields(map[string]any{
			"attempts":   attempts,
			"deliveries": deliveries,
			"cutoff":     cutoff.Format(time.RFC3339),
		}).Info("retention sweep purged records")
	}
	return attempts, deliveries, nil
}

// SweepRecovery re-enqueues deliveries no worker will otherwise touch:
// rows stuck in processing past the liveness threshold (crashed worker,
// demoted to retrying first so the claim can succeed again), pending rows
// whose enqueue was lost, and retrying rows orphaned past the maximum
// backoff. At-least-once is preserved because the conditional claim makes
// a duplicate task a no-op.
func (s *Sweeper) SweepRecovery(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "sweeper.recovery")
	defer span.End()

	recovered := 0
	now := s.now()

	stale, err := s.store.StaleProcessing(ctx, now.Add(-s.cfg.ProcessingStaleAfter), sweepBatch)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return 0, err
	}
	for _, d := range stale {
		if err := s.store.FinishDelivery(ctx, d.ID, delivery.StatusRetrying, now); err != nil {
			// Raced with a live worker after all; leave it alone.
			continue
		}
		if err := s.enqueue(ctx, d); err != nil {
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("recovery enqueue failed")
			continue
		}
		s.log.WithContext(ctx).WithDelivery(d.ID).Warn("recovered stale processing delivery")
		recovered++
	}

	pending, err := s.store.StalePending(ctx, now.Add(-s.cfg.PendingStaleAfter), sweepBatch)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return recovered, err
	}
	for _, d := range pending {
		if err := s.enqueue(ctx, d); err != nil {
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("recovery enqueue failed")
			continue
		}
		s.log.WithContext(ctx).WithDelivery(d.ID).Info("re-enqueued unseen pending delivery")
		recovered++
	}

	// A retrying row normally has its delayed message in flight, so the
	// threshold must sit past the maximum backoff before the row counts as
	// orphaned (lost message or failed recovery enqueue).
	retrying, err := s.store.StaleRetrying(ctx, now.Add(-(s.cfg.MaxRetryBackoff + s.cfg.PendingStaleAfter)), sweepBatch)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return recovered, err
	}
	for _, d := range retrying {
		if err := s.enqueue(ctx, d); err != nil {
			s.log.WithContext(ctx).WithDelivery(d.ID).WithError(err).Error("recovery enqueue failed")
			continue
		}
		s.log.WithContext(ctx).WithDelivery(d.ID).Warn("re-enqueued orphaned retrying delivery")
		recovered++
	}

	metrics.RecordRecovered(recovered)
	return recovered, nil
}

func (s *Sweeper) enqueue(ctx context.Context, d store.Delivery) error {
	last, err := s.store.NextAttemptNumber(ctx, d.ID)
	if err != nil {
		return err
	}
	t := delivery.Task{
		DeliveryID:     d.ID,
		SubscriptionID: d.SubscriptionID,
		Attempt:        last - 1,
		EnqueuedAt:     s.now().Format(time.RFC3339),
		TraceHeaders:   tracing.PropagateTraceToTask(ctx),
	}
	// A short deferral spreads recovered load instead of spiking it.
	return s.queue.EnqueueAfter(ctx, t, 5*time.Second)
}
