package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlaspay/backend/internal/models"
	"github.com/atlaspay/backend/internal/payments"
)

const sweepBatch = 100

// Sweeper periodically demotes stale PENDING orders to TIMEOUT directly
// against the payment store. It backstops the in-memory pending index (whose
// timers are lost on restart) and is the sole timeout path when the pending
// index runs on Redis.
type Sweeper struct {
	store    payments.Store
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper. ttl is the pending-order TTL; interval is how
// often stale records are scanned.
func NewSweeper(store payments.Store, ttl, interval time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{store: store, ttl: ttl, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep marks one batch of stale PENDING records TIMEOUT. The upsert is
// idempotent, so racing the in-memory index timers (or another instance's
// sweeper) is harmless.
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	stale, err := s.store.FindStalePending(ctx, cutoff, sweepBatch)
	if err != nil {
		s.logger.Error("stale pending scan failed", zap.Error(err))
		return
	}
	for _, rec := range stale {
		if err := s.store.UpsertStatus(ctx, rec.OrderID, models.StatusTimeout, models.ProviderIDs{}); err != nil {
			s.logger.Error("timeout write failed",
				zap.String("order_id", rec.OrderID),
				zap.String("status", string(models.StatusTimeout)),
				zap.Error(err))
			continue
		}
		s.logger.Info("stale pending order timed out",
			zap.String("order_id", rec.OrderID),
			zap.Time("created_at", rec.CreatedAt))
	}
}
