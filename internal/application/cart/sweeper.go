package cart

import (
	"context"
	"time"

	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// AbandonSweeper periodically flags carts that have been idle past the TTL
// as abandoned. Abandoned is not terminal: the owner's next mutation
// reactivates the cart.
type AbandonSweeper struct {
	carts    cart.Repository
	ttl      time.Duration
	interval time.Duration
	logger   *zap.Logger
	metrics  *telemetry.CartMetrics
}

// NewAbandonSweeper creates a new AbandonSweeper
func NewAbandonSweeper(carts cart.Repository, ttl, interval time.Duration, logger *zap.Logger) *AbandonSweeper {
	return &AbandonSweeper{
		carts:    carts,
		ttl:      ttl,
		interval: interval,
		logger:   logger,
	}
}

// SetCartMetrics sets the business metrics collector
func (s *AbandonSweeper) SetCartMetrics(cm *telemetry.CartMetrics) {
	s.metrics = cm
}

// Run sweeps on the configured interval until the context is cancelled
func (s *AbandonSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("abandon sweeper started",
		zap.Duration("ttl", s.ttl),
		zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("abandon sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("abandon sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce flags every active cart idle since before now minus the TTL and
// returns how many were flagged
func (s *AbandonSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.ttl)
	count, err := s.carts.MarkAbandonedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		if s.metrics != nil {
			s.metrics.RecordAbandoned(ctx, count)
		}
		s.logger.Info("marked idle carts abandoned", zap.Int64("count", count))
	}
	return count, nil
}
