// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// CartMetrics provides business metrics for the cart engine.
// It tracks cart mutations, pricing corrections, coupon outcomes,
// merges, checkout verification, and ownership denials.
type CartMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	itemAddedTotal          *Counter
	priceHealedTotal        *Counter
	couponRejectedTotal     *Counter
	mergeTotal              *Counter
	checkoutVerifyTotal     *Counter
	ownershipViolationTotal *Counter
	abandonedTotal          *Counter

	// Gauge metrics (point-in-time values)
	cartCountByStatus *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	statsProvider CartStatsProvider
}

// CartStatsProvider provides cart population data for periodic metrics
// collection. The interface keeps the telemetry layer off the persistence
// package.
type CartStatsProvider interface {
	// CountByStatus returns the number of carts per lifecycle status
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// CartMetricsConfig holds configuration for cart metrics.
type CartMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	StatsProvider   CartStatsProvider
}

// NewCartMetrics creates a new CartMetrics instance.
func NewCartMetrics(cfg CartMetricsConfig) (*CartMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cm := &CartMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		statsProvider: cfg.StatsProvider,
	}

	var err error

	cm.itemAddedTotal, err = NewCounter(
		cfg.Meter,
		"cart_item_added_total",
		"Total number of cart line additions",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	cm.priceHealedTotal, err = NewCounter(
		cfg.Meter,
		"cart_price_healed_total",
		"Total number of line prices corrected against the catalog",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	cm.couponRejectedTotal, err = NewCounter(
		cfg.Meter,
		"cart_coupon_rejected_total",
		"Total number of coupon applications rejected",
		"{coupons}",
	)
	if err != nil {
		return nil, err
	}

	cm.mergeTotal, err = NewCounter(
		cfg.Meter,
		"cart_merge_total",
		"Total number of guest-to-user cart merges",
		"{merges}",
	)
	if err != nil {
		return nil, err
	}

	cm.checkoutVerifyTotal, err = NewCounter(
		cfg.Meter,
		"cart_checkout_verify_total",
		"Total number of checkout verifications by outcome",
		"{verifications}",
	)
	if err != nil {
		return nil, err
	}

	cm.ownershipViolationTotal, err = NewCounter(
		cfg.Meter,
		"cart_ownership_violation_total",
		"Total number of denied cross-owner cart accesses",
		"{violations}",
	)
	if err != nil {
		return nil, err
	}

	cm.abandonedTotal, err = NewCounter(
		cfg.Meter,
		"cart_abandoned_total",
		"Total number of carts flagged abandoned by the sweeper",
		"{carts}",
	)
	if err != nil {
		return nil, err
	}

	cm.cartCountByStatus, err = NewGauge(
		cfg.Meter,
		"cart_count",
		"Current number of carts per lifecycle status",
		"{carts}",
	)
	if err != nil {
		return nil, err
	}

	return cm, nil
}

// RecordItemAdded records a line addition.
func (cm *CartMetrics) RecordItemAdded(ctx context.Context, ownerKind string) {
	cm.itemAddedTotal.Inc(ctx, AttrOwnerKind.String(ownerKind))
}

// RecordPriceHealed records a line price corrected to the catalog price.
func (cm *CartMetrics) RecordPriceHealed(ctx context.Context) {
	cm.priceHealedTotal.Inc(ctx)
}

// RecordCouponRejected records a rejected coupon application.
func (cm *CartMetrics) RecordCouponRejected(ctx context.Context, reason string) {
	cm.couponRejectedTotal.Inc(ctx, AttrRejectReason.String(reason))
}

// RecordMerge records a completed guest-to-user merge.
func (cm *CartMetrics) RecordMerge(ctx context.Context) {
	cm.mergeTotal.Inc(ctx)
}

// RecordCheckoutVerify records a checkout verification outcome
// (ok, price_changed, integrity_mismatch).
func (cm *CartMetrics) RecordCheckoutVerify(ctx context.Context, status string) {
	cm.checkoutVerifyTotal.Inc(ctx, AttrVerifyStatus.String(status))
}

// RecordOwnershipViolation records a denied cross-owner access.
func (cm *CartMetrics) RecordOwnershipViolation(ctx context.Context, route string) {
	cm.ownershipViolationTotal.Inc(ctx, AttrHTTPRoute.String(route))
}

// RecordAbandoned records carts flagged abandoned by one sweep.
func (cm *CartMetrics) RecordAbandoned(ctx context.Context, count int64) {
	if count <= 0 {
		return
	}
	cm.abandonedTotal.Add(ctx, count)
}

// RecordCartCount records the current cart count for one status.
func (cm *CartMetrics) RecordCartCount(ctx context.Context, status string, count int64) {
	cm.cartCountByStatus.Record(ctx, count, AttrCartStatus.String(status))
}

// StartPeriodicCollection starts periodic collection of the cart
// population gauge. Non-blocking; use Stop() to stop collection.
func (cm *CartMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	cm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go cm.runPeriodicCollection(ctx, interval)
	})
}

func (cm *CartMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	cm.collectCartCounts(ctx)

	for {
		select {
		case <-cm.stopChan:
			cm.logger.Info("Stopping periodic cart metrics collection")
			return
		case <-ctx.Done():
			cm.logger.Info("Context cancelled, stopping periodic cart metrics collection")
			return
		case <-ticker.C:
			cm.collectCartCounts(ctx)
		}
	}
}

func (cm *CartMetrics) collectCartCounts(ctx context.Context) {
	if cm.statsProvider == nil {
		cm.logger.Debug("No stats provider configured, skipping cart count collection")
		return
	}

	counts, err := cm.statsProvider.CountByStatus(ctx)
	if err != nil {
		cm.logger.Error("Failed to collect cart counts", zap.Error(err))
		return
	}

	for status, count := range counts {
		cm.RecordCartCount(ctx, status, count)
	}
}

// Stop stops the periodic collection.
func (cm *CartMetrics) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewCartMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
