// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormCartStatsProvider implements CartStatsProvider using GORM.
// It queries the carts table directly for aggregated counts.
type GormCartStatsProvider struct {
	db *gorm.DB
}

// NewGormCartStatsProvider creates a new GormCartStatsProvider.
func NewGormCartStatsProvider(db *gorm.DB) *GormCartStatsProvider {
	return &GormCartStatsProvider{db: db}
}

// CountByStatus returns the number of carts per lifecycle status.
func (p *GormCartStatsProvider) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type result struct {
		Status string `gorm:"column:status"`
		Count  int64  `gorm:"column:count"`
	}

	var results []result
	err := p.db.WithContext(ctx).
		Table("carts").
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&results).Error

	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(results))
	for _, r := range results {
		m[r.Status] = r.Count
	}

	return m, nil
}
