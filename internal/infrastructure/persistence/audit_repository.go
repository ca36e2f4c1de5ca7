package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/cart"
	"gorm.io/gorm"
)

// AuditEntry is the persistence model for the cart audit trail. Ownership
// denials are append-only; entries are never updated or deleted by the
// application.
type AuditEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	CartID     uuid.UUID `gorm:"type:uuid;index"`
	Actor      string    `gorm:"not null"`
	Route      string    `gorm:"not null"`
	IP         string    `gorm:"not null"`
	OccurredAt time.Time `gorm:"not null;index"`
	CreatedAt  time.Time
}

// TableName maps AuditEntry to the cart_audit_entries table
func (AuditEntry) TableName() string {
	return "cart_audit_entries"
}

// GormAuditSink implements cart.AuditSink using GORM
type GormAuditSink struct {
	db *gorm.DB
}

// NewGormAuditSink creates a new GormAuditSink
func NewGormAuditSink(db *gorm.DB) *GormAuditSink {
	return &GormAuditSink{db: db}
}

// RecordOwnershipViolation appends a denial to the audit trail
func (s *GormAuditSink) RecordOwnershipViolation(ctx context.Context, v cart.OwnershipViolation) error {
	entry := AuditEntry{
		ID:         uuid.New(),
		CartID:     v.CartID,
		Actor:      v.Actor,
		Route:      v.Route,
		IP:         v.IP,
		OccurredAt: v.OccurredAt,
	}
	return s.db.WithContext(ctx).Create(&entry).Error
}

// Ensure GormAuditSink implements cart.AuditSink
var _ cart.AuditSink = (*GormAuditSink)(nil)
