package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Actor is the identity a request acts as: an authenticated user, a guest
// session, or (before the session cookie is issued) nobody. Route and IP are
// carried for the audit trail.
type Actor struct {
	UserID    *uuid.UUID
	SessionID *string
	Route     string
	IP        string
}

// String renders the actor for audit records
func (a Actor) String() string {
	if a.UserID != nil {
		return fmt.Sprintf("user:%s", a.UserID)
	}
	if a.SessionID != nil {
		return fmt.Sprintf("session:%s", *a.SessionID)
	}
	return "anonymous"
}

// OwnerKind labels the identity class for metrics attributes
func (a Actor) OwnerKind() string {
	if a.UserID != nil {
		return "user"
	}
	if a.SessionID != nil {
		return "session"
	}
	return "anonymous"
}

// OwnershipGuard authorizes cart access. A denial is always the same generic
// error: the response must not reveal whether the cart exists or which
// identity field mismatched. Every denial is recorded to the audit sink.
type OwnershipGuard struct {
	audit   cart.AuditSink
	logger  *zap.Logger
	metrics *telemetry.CartMetrics
}

// NewOwnershipGuard creates a new OwnershipGuard
func NewOwnershipGuard(audit cart.AuditSink, logger *zap.Logger) *OwnershipGuard {
	return &OwnershipGuard{
		audit:  audit,
		logger: logger,
	}
}

// SetCartMetrics sets the business metrics collector
func (g *OwnershipGuard) SetCartMetrics(cm *telemetry.CartMetrics) {
	g.metrics = cm
}

// Authorize checks that the actor owns the cart. On denial it records an
// ownership violation and returns shared.ErrOwnership.
func (g *OwnershipGuard) Authorize(ctx context.Context, c *cart.Cart, actor Actor) error {
	if c != nil {
		if actor.UserID != nil && c.OwnedByUser(*actor.UserID) {
			return nil
		}
		if actor.SessionID != nil && c.OwnedBySession(*actor.SessionID) {
			return nil
		}
	}

	var cartID uuid.UUID
	if c != nil {
		cartID = c.ID
	}
	g.record(ctx, cartID, actor)
	return shared.ErrOwnership
}

// record is best effort: a failing audit sink must never turn a denial into
// a different error.
func (g *OwnershipGuard) record(ctx context.Context, cartID uuid.UUID, actor Actor) {
	if g.metrics != nil {
		g.metrics.RecordOwnershipViolation(ctx, actor.Route)
	}
	violation := cart.OwnershipViolation{
		CartID:     cartID,
		Actor:      actor.String(),
		Route:      actor.Route,
		IP:         actor.IP,
		OccurredAt: time.Now(),
	}
	if err := g.audit.RecordOwnershipViolation(ctx, violation); err != nil {
		g.logger.Warn("failed to record ownership violation",
			zap.String("cart_id", cartID.String()),
			zap.String("actor", violation.Actor),
			zap.Error(err))
	}

	g.logger.Warn("cart access denied",
		zap.String("cart_id", cartID.String()),
		zap.String("actor", violation.Actor),
		zap.String("route", actor.Route),
		zap.String("ip", actor.IP))
}
