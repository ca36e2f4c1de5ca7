package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductSnapshot is the read-only catalog view of a product used for
// price resolution
type ProductSnapshot struct {
	ID         uuid.UUID
	Price      decimal.Decimal
	SalePrice  decimal.Decimal
	SaleActive bool
	Active     bool
}

// VariantSnapshot is the read-only catalog view of a product variant
type VariantSnapshot struct {
	ID         uuid.UUID
	ProductID  uuid.UUID
	Price      decimal.Decimal
	SalePrice  decimal.Decimal
	SaleActive bool
	Active     bool
}

// CatalogReader fetches product and variant snapshots from the catalog
// collaborator
type CatalogReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductSnapshot, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*VariantSnapshot, error)
}

// RejectReason is the typed reason a coupon code was refused
type RejectReason string

const (
	RejectInvalidCode   RejectReason = "invalid_code"
	RejectExpired       RejectReason = "expired"
	RejectMinimumNotMet RejectReason = "minimum_not_met"
	RejectUsageExceeded RejectReason = "usage_exceeded"
)

// CouponRejectedError reports why the rules service refused a coupon code
type CouponRejectedError struct {
	Code   string
	Reason RejectReason
}

// Error implements the error interface
func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}

// DiscountQuote is the rules service's accepted discount for a coupon code
type DiscountQuote struct {
	Code   string
	Amount decimal.Decimal
}

// DiscountValidator delegates coupon validation (minimum order amount,
// expiry, usage limits, active flag) to the discount rules collaborator
type DiscountValidator interface {
	ValidateCode(ctx context.Context, code string, subtotal decimal.Decimal) (*DiscountQuote, error)
}

// RateProvider supplies shipping and tax amounts for a cart
type RateProvider interface {
	ShippingFor(ctx context.Context, c *Cart) (decimal.Decimal, error)
	TaxFor(ctx context.Context, c *Cart) (decimal.Decimal, error)
}

// OwnershipViolation is the audit record emitted on every denied access
type OwnershipViolation struct {
	CartID     uuid.UUID
	Actor      string
	Route      string
	IP         string
	OccurredAt time.Time
}

// AuditSink receives ownership-violation events
type AuditSink interface {
	RecordOwnershipViolation(ctx context.Context, v OwnershipViolation) error
}

// Locker serializes mutating operations on a single cart. Acquire blocks for
// at most a short bound; on contention it returns shared.ErrCartLocked so the
// caller can retry with backoff rather than hang.
type Locker interface {
	Acquire(ctx context.Context, cartID uuid.UUID) (release func(), err error)
}
