package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"gorm.io/gorm"
)

// Coupon discount types
const (
	couponTypePercent = "PERCENT"
	couponTypeFixed   = "FIXED"
)

// couponRow is the persistence model for coupon rules
type couponRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Code        string    `gorm:"uniqueIndex;not null"`
	Type        string    `gorm:"not null"` // PERCENT or FIXED
	Value       decimal.Decimal
	MinSubtotal decimal.Decimal
	ExpiresAt   *time.Time
	UsageLimit  int // 0 = unlimited
	UsageCount  int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (couponRow) TableName() string {
	return "coupons"
}

// GormDiscountValidator implements cart.DiscountValidator over the coupons
// table. Every refusal carries a typed reason so clients can explain the
// rejection without parsing messages.
type GormDiscountValidator struct {
	db *gorm.DB
}

// NewGormDiscountValidator creates a new GormDiscountValidator
func NewGormDiscountValidator(db *gorm.DB) *GormDiscountValidator {
	return &GormDiscountValidator{db: db}
}

// ValidateCode checks a coupon code against the cart subtotal and returns
// the accepted discount quote, or *cart.CouponRejectedError on refusal.
// Codes are matched case-insensitively.
func (v *GormDiscountValidator) ValidateCode(ctx context.Context, code string, subtotal decimal.Decimal) (*cart.DiscountQuote, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	var row couponRow
	if err := v.db.WithContext(ctx).First(&row, "code = ?", normalized).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &cart.CouponRejectedError{Code: code, Reason: cart.RejectInvalidCode}
		}
		return nil, err
	}

	if !row.Active {
		return nil, &cart.CouponRejectedError{Code: code, Reason: cart.RejectInvalidCode}
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		return nil, &cart.CouponRejectedError{Code: code, Reason: cart.RejectExpired}
	}
	if row.UsageLimit > 0 && row.UsageCount >= row.UsageLimit {
		return nil, &cart.CouponRejectedError{Code: code, Reason: cart.RejectUsageExceeded}
	}
	if subtotal.LessThan(row.MinSubtotal) {
		return nil, &cart.CouponRejectedError{Code: code, Reason: cart.RejectMinimumNotMet}
	}

	amount := row.Value
	if row.Type == couponTypePercent {
		amount = subtotal.Mul(row.Value).Div(decimal.NewFromInt(100)).Round(2)
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}

	return &cart.DiscountQuote{Code: normalized, Amount: amount}, nil
}

// Ensure GormDiscountValidator implements cart.DiscountValidator
var _ cart.DiscountValidator = (*GormDiscountValidator)(nil)
