package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
)

// StaticProvider implements cart.RateProvider with a flat shipping amount
// and a proportional tax rate over the discounted goods value. It stands in
// for a carrier/tax integration; the service layer only sees the interface.
type StaticProvider struct {
	shippingFlat decimal.Decimal
	taxRate      decimal.Decimal
}

// NewStaticProvider builds a provider from decimal strings, e.g. shipping
// "4.99" and tax rate "0.08"
func NewStaticProvider(shippingFlat, taxRate string) (*StaticProvider, error) {
	shipping, err := decimal.NewFromString(shippingFlat)
	if err != nil {
		return nil, fmt.Errorf("invalid shipping amount %q: %w", shippingFlat, err)
	}
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return nil, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}
	if shipping.IsNegative() || rate.IsNegative() {
		return nil, fmt.Errorf("shipping and tax rate cannot be negative")
	}
	return &StaticProvider{shippingFlat: shipping, taxRate: rate}, nil
}

// ShippingFor returns the flat shipping amount; empty carts ship free
func (p *StaticProvider) ShippingFor(ctx context.Context, c *cart.Cart) (decimal.Decimal, error) {
	if c.ItemCount() == 0 {
		return decimal.Zero, nil
	}
	return p.shippingFlat, nil
}

// TaxFor returns tax over the subtotal net of the current discount
func (p *StaticProvider) TaxFor(ctx context.Context, c *cart.Cart) (decimal.Decimal, error) {
	base := c.Subtotal.Sub(c.Discount)
	if base.IsNegative() {
		base = decimal.Zero
	}
	return base.Mul(p.taxRate).Round(2), nil
}

// Ensure StaticProvider implements cart.RateProvider
var _ cart.RateProvider = (*StaticProvider)(nil)
