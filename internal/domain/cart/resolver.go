package cart

import (
	"github.com/shopspring/decimal"
)

// ResolvedPrice is the authoritative unit price for a line
type ResolvedPrice struct {
	Price decimal.Decimal
	// Healed is true when the stored price was invalid and the catalog
	// supplied a replacement
	Healed bool
	// Unpriceable is true when no catalog source yielded a positive price;
	// the line is surfaced in the cart summary, not hidden
	Unpriceable bool
}

// PriceResolver decides the authoritative unit price for a cart line,
// healing stale or corrupted stored prices from the current catalog
// snapshot. Resolution is a pure read: it never writes, and resolving an
// already-healthy price returns that price unchanged.
type PriceResolver struct{}

// NewPriceResolver creates a new PriceResolver
func NewPriceResolver() *PriceResolver {
	return &PriceResolver{}
}

// Resolve returns the authoritative unit price for the item.
//
// A stored positive price is trusted and returned unchanged; this is the
// common path and needs no catalog data. A stored price of zero or below is
// healed: the variant's active sale price if positive, else the variant's
// base price; with no variant, the product's active sale price if positive,
// else the product's base price. When the applicable chain yields nothing
// positive the healed price is zero and the line is flagged unpriceable.
func (r *PriceResolver) Resolve(item *Item, variant *VariantSnapshot, product *ProductSnapshot) ResolvedPrice {
	if item.UnitPrice.IsPositive() {
		return ResolvedPrice{Price: item.UnitPrice}
	}

	if variant != nil {
		if price, ok := pickPrice(variant.SalePrice, variant.SaleActive, variant.Price); ok {
			return ResolvedPrice{Price: price, Healed: true}
		}
		return ResolvedPrice{Price: decimal.Zero, Healed: true, Unpriceable: true}
	}

	if product != nil {
		if price, ok := pickPrice(product.SalePrice, product.SaleActive, product.Price); ok {
			return ResolvedPrice{Price: price, Healed: true}
		}
	}

	return ResolvedPrice{Price: decimal.Zero, Healed: true, Unpriceable: true}
}

// pickPrice prefers an active positive sale price over the base price
func pickPrice(salePrice decimal.Decimal, saleActive bool, basePrice decimal.Decimal) (decimal.Decimal, bool) {
	if saleActive && salePrice.IsPositive() {
		return salePrice, true
	}
	if basePrice.IsPositive() {
		return basePrice, true
	}
	return decimal.Zero, false
}
