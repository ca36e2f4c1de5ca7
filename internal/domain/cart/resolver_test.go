package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceResolver_Resolve(t *testing.T) {
	resolver := NewPriceResolver()

	tests := []struct {
		name          string
		storedPrice   string
		variant       *VariantSnapshot
		product       *ProductSnapshot
		wantPrice     string
		wantHealed    bool
		wantUnpriceab bool
	}{
		{
			name:        "positive stored price is trusted unchanged",
			storedPrice: "19.99",
			product: &ProductSnapshot{
				Price: decimal.NewFromInt(25),
			},
			wantPrice: "19.99",
		},
		{
			name:        "zero price healed from active variant sale",
			storedPrice: "0",
			variant: &VariantSnapshot{
				Price:      decimal.NewFromInt(2000),
				SalePrice:  decimal.NewFromInt(1500),
				SaleActive: true,
			},
			wantPrice:  "1500",
			wantHealed: true,
		},
		{
			name:        "inactive variant sale falls back to variant base",
			storedPrice: "0",
			variant: &VariantSnapshot{
				Price:      decimal.NewFromInt(2000),
				SalePrice:  decimal.NewFromInt(1500),
				SaleActive: false,
			},
			wantPrice:  "2000",
			wantHealed: true,
		},
		{
			name:        "zero sale price ignored even when active",
			storedPrice: "0",
			variant: &VariantSnapshot{
				Price:      decimal.NewFromInt(2000),
				SalePrice:  decimal.Zero,
				SaleActive: true,
			},
			wantPrice:  "2000",
			wantHealed: true,
		},
		{
			name:        "negative price healed from product chain",
			storedPrice: "-5",
			product: &ProductSnapshot{
				Price:      decimal.NewFromInt(500),
				SalePrice:  decimal.NewFromInt(450),
				SaleActive: true,
			},
			wantPrice:  "450",
			wantHealed: true,
		},
		{
			name:        "variant chain never falls back to product",
			storedPrice: "0",
			variant: &VariantSnapshot{
				Price: decimal.Zero,
			},
			product: &ProductSnapshot{
				Price: decimal.NewFromInt(500),
			},
			wantPrice:     "0",
			wantHealed:    true,
			wantUnpriceab: true,
		},
		{
			name:          "no catalog source flags unpriceable",
			storedPrice:   "0",
			wantPrice:     "0",
			wantHealed:    true,
			wantUnpriceab: true,
		},
		{
			name:        "product with no positive price flags unpriceable",
			storedPrice: "0",
			product: &ProductSnapshot{
				Price: decimal.Zero,
			},
			wantPrice:     "0",
			wantHealed:    true,
			wantUnpriceab: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &Item{UnitPrice: decimal.RequireFromString(tt.storedPrice)}
			got := resolver.Resolve(item, tt.variant, tt.product)

			assert.True(t, got.Price.Equal(decimal.RequireFromString(tt.wantPrice)),
				"price = %s, want %s", got.Price, tt.wantPrice)
			assert.Equal(t, tt.wantHealed, got.Healed)
			assert.Equal(t, tt.wantUnpriceab, got.Unpriceable)
		})
	}
}

func TestPriceResolver_ResolveIsIdempotent(t *testing.T) {
	resolver := NewPriceResolver()
	variant := &VariantSnapshot{
		Price:      decimal.NewFromInt(2000),
		SalePrice:  decimal.NewFromInt(1500),
		SaleActive: true,
	}

	item := &Item{UnitPrice: decimal.Zero, Quantity: 1}
	first := resolver.Resolve(item, variant, nil)
	assert.True(t, first.Healed)

	item.SetUnitPrice(first.Price, first.Healed)
	second := resolver.Resolve(item, variant, nil)
	assert.False(t, second.Healed)
	assert.True(t, second.Price.Equal(first.Price))
}
