package integrity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildCart(t *testing.T) *cart.Cart {
	t.Helper()
	c, err := cart.NewCartForSession("sess-stamp", valueobject.USD)
	require.NoError(t, err)
	_, err = c.AddItem(uuid.New(), nil, 2, decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = c.AddItem(uuid.New(), nil, 1, decimal.NewFromInt(500))
	require.NoError(t, err)
	c.Recompute(cart.RecomputeInputs{})
	return c
}

func TestStamper_RoundTrip(t *testing.T) {
	stamper := NewStamper("test-secret-key")
	c := buildCart(t)

	stamp := stamper.Stamp(c)

	assert.Len(t, stamp, 64) // hex-encoded SHA-256
	assert.True(t, stamper.Verify(c, stamp))
}

func TestStamper_Deterministic(t *testing.T) {
	stamper := NewStamper("test-secret-key")
	c := buildCart(t)

	assert.Equal(t, stamper.Stamp(c), stamper.Stamp(c))
}

func TestStamper_ItemOrderDoesNotMatter(t *testing.T) {
	stamper := NewStamper("test-secret-key")
	c := buildCart(t)

	before := stamper.Stamp(c)
	c.Items[0], c.Items[1] = c.Items[1], c.Items[0]

	assert.Equal(t, before, stamper.Stamp(c))
}

func TestStamper_DetectsChanges(t *testing.T) {
	stamper := NewStamper("test-secret-key")

	t.Run("quantity change", func(t *testing.T) {
		c := buildCart(t)
		stamp := stamper.Stamp(c)

		require.NoError(t, c.UpdateItemQuantity(c.Items[0].ID, 9))
		c.Recompute(cart.RecomputeInputs{})

		assert.False(t, stamper.Verify(c, stamp))
	})

	t.Run("price change", func(t *testing.T) {
		c := buildCart(t)
		stamp := stamper.Stamp(c)

		c.Items[0].SetUnitPrice(decimal.NewFromInt(1), true)
		c.Recompute(cart.RecomputeInputs{})

		assert.False(t, stamper.Verify(c, stamp))
	})

	t.Run("total change alone", func(t *testing.T) {
		c := buildCart(t)
		stamp := stamper.Stamp(c)

		c.Total = c.Total.Add(decimal.NewFromInt(1))

		assert.False(t, stamper.Verify(c, stamp))
	})
}

func TestStamper_DifferentSecrets(t *testing.T) {
	c := buildCart(t)
	a := NewStamper("secret-a")
	b := NewStamper("secret-b")

	assert.NotEqual(t, a.Stamp(c), b.Stamp(c))
	assert.False(t, b.Verify(c, a.Stamp(c)))
}

func TestStamper_RejectsGarbage(t *testing.T) {
	stamper := NewStamper("test-secret-key")
	c := buildCart(t)

	assert.False(t, stamper.Verify(c, ""))
	assert.False(t, stamper.Verify(c, "not-hex-!!"))
	assert.False(t, stamper.Verify(c, "deadbeef"))
}

func TestStamper_EqualValueEncodesIdentically(t *testing.T) {
	stamper := NewStamper("test-secret-key")
	c := buildCart(t)
	stamp := stamper.Stamp(c)

	// 2500 vs 2500.00 must stamp the same
	c.Total = decimal.RequireFromString("2500.00")
	assert.True(t, stamper.Verify(c, stamp))
}
