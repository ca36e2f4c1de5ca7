package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// MockCartRepository is a mock implementation of cart.Repository
type MockCartRepository struct {
	mock.Mock
}

func (m *MockCartRepository) FindByID(ctx context.Context, id uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) FindCurrentByUser(ctx context.Context, userID uuid.UUID) (*cart.Cart, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) FindCurrentBySession(ctx context.Context, sessionID string) (*cart.Cart, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartRepository) Save(ctx context.Context, c *cart.Cart) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCartRepository) SaveWithLock(ctx context.Context, c *cart.Cart) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCartRepository) SaveMerge(ctx context.Context, recipient, donor *cart.Cart) error {
	args := m.Called(ctx, recipient, donor)
	return args.Error(0)
}

func (m *MockCartRepository) MarkAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockCatalogReader is a mock implementation of cart.CatalogReader
type MockCatalogReader struct {
	mock.Mock
}

func (m *MockCatalogReader) GetProduct(ctx context.Context, id uuid.UUID) (*cart.ProductSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.ProductSnapshot), args.Error(1)
}

func (m *MockCatalogReader) GetVariant(ctx context.Context, id uuid.UUID) (*cart.VariantSnapshot, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.VariantSnapshot), args.Error(1)
}

// MockDiscountValidator is a mock implementation of cart.DiscountValidator
type MockDiscountValidator struct {
	mock.Mock
}

func (m *MockDiscountValidator) ValidateCode(ctx context.Context, code string, subtotal decimal.Decimal) (*cart.DiscountQuote, error) {
	args := m.Called(ctx, code, subtotal)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.DiscountQuote), args.Error(1)
}

// MockRateProvider is a mock implementation of cart.RateProvider
type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) ShippingFor(ctx context.Context, c *cart.Cart) (decimal.Decimal, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRateProvider) TaxFor(ctx context.Context, c *cart.Cart) (decimal.Decimal, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockAuditSink is a mock implementation of cart.AuditSink
type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) RecordOwnershipViolation(ctx context.Context, v cart.OwnershipViolation) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

// noopLocker always grants the lock
type noopLocker struct{}

func (noopLocker) Acquire(ctx context.Context, cartID uuid.UUID) (func(), error) {
	return func() {}, nil
}

// contendedLocker always reports contention
type contendedLocker struct{}

func (contendedLocker) Acquire(ctx context.Context, cartID uuid.UUID) (func(), error) {
	return nil, shared.ErrCartLocked
}

// fakeStamper is deterministic over the cart total so tests can predict
// stamp matches and mismatches
type fakeStamper struct{}

func (fakeStamper) Stamp(c *cart.Cart) string {
	return "stamp:" + c.Total.StringFixed(2)
}

func (fakeStamper) Verify(c *cart.Cart, provided string) bool {
	return provided == (fakeStamper{}).Stamp(c)
}

// Test helpers
var (
	testUserID    = uuid.New()
	testSessionID = "sess-test-1"
	testProductID = uuid.New()
)

type serviceFixture struct {
	repo    *MockCartRepository
	catalog *MockCatalogReader
	coupons *MockDiscountValidator
	rates   *MockRateProvider
	audit   *MockAuditSink
	service *CartService
}

func newServiceFixture(t *testing.T, locker cart.Locker) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		repo:    new(MockCartRepository),
		catalog: new(MockCatalogReader),
		coupons: new(MockDiscountValidator),
		rates:   new(MockRateProvider),
		audit:   new(MockAuditSink),
	}
	guard := NewOwnershipGuard(f.audit, zap.NewNop())
	f.service = NewCartService(f.repo, f.catalog, f.coupons, f.rates, fakeStamper{}, guard, locker, valueobject.USD)
	return f
}

func sessionActor() Actor {
	sid := testSessionID
	return Actor{SessionID: &sid, Route: "POST /api/v1/cart/items", IP: "203.0.113.9"}
}

func userActor() Actor {
	uid := testUserID
	return Actor{UserID: &uid, Route: "POST /api/v1/cart/merge", IP: "203.0.113.9"}
}

func loginActor() Actor {
	a := userActor()
	sid := testSessionID
	a.SessionID = &sid
	return a
}

func testSessionCart(t *testing.T) *cart.Cart {
	t.Helper()
	c, err := cart.NewCartForSession(testSessionID, valueobject.USD)
	require.NoError(t, err)
	return c
}

func testUserCart(t *testing.T) *cart.Cart {
	t.Helper()
	c, err := cart.NewCartForUser(testUserID, valueobject.USD)
	require.NoError(t, err)
	return c
}

func (f *serviceFixture) zeroRates() {
	f.rates.On("ShippingFor", mock.Anything, mock.Anything).Return(decimal.Zero, nil)
	f.rates.On("TaxFor", mock.Anything, mock.Anything).Return(decimal.Zero, nil)
}

func TestCartService_GetCart(t *testing.T) {
	t.Run("reports not found before the first mutation", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(nil, shared.ErrNotFound)

		_, err := f.service.GetCart(context.Background(), sessionActor(), ExpandAll)

		assert.ErrorIs(t, err, shared.ErrNotFound)
		f.repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("heals a corrupted price without persisting", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		variantID := uuid.New()
		_, err := c.AddItem(testProductID, &variantID, 1, decimal.NewFromInt(10))
		require.NoError(t, err)
		c.Items[0].SetUnitPrice(decimal.Zero, false)

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.catalog.On("GetVariant", mock.Anything, variantID).Return(&cart.VariantSnapshot{
			ID:         variantID,
			ProductID:  testProductID,
			Price:      decimal.NewFromInt(2000),
			SalePrice:  decimal.NewFromInt(1500),
			SaleActive: true,
			Active:     true,
		}, nil)
		f.zeroRates()

		resp, err := f.service.GetCart(context.Background(), sessionActor(), ExpandAll)

		require.NoError(t, err)
		assert.Equal(t, "1500.00", resp.Items[0].UnitPrice.StringFixed(2))
		assert.True(t, resp.Items[0].PriceHealed)
		require.Len(t, resp.Notices, 1)
		assert.Equal(t, NoticePriceHealed, resp.Notices[0].Type)
		f.repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("narrows the view to the requested expansions", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		_, err := c.AddItem(testProductID, nil, 2, decimal.NewFromInt(10))
		require.NoError(t, err)

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.zeroRates()

		resp, err := f.service.GetCart(context.Background(), sessionActor(), Expansions{Notices: true})

		require.NoError(t, err)
		assert.Nil(t, resp.Items)
		assert.Equal(t, 2, resp.ItemCount)
		assert.Equal(t, "20.00", resp.Subtotal.StringFixed(2))
		assert.NotEmpty(t, resp.Stamp)
	})
}

func TestCartService_AddItem(t *testing.T) {
	t.Run("resolves the price from the catalog", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.catalog.On("GetProduct", mock.Anything, testProductID).Return(&cart.ProductSnapshot{
			ID:     testProductID,
			Price:  decimal.NewFromInt(1000),
			Active: true,
		}, nil)
		f.zeroRates()
		f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

		resp, err := f.service.AddItem(context.Background(), sessionActor(), AddItemRequest{
			ProductID: testProductID,
			Quantity:  2,
		})

		require.NoError(t, err)
		assert.Equal(t, 1, resp.ItemCount)
		assert.Equal(t, "1000.00", resp.Items[0].UnitPrice.StringFixed(2))
		assert.Equal(t, "2000.00", resp.Subtotal.StringFixed(2))
		assert.Equal(t, "2000.00", resp.Total.StringFixed(2))
	})

	t.Run("rejects an inactive product", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.catalog.On("GetProduct", mock.Anything, testProductID).Return(&cart.ProductSnapshot{
			ID:     testProductID,
			Price:  decimal.NewFromInt(1000),
			Active: false,
		}, nil)

		_, err := f.service.AddItem(context.Background(), sessionActor(), AddItemRequest{
			ProductID: testProductID,
			Quantity:  1,
		})

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "PRODUCT_UNAVAILABLE", domainErr.Code)
		f.repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("surfaces lock contention", func(t *testing.T) {
		f := newServiceFixture(t, contendedLocker{})
		c := testSessionCart(t)
		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)

		_, err := f.service.AddItem(context.Background(), sessionActor(), AddItemRequest{
			ProductID: testProductID,
			Quantity:  1,
		})

		assert.ErrorIs(t, err, shared.ErrCartLocked)
	})

	t.Run("reactivates an abandoned cart", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		require.NoError(t, c.Abandon())

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.catalog.On("GetProduct", mock.Anything, testProductID).Return(&cart.ProductSnapshot{
			ID:     testProductID,
			Price:  decimal.NewFromInt(5),
			Active: true,
		}, nil)
		f.zeroRates()
		f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

		resp, err := f.service.AddItem(context.Background(), sessionActor(), AddItemRequest{
			ProductID: testProductID,
			Quantity:  1,
		})

		require.NoError(t, err)
		assert.Equal(t, "ACTIVE", resp.Status)
	})
}

func TestCartService_Coupon(t *testing.T) {
	t.Run("applies a validated discount", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		_, err := c.AddItem(testProductID, nil, 2, decimal.NewFromInt(1000))
		require.NoError(t, err)
		c.Recompute(cart.RecomputeInputs{})

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.coupons.On("ValidateCode", mock.Anything, "SAVE200", mock.Anything).Return(&cart.DiscountQuote{
			Code:   "SAVE200",
			Amount: decimal.NewFromInt(200),
		}, nil)
		f.zeroRates()
		f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

		resp, err := f.service.ApplyCoupon(context.Background(), sessionActor(), ApplyCouponRequest{Code: "SAVE200"})

		require.NoError(t, err)
		assert.Equal(t, "2000.00", resp.Subtotal.StringFixed(2))
		assert.Equal(t, "200.00", resp.Discount.StringFixed(2))
		assert.Equal(t, "1800.00", resp.Total.StringFixed(2))
	})

	t.Run("propagates a rejection with its typed reason", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		_, err := c.AddItem(testProductID, nil, 1, decimal.NewFromInt(10))
		require.NoError(t, err)
		c.Recompute(cart.RecomputeInputs{})

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.coupons.On("ValidateCode", mock.Anything, "SAVE200", mock.Anything).Return(nil, &cart.CouponRejectedError{
			Code:   "SAVE200",
			Reason: cart.RejectMinimumNotMet,
		})

		_, err = f.service.ApplyCoupon(context.Background(), sessionActor(), ApplyCouponRequest{Code: "SAVE200"})

		var rejected *cart.CouponRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, cart.RejectMinimumNotMet, rejected.Reason)
		f.repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("removes a stale coupon during recompute with a notice", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testSessionCart(t)
		item, err := c.AddItem(testProductID, nil, 5, decimal.NewFromInt(100))
		require.NoError(t, err)
		require.NoError(t, c.ApplyCoupon("MIN500"))
		c.Recompute(cart.RecomputeInputs{Discount: decimal.NewFromInt(50)})

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.coupons.On("ValidateCode", mock.Anything, "MIN500", mock.Anything).Return(nil, &cart.CouponRejectedError{
			Code:   "MIN500",
			Reason: cart.RejectMinimumNotMet,
		})
		f.zeroRates()
		f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

		resp, err := f.service.UpdateItem(context.Background(), sessionActor(), item.ID, UpdateItemRequest{Quantity: 1})

		require.NoError(t, err)
		assert.Nil(t, resp.CouponCode)
		assert.True(t, resp.Discount.IsZero())
		require.Len(t, resp.Notices, 1)
		assert.Equal(t, NoticeCouponRemoved, resp.Notices[0].Type)
		assert.Equal(t, string(cart.RejectMinimumNotMet), resp.Notices[0].Reason)
	})
}

func TestCartService_Merge(t *testing.T) {
	t.Run("sums matching lines and retires the donor", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		donor := testSessionCart(t)
		_, err := donor.AddItem(testProductID, nil, 2, decimal.NewFromInt(10))
		require.NoError(t, err)

		recipient := testUserCart(t)
		_, err = recipient.AddItem(testProductID, nil, 1, decimal.NewFromInt(10))
		require.NoError(t, err)
		otherProduct := uuid.New()
		_, err = recipient.AddItem(otherProduct, nil, 1, decimal.NewFromInt(20))
		require.NoError(t, err)

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(donor, nil)
		f.repo.On("FindCurrentByUser", mock.Anything, testUserID).Return(recipient, nil)
		f.zeroRates()
		f.repo.On("SaveMerge", mock.Anything, recipient, donor).Return(nil)

		resp, err := f.service.Merge(context.Background(), loginActor())

		require.NoError(t, err)
		assert.Equal(t, 2, resp.ItemCount)
		assert.Equal(t, "50.00", resp.Subtotal.StringFixed(2))
		assert.Equal(t, cart.StatusMerged, donor.Status)
		assert.Equal(t, 0, donor.ItemCount())
	})

	t.Run("promotes the guest cart when the user has none", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		donor := testSessionCart(t)
		_, err := donor.AddItem(testProductID, nil, 3, decimal.NewFromInt(10))
		require.NoError(t, err)

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(donor, nil)
		f.repo.On("FindCurrentByUser", mock.Anything, testUserID).Return(nil, shared.ErrNotFound)
		f.zeroRates()
		f.repo.On("SaveWithLock", mock.Anything, donor).Return(nil)

		resp, err := f.service.Merge(context.Background(), loginActor())

		require.NoError(t, err)
		assert.Equal(t, 1, resp.ItemCount)
		assert.True(t, donor.OwnedByUser(testUserID))
		f.repo.AssertNotCalled(t, "SaveMerge", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("no guest cart leaves the user cart untouched", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		recipient := testUserCart(t)

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(nil, shared.ErrNotFound)
		f.repo.On("FindCurrentByUser", mock.Anything, testUserID).Return(recipient, nil)

		resp, err := f.service.Merge(context.Background(), loginActor())

		require.NoError(t, err)
		assert.Equal(t, 0, resp.ItemCount)
		f.repo.AssertNotCalled(t, "SaveMerge", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("requires both identities", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})

		_, err := f.service.Merge(context.Background(), sessionActor())

		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_INPUT", domainErr.Code)
	})
}

func TestCartService_VerifyCheckout(t *testing.T) {
	setup := func(t *testing.T) (*serviceFixture, *cart.Cart) {
		f := newServiceFixture(t, noopLocker{})
		c := testUserCart(t)
		_, err := c.AddItem(testProductID, nil, 2, decimal.NewFromInt(1000))
		require.NoError(t, err)
		c.Recompute(cart.RecomputeInputs{})
		f.repo.On("FindCurrentByUser", mock.Anything, testUserID).Return(c, nil)
		f.zeroRates()
		return f, c
	}

	t.Run("matching stamp verifies", func(t *testing.T) {
		f, c := setup(t)

		result, err := f.service.VerifyCheckout(context.Background(), userActor(), VerifyCheckoutRequest{
			Stamp: (fakeStamper{}).Stamp(c),
		})

		require.NoError(t, err)
		assert.Equal(t, VerifyOK, result.Status)
	})

	t.Run("stale stamp on an unchanged cart is an integrity mismatch", func(t *testing.T) {
		f, _ := setup(t)

		result, err := f.service.VerifyCheckout(context.Background(), userActor(), VerifyCheckoutRequest{
			Stamp: "stamp:999.99",
		})

		require.NoError(t, err)
		assert.Equal(t, VerifyIntegrityMismatch, result.Status)
		assert.NotEqual(t, "stamp:999.99", result.Cart.Stamp)
	})

	t.Run("healed price turns a mismatch into price_changed", func(t *testing.T) {
		f, c := setup(t)
		staleStamp := (fakeStamper{}).Stamp(c)
		c.Items[0].SetUnitPrice(decimal.Zero, false)
		f.catalog.On("GetProduct", mock.Anything, testProductID).Return(&cart.ProductSnapshot{
			ID:     testProductID,
			Price:  decimal.NewFromInt(1200),
			Active: true,
		}, nil)

		result, err := f.service.VerifyCheckout(context.Background(), userActor(), VerifyCheckoutRequest{
			Stamp: staleStamp,
		})

		require.NoError(t, err)
		assert.Equal(t, VerifyPriceChanged, result.Status)
		assert.Equal(t, "2400.00", result.Cart.Total.StringFixed(2))
	})
}

// newTestCartMetrics builds a collector over a manual reader so tests can
// assert what the service actually recorded
func newTestCartMetrics(t *testing.T) (*telemetry.CartMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	cm, err := telemetry.NewCartMetrics(telemetry.CartMetricsConfig{
		Meter:  provider.Meter("test"),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	return cm, reader
}

func counterTotal(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestCartService_BusinessMetrics(t *testing.T) {
	t.Run("counts added items by owner kind", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		cm, reader := newTestCartMetrics(t)
		f.service.SetCartMetrics(cm)

		c := testSessionCart(t)
		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.catalog.On("GetProduct", mock.Anything, testProductID).Return(&cart.ProductSnapshot{
			ID:     testProductID,
			Price:  decimal.NewFromInt(10),
			Active: true,
		}, nil)
		f.zeroRates()
		f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

		_, err := f.service.AddItem(context.Background(), sessionActor(), AddItemRequest{
			ProductID: testProductID,
			Quantity:  1,
		})

		require.NoError(t, err)
		assert.EqualValues(t, 1, counterTotal(t, reader, "cart_item_added_total"))
	})

	t.Run("counts checkout verifications by outcome", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		cm, reader := newTestCartMetrics(t)
		f.service.SetCartMetrics(cm)

		c := testUserCart(t)
		_, err := c.AddItem(testProductID, nil, 1, decimal.NewFromInt(40))
		require.NoError(t, err)
		c.Recompute(cart.RecomputeInputs{})
		f.repo.On("FindCurrentByUser", mock.Anything, testUserID).Return(c, nil)
		f.zeroRates()

		_, err = f.service.VerifyCheckout(context.Background(), userActor(), VerifyCheckoutRequest{
			Stamp: "stamp:999.99",
		})

		require.NoError(t, err)
		assert.EqualValues(t, 1, counterTotal(t, reader, "cart_checkout_verify_total"))
	})

	t.Run("counts a rejected coupon application", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		cm, reader := newTestCartMetrics(t)
		f.service.SetCartMetrics(cm)

		c := testSessionCart(t)
		_, err := c.AddItem(testProductID, nil, 1, decimal.NewFromInt(10))
		require.NoError(t, err)
		c.Recompute(cart.RecomputeInputs{})
		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.coupons.On("ValidateCode", mock.Anything, "NOPE", mock.Anything).Return(nil, &cart.CouponRejectedError{
			Code:   "NOPE",
			Reason: cart.RejectMinimumNotMet,
		})

		_, err = f.service.ApplyCoupon(context.Background(), sessionActor(), ApplyCouponRequest{Code: "NOPE"})

		require.Error(t, err)
		assert.EqualValues(t, 1, counterTotal(t, reader, "cart_coupon_rejected_total"))
	})

	t.Run("counts a completed merge", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		cm, reader := newTestCartMetrics(t)
		f.service.SetCartMetrics(cm)

		donor := testSessionCart(t)
		_, err := donor.AddItem(testProductID, nil, 1, decimal.NewFromInt(10))
		require.NoError(t, err)
		recipient := testUserCart(t)

		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(donor, nil)
		f.repo.On("FindCurrentByUser", mock.Anything, testUserID).Return(recipient, nil)
		f.zeroRates()
		f.repo.On("SaveMerge", mock.Anything, recipient, donor).Return(nil)

		_, err = f.service.Merge(context.Background(), loginActor())

		require.NoError(t, err)
		assert.EqualValues(t, 1, counterTotal(t, reader, "cart_merge_total"))
	})

	t.Run("counts a denied cross-owner access", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		cm, reader := newTestCartMetrics(t)
		f.service.guard.SetCartMetrics(cm)

		foreign, err := cart.NewCartForUser(uuid.New(), valueobject.USD)
		require.NoError(t, err)
		f.repo.On("FindByID", mock.Anything, foreign.ID).Return(foreign, nil)
		f.audit.On("RecordOwnershipViolation", mock.Anything, mock.AnythingOfType("cart.OwnershipViolation")).Return(nil)

		_, err = f.service.MarkConverted(context.Background(), userActor(), foreign.ID)

		assert.ErrorIs(t, err, shared.ErrOwnership)
		assert.EqualValues(t, 1, counterTotal(t, reader, "cart_ownership_violation_total"))
	})

	t.Run("a nil collector records nothing and breaks nothing", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})

		c := testSessionCart(t)
		f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
		f.catalog.On("GetProduct", mock.Anything, testProductID).Return(&cart.ProductSnapshot{
			ID:     testProductID,
			Price:  decimal.NewFromInt(10),
			Active: true,
		}, nil)
		f.zeroRates()
		f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

		_, err := f.service.AddItem(context.Background(), sessionActor(), AddItemRequest{
			ProductID: testProductID,
			Quantity:  1,
		})

		require.NoError(t, err)
	})
}

func TestCartService_RatesSeeDiscount(t *testing.T) {
	f := newServiceFixture(t, noopLocker{})
	c := testSessionCart(t)
	_, err := c.AddItem(testProductID, nil, 2, decimal.NewFromInt(1000))
	require.NoError(t, err)
	c.Recompute(cart.RecomputeInputs{})

	f.repo.On("FindCurrentBySession", mock.Anything, testSessionID).Return(c, nil)
	f.coupons.On("ValidateCode", mock.Anything, "SAVE200", mock.Anything).Return(&cart.DiscountQuote{
		Code:   "SAVE200",
		Amount: decimal.NewFromInt(200),
	}, nil)

	// An 8% provider over the discounted goods value: (2000 - 200) * 0.08.
	var taxBase decimal.Decimal
	f.rates.On("ShippingFor", mock.Anything, mock.Anything).Return(decimal.Zero, nil)
	f.rates.On("TaxFor", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		seen := args.Get(1).(*cart.Cart)
		taxBase = seen.Subtotal.Sub(seen.Discount)
	}).Return(decimal.NewFromInt(144), nil)
	f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

	resp, err := f.service.ApplyCoupon(context.Background(), sessionActor(), ApplyCouponRequest{Code: "SAVE200"})

	require.NoError(t, err)
	assert.Equal(t, "1800.00", taxBase.StringFixed(2))
	assert.Equal(t, "200.00", resp.Discount.StringFixed(2))
	assert.Equal(t, "144.00", resp.Tax.StringFixed(2))
	assert.Equal(t, "1944.00", resp.Total.StringFixed(2))
}

func TestCartService_MarkConverted(t *testing.T) {
	t.Run("converts an owned cart", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		c := testUserCart(t)
		f.repo.On("FindByID", mock.Anything, c.ID).Return(c, nil)
		f.repo.On("SaveWithLock", mock.Anything, c).Return(nil)

		resp, err := f.service.MarkConverted(context.Background(), userActor(), c.ID)

		require.NoError(t, err)
		assert.Equal(t, "CONVERTED", resp.Status)
	})

	t.Run("denies and audits access to a foreign cart", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		foreign, err := cart.NewCartForUser(uuid.New(), valueobject.USD)
		require.NoError(t, err)

		f.repo.On("FindByID", mock.Anything, foreign.ID).Return(foreign, nil)
		f.audit.On("RecordOwnershipViolation", mock.Anything, mock.AnythingOfType("cart.OwnershipViolation")).Return(nil)

		_, err = f.service.MarkConverted(context.Background(), userActor(), foreign.ID)

		assert.ErrorIs(t, err, shared.ErrOwnership)
		f.audit.AssertCalled(t, "RecordOwnershipViolation", mock.Anything, mock.AnythingOfType("cart.OwnershipViolation"))
		f.repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("missing cart is indistinguishable from a foreign one", func(t *testing.T) {
		f := newServiceFixture(t, noopLocker{})
		missingID := uuid.New()
		f.repo.On("FindByID", mock.Anything, missingID).Return(nil, shared.ErrNotFound)
		f.audit.On("RecordOwnershipViolation", mock.Anything, mock.AnythingOfType("cart.OwnershipViolation")).Return(nil)

		_, err := f.service.MarkConverted(context.Background(), userActor(), missingID)

		assert.ErrorIs(t, err, shared.ErrOwnership)
	})
}
