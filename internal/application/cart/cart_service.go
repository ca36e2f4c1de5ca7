package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// Stamper produces and checks the integrity stamp over a cart's monetary
// state
type Stamper interface {
	Stamp(c *cart.Cart) string
	Verify(c *cart.Cart, provided string) bool
}

// CartService handles cart business operations. Every response it returns
// went through the same pipeline: prices healed from the catalog, the coupon
// re-validated, rates fetched, and the cart recomputed, so a client never
// sees stale money.
type CartService struct {
	carts    cart.Repository
	catalog  cart.CatalogReader
	coupons  cart.DiscountValidator
	rates    cart.RateProvider
	resolver *cart.PriceResolver
	stamper  Stamper
	guard    *OwnershipGuard
	locker   cart.Locker
	currency valueobject.Currency
	metrics  *telemetry.CartMetrics
}

// NewCartService creates a new CartService
func NewCartService(
	carts cart.Repository,
	catalog cart.CatalogReader,
	coupons cart.DiscountValidator,
	rates cart.RateProvider,
	stamper Stamper,
	guard *OwnershipGuard,
	locker cart.Locker,
	currency valueobject.Currency,
) *CartService {
	return &CartService{
		carts:    carts,
		catalog:  catalog,
		coupons:  coupons,
		rates:    rates,
		resolver: cart.NewPriceResolver(),
		stamper:  stamper,
		guard:    guard,
		locker:   locker,
		currency: currency,
	}
}

// SetCartMetrics sets the business metrics collector
func (s *CartService) SetCartMetrics(cm *telemetry.CartMetrics) {
	s.metrics = cm
}

// GetCart returns the actor's current cart with the requested expansions.
// Reads never create: shared.ErrNotFound when the actor has no cart yet,
// a cart comes into being on the first mutation. Healing performed while
// building the view is not persisted here; the next mutation writes it back.
func (s *CartService) GetCart(ctx context.Context, actor Actor, exp Expansions) (*CartResponse, error) {
	c, err := s.findCurrent(ctx, actor)
	if err != nil {
		return nil, err
	}

	notices, err := s.refresh(ctx, c)
	if err != nil {
		return nil, err
	}

	response := BuildCartView(c, s.stamper.Stamp(c), notices, exp)
	return &response, nil
}

// AddItem adds a line to the actor's cart. The unit price is resolved from
// the catalog; client-supplied prices are never trusted.
func (s *CartService) AddItem(ctx context.Context, actor Actor, req AddItemRequest) (*CartResponse, error) {
	resp, err := s.mutate(ctx, actor, func(c *cart.Cart) error {
		price, err := s.priceForLine(ctx, req.ProductID, req.VariantID)
		if err != nil {
			return err
		}
		_, err = c.AddItem(req.ProductID, req.VariantID, req.Quantity, price)
		return err
	})
	if err == nil && s.metrics != nil {
		s.metrics.RecordItemAdded(ctx, actor.OwnerKind())
	}
	return resp, err
}

// UpdateItem sets a line's quantity. Quantity zero removes the line.
func (s *CartService) UpdateItem(ctx context.Context, actor Actor, itemID uuid.UUID, req UpdateItemRequest) (*CartResponse, error) {
	return s.mutate(ctx, actor, func(c *cart.Cart) error {
		return c.UpdateItemQuantity(itemID, req.Quantity)
	})
}

// RemoveItem deletes a line from the actor's cart
func (s *CartService) RemoveItem(ctx context.Context, actor Actor, itemID uuid.UUID) (*CartResponse, error) {
	return s.mutate(ctx, actor, func(c *cart.Cart) error {
		return c.RemoveItem(itemID)
	})
}

// Clear removes every line from the actor's cart
func (s *CartService) Clear(ctx context.Context, actor Actor) (*CartResponse, error) {
	return s.mutate(ctx, actor, func(c *cart.Cart) error {
		return c.Clear()
	})
}

// ApplyCoupon validates the code against the cart's subtotal and applies it.
// A rejection is returned as *cart.CouponRejectedError with the typed
// reason; it never silently downgrades to a notice on the apply path.
func (s *CartService) ApplyCoupon(ctx context.Context, actor Actor, req ApplyCouponRequest) (*CartResponse, error) {
	return s.mutate(ctx, actor, func(c *cart.Cart) error {
		if _, err := s.coupons.ValidateCode(ctx, req.Code, c.Subtotal); err != nil {
			var rejected *cart.CouponRejectedError
			if errors.As(err, &rejected) && s.metrics != nil {
				s.metrics.RecordCouponRejected(ctx, string(rejected.Reason))
			}
			return err
		}
		return c.ApplyCoupon(req.Code)
	})
}

// RemoveCoupon clears any active coupon. Removing when none is active is a
// no-op that still returns the recomputed cart.
func (s *CartService) RemoveCoupon(ctx context.Context, actor Actor) (*CartResponse, error) {
	return s.mutate(ctx, actor, func(c *cart.Cart) error {
		c.RemoveCoupon()
		return nil
	})
}

// Merge folds the actor's guest-session cart into their user cart after
// login. With no user cart the session cart is promoted instead of copied.
// Matching lines sum their quantities; the donor ends up merged and empty.
func (s *CartService) Merge(ctx context.Context, actor Actor) (*CartResponse, error) {
	if actor.UserID == nil || actor.SessionID == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Merge requires both an authenticated user and a session")
	}

	donor, err := s.carts.FindCurrentBySession(ctx, *actor.SessionID)
	if errors.Is(err, shared.ErrNotFound) {
		// Nothing to merge; hand back the user's cart as-is. With no user
		// cart either this surfaces not-found like any other read.
		return s.GetCart(ctx, actor, ExpandAll)
	}
	if err != nil {
		return nil, err
	}

	recipient, err := s.carts.FindCurrentByUser(ctx, *actor.UserID)
	if errors.Is(err, shared.ErrNotFound) {
		return s.promote(ctx, donor, *actor.UserID)
	}
	if err != nil {
		return nil, err
	}

	release, err := s.lockPair(ctx, recipient.ID, donor.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	recipient.Reactivate()
	if err := recipient.MergeFrom(donor); err != nil {
		return nil, err
	}

	notices, err := s.refresh(ctx, recipient)
	if err != nil {
		return nil, err
	}

	if err := s.carts.SaveMerge(ctx, recipient, donor); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordMerge(ctx)
	}

	response := ToCartResponse(recipient, s.stamper.Stamp(recipient), notices)
	return &response, nil
}

// VerifyCheckout recomputes the cart and checks the client's stamp against
// it. A failed check with corrections pending reports price_changed;
// a failed check on an otherwise unchanged cart reports integrity_mismatch
// (a stale or tampered stamp). The fresh view and stamp are always returned
// so the client can reconcile.
func (s *CartService) VerifyCheckout(ctx context.Context, actor Actor, req VerifyCheckoutRequest) (*CheckoutVerification, error) {
	c, err := s.findCurrent(ctx, actor)
	if err != nil {
		return nil, err
	}

	notices, err := s.refresh(ctx, c)
	if err != nil {
		return nil, err
	}

	status := VerifyOK
	if !s.stamper.Verify(c, req.Stamp) {
		if len(notices) > 0 {
			status = VerifyPriceChanged
		} else {
			status = VerifyIntegrityMismatch
		}
	}
	if s.metrics != nil {
		s.metrics.RecordCheckoutVerify(ctx, status)
	}

	return &CheckoutVerification{
		Status: status,
		Cart:   ToCartResponse(c, s.stamper.Stamp(c), notices),
	}, nil
}

// MarkConverted transitions a cart to its terminal converted state once an
// order has been placed from it. The cart is addressed by ID, so ownership
// is enforced explicitly.
func (s *CartService) MarkConverted(ctx context.Context, actor Actor, cartID uuid.UUID) (*CartResponse, error) {
	c, err := s.carts.FindByID(ctx, cartID)
	if errors.Is(err, shared.ErrNotFound) {
		// Indistinguishable from an ownership mismatch.
		return nil, s.guard.Authorize(ctx, nil, actor)
	}
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, c, actor); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := c.MarkConverted(); err != nil {
		return nil, err
	}
	if err := s.carts.SaveWithLock(ctx, c); err != nil {
		return nil, err
	}

	response := ToCartResponse(c, s.stamper.Stamp(c), nil)
	return &response, nil
}

// mutate runs one cart mutation under the per-cart lock: load or create,
// reactivate if abandoned, apply the change, refresh money, save with the
// optimistic version check.
func (s *CartService) mutate(ctx context.Context, actor Actor, fn func(c *cart.Cart) error) (*CartResponse, error) {
	c, err := s.getOrCreate(ctx, actor)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	c.Reactivate()

	if err := fn(c); err != nil {
		return nil, err
	}

	notices, err := s.refresh(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := s.carts.SaveWithLock(ctx, c); err != nil {
		return nil, err
	}

	response := ToCartResponse(c, s.stamper.Stamp(c), notices)
	return &response, nil
}

// refresh brings the cart's money up to date: heal non-positive unit prices
// from the catalog, re-validate any coupon against the fresh subtotal, fetch
// shipping and tax, and recompute. Returns the notices describing what was
// corrected.
func (s *CartService) refresh(ctx context.Context, c *cart.Cart) ([]Notice, error) {
	var notices []Notice

	for idx := range c.Items {
		item := &c.Items[idx]
		if item.UnitPrice.IsPositive() {
			continue
		}

		var (
			variant *cart.VariantSnapshot
			product *cart.ProductSnapshot
			err     error
		)
		if item.VariantID != nil {
			variant, err = s.catalog.GetVariant(ctx, *item.VariantID)
		} else {
			product, err = s.catalog.GetProduct(ctx, item.ProductID)
		}
		if err != nil {
			return nil, err
		}

		resolved := s.resolver.Resolve(item, variant, product)
		item.SetUnitPrice(resolved.Price, resolved.Healed)
		if resolved.Unpriceable {
			notices = append(notices, Notice{
				Type:    NoticeUnpriceable,
				ItemID:  &item.ID,
				Message: "No current price is available for this item",
			})
		} else if resolved.Healed {
			if s.metrics != nil {
				s.metrics.RecordPriceHealed(ctx)
			}
			notices = append(notices, Notice{
				Type:    NoticePriceHealed,
				ItemID:  &item.ID,
				Message: fmt.Sprintf("Price corrected to %s", resolved.Price),
			})
		}
	}

	// First pass fixes the subtotal so the coupon validates against fresh
	// numbers.
	c.Recompute(cart.RecomputeInputs{})

	var in cart.RecomputeInputs
	if c.CouponCode != nil {
		quote, err := s.coupons.ValidateCode(ctx, *c.CouponCode, c.Subtotal)
		var rejected *cart.CouponRejectedError
		switch {
		case errors.As(err, &rejected):
			if s.metrics != nil {
				s.metrics.RecordCouponRejected(ctx, string(rejected.Reason))
			}
			c.RemoveCoupon()
			notices = append(notices, Notice{
				Type:    NoticeCouponRemoved,
				Reason:  string(rejected.Reason),
				Message: fmt.Sprintf("Coupon %s no longer applies", rejected.Code),
			})
		case err != nil:
			return nil, err
		default:
			in.Discount = quote.Amount
		}
	}

	if c.ItemCount() > 0 {
		// Rate providers read the cart's Discount, so settle it first;
		// tax is owed on what the customer actually pays for the goods.
		c.Recompute(cart.RecomputeInputs{Discount: in.Discount})

		shipping, err := s.rates.ShippingFor(ctx, c)
		if err != nil {
			return nil, err
		}
		tax, err := s.rates.TaxFor(ctx, c)
		if err != nil {
			return nil, err
		}
		in.Shipping = shipping
		in.Tax = tax
	}

	c.Recompute(in)
	return notices, nil
}

// priceForLine resolves the add-time unit price for a new line from the
// catalog
func (s *CartService) priceForLine(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (decimal.Decimal, error) {
	seed := &cart.Item{}

	if variantID != nil {
		variant, err := s.catalog.GetVariant(ctx, *variantID)
		if err != nil {
			return decimal.Zero, err
		}
		if variant == nil || !variant.Active {
			return decimal.Zero, shared.NewDomainError("PRODUCT_UNAVAILABLE", "Product is not available")
		}
		if variant.ProductID != productID {
			return decimal.Zero, shared.NewDomainError("INVALID_INPUT", "Variant does not belong to the product")
		}
		resolved := s.resolver.Resolve(seed, variant, nil)
		if resolved.Unpriceable {
			return decimal.Zero, shared.NewDomainError("PRODUCT_UNAVAILABLE", "Product has no current price")
		}
		return resolved.Price, nil
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if product == nil || !product.Active {
		return decimal.Zero, shared.NewDomainError("PRODUCT_UNAVAILABLE", "Product is not available")
	}
	resolved := s.resolver.Resolve(seed, nil, product)
	if resolved.Unpriceable {
		return decimal.Zero, shared.NewDomainError("PRODUCT_UNAVAILABLE", "Product has no current price")
	}
	return resolved.Price, nil
}

// promote hands a guest cart to a user who had none of their own
func (s *CartService) promote(ctx context.Context, donor *cart.Cart, userID uuid.UUID) (*CartResponse, error) {
	release, err := s.locker.Acquire(ctx, donor.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	donor.Reactivate()
	if err := donor.PromoteToUser(userID); err != nil {
		return nil, err
	}

	notices, err := s.refresh(ctx, donor)
	if err != nil {
		return nil, err
	}

	if err := s.carts.SaveWithLock(ctx, donor); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordMerge(ctx)
	}

	response := ToCartResponse(donor, s.stamper.Stamp(donor), notices)
	return &response, nil
}

// lockPair acquires both cart locks in a canonical order so two concurrent
// merges cannot deadlock
func (s *CartService) lockPair(ctx context.Context, a, b uuid.UUID) (func(), error) {
	first, second := a, b
	if strings.Compare(b.String(), a.String()) < 0 {
		first, second = b, a
	}

	releaseFirst, err := s.locker.Acquire(ctx, first)
	if err != nil {
		return nil, err
	}
	releaseSecond, err := s.locker.Acquire(ctx, second)
	if err != nil {
		releaseFirst()
		return nil, err
	}
	return func() {
		releaseSecond()
		releaseFirst()
	}, nil
}

func (s *CartService) findCurrent(ctx context.Context, actor Actor) (*cart.Cart, error) {
	if actor.UserID != nil {
		return s.carts.FindCurrentByUser(ctx, *actor.UserID)
	}
	if actor.SessionID != nil {
		return s.carts.FindCurrentBySession(ctx, *actor.SessionID)
	}
	return nil, shared.NewDomainError("INVALID_INPUT", "Request carries no cart identity")
}

// getOrCreate loads the actor's current cart or persists a fresh empty one
func (s *CartService) getOrCreate(ctx context.Context, actor Actor) (*cart.Cart, error) {
	c, err := s.findCurrent(ctx, actor)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if actor.UserID != nil {
		c, err = cart.NewCartForUser(*actor.UserID, s.currency)
	} else {
		c, err = cart.NewCartForSession(*actor.SessionID, s.currency)
	}
	if err != nil {
		return nil, err
	}

	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}
