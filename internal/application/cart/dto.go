package cart

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
)

// ==================== Requests ====================

// AddItemRequest represents a request to add a line to the cart.
// The unit price is never taken from the client; it is resolved from the
// catalog at add time.
type AddItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" binding:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest represents a request to set a line's quantity.
// Quantity zero removes the line.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// ApplyCouponRequest represents a request to apply a coupon code
type ApplyCouponRequest struct {
	Code string `json:"code" binding:"required,min=1,max=50"`
}

// VerifyCheckoutRequest carries the integrity stamp the client captured when
// it last rendered the cart
type VerifyCheckoutRequest struct {
	Stamp string `json:"stamp" binding:"required"`
}

// ==================== Notices ====================

// Notice types surfaced alongside a cart response
const (
	NoticePriceHealed   = "price_healed"
	NoticeUnpriceable   = "item_unpriceable"
	NoticeCouponRemoved = "coupon_removed"
)

// Notice tells the client about a server-side correction that happened while
// building the response: a healed price, an unpriceable line, or a coupon
// that no longer validates.
type Notice struct {
	Type    string     `json:"type"`
	ItemID  *uuid.UUID `json:"item_id,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	Message string     `json:"message"`
}

// ==================== Responses ====================

// CartItemResponse represents a cart line in API responses
type CartItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	VariantID   *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	PriceHealed bool            `json:"price_healed,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CartResponse represents a cart in API responses. Stamp is the integrity
// stamp over the response's monetary state; the client echoes it back on
// checkout verification.
type CartResponse struct {
	ID         uuid.UUID          `json:"id"`
	Status     string             `json:"status"`
	Currency   string             `json:"currency"`
	CouponCode *string            `json:"coupon_code,omitempty"`
	Items      []CartItemResponse `json:"items,omitempty"`
	ItemCount  int                `json:"item_count"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	Discount   decimal.Decimal    `json:"discount"`
	Shipping   decimal.Decimal    `json:"shipping"`
	Tax        decimal.Decimal    `json:"tax"`
	Total      decimal.Decimal    `json:"total"`
	Stamp      string             `json:"stamp"`
	Notices    []Notice           `json:"notices,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	Version    int                `json:"version"`
}

// Checkout verification outcomes
const (
	VerifyOK                = "ok"
	VerifyPriceChanged      = "price_changed"
	VerifyIntegrityMismatch = "integrity_mismatch"
)

// CheckoutVerification is the result of a checkout verification: the outcome
// plus the fresh cart view (and fresh stamp) the client should reconcile
// against.
type CheckoutVerification struct {
	Status string       `json:"status"`
	Cart   CartResponse `json:"cart"`
}

// ToCartItemResponse converts a domain cart item to a response DTO
func ToCartItemResponse(item *cart.Item) CartItemResponse {
	return CartItemResponse{
		ID:          item.ID,
		ProductID:   item.ProductID,
		VariantID:   item.VariantID,
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		TotalPrice:  item.TotalPrice,
		PriceHealed: item.PriceHealed,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
}

// ==================== View building ====================

// Expansions selects which optional collections a cart view carries. The
// summary fields (totals, status, stamp) are always present; only the line
// and notice collections are elective.
type Expansions struct {
	Items   bool
	Notices bool
}

// ExpandAll is the full view. Every mutating endpoint returns it so the
// client always sees the lines it just changed.
var ExpandAll = Expansions{Items: true, Notices: true}

// ParseExpansions parses a comma-separated expand parameter into an
// expansion set. An empty parameter selects the full view; an unknown token
// is rejected rather than silently ignored.
func ParseExpansions(raw string) (Expansions, error) {
	if strings.TrimSpace(raw) == "" {
		return ExpandAll, nil
	}

	var exp Expansions
	for _, token := range strings.Split(raw, ",") {
		switch strings.TrimSpace(token) {
		case "items":
			exp.Items = true
		case "notices":
			exp.Notices = true
		case "":
			// tolerate a trailing comma
		default:
			return Expansions{}, shared.NewDomainError("INVALID_INPUT",
				fmt.Sprintf("Unknown expansion %q", strings.TrimSpace(token)))
		}
	}
	return exp, nil
}

// BuildCartView converts a domain cart into a response DTO carrying exactly
// the requested expansions. Whether a collection appears depends only on the
// expansion set, never on the cart's contents.
func BuildCartView(c *cart.Cart, stamp string, notices []Notice, exp Expansions) CartResponse {
	resp := CartResponse{
		ID:         c.ID,
		Status:     c.Status.String(),
		Currency:   string(c.Currency),
		CouponCode: c.CouponCode,
		ItemCount:  c.ItemCount(),
		Subtotal:   c.Subtotal,
		Discount:   c.Discount,
		Shipping:   c.Shipping,
		Tax:        c.Tax,
		Total:      c.Total,
		Stamp:      stamp,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		Version:    c.Version,
	}

	if exp.Items {
		items := make([]CartItemResponse, len(c.Items))
		for idx := range c.Items {
			items[idx] = ToCartItemResponse(&c.Items[idx])
		}
		resp.Items = items
	}
	if exp.Notices {
		resp.Notices = notices
	}
	return resp
}

// ToCartResponse converts a domain cart to its full response DTO
func ToCartResponse(c *cart.Cart, stamp string, notices []Notice) CartResponse {
	return BuildCartView(c, stamp, notices, ExpandAll)
}
