package cart

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/shared/valueobject"
)

// Status represents the lifecycle status of a cart
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusMerged    Status = "MERGED"
	StatusAbandoned Status = "ABANDONED"
	StatusConverted Status = "CONVERTED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusMerged, StatusAbandoned, StatusConverted:
		return true
	}
	return false
}

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true for states a cart never leaves
func (s Status) IsTerminal() bool {
	return s == StatusMerged || s == StatusConverted
}

// Item represents a line item owned exclusively by one cart.
// Line identity is the (product_id, variant_id) pair, not the row id.
type Item struct {
	ID          uuid.UUID
	CartID      uuid.UUID
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	PriceHealed bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName maps Item to the cart_items table
func (Item) TableName() string {
	return "cart_items"
}

func newItem(cartID, productID uuid.UUID, variantID *uuid.UUID, quantity int, unitPrice decimal.Decimal) (*Item, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if quantity < 1 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be a positive integer")
	}

	now := time.Now()
	return &Item{
		ID:         uuid.New(),
		CartID:     cartID,
		ProductID:  productID,
		VariantID:  variantID,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// matchesLine reports whether the item is the same line as (productID, variantID)
func (i *Item) matchesLine(productID uuid.UUID, variantID *uuid.UUID) bool {
	if i.ProductID != productID {
		return false
	}
	if i.VariantID == nil || variantID == nil {
		return i.VariantID == nil && variantID == nil
	}
	return *i.VariantID == *variantID
}

// setQuantity updates the quantity and recalculates the line total
func (i *Item) setQuantity(quantity int) error {
	if quantity < 1 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be a positive integer")
	}
	i.Quantity = quantity
	i.TotalPrice = i.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	i.UpdatedAt = time.Now()
	return nil
}

// SetUnitPrice replaces the unit price (resolver-healed or add-time snapshot)
// and recalculates the line total. healed marks the line as corrected so the
// change surfaces in the cart view.
func (i *Item) SetUnitPrice(unitPrice decimal.Decimal, healed bool) {
	i.UnitPrice = unitPrice
	i.TotalPrice = unitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
	i.PriceHealed = healed
	i.UpdatedAt = time.Now()
}

// UnitPriceMoney returns the unit price as Money in the cart's currency
func (i *Item) UnitPriceMoney(cur valueobject.Currency) valueobject.Money {
	m, _ := valueobject.NewMoney(i.UnitPrice, cur)
	return m
}

// Cart is the aggregate root for a shopping cart's monetary state.
// Subtotal, discount, shipping, tax and total are derived values: Recompute
// is the only routine that writes them, and every mutation ends with it.
type Cart struct {
	shared.BaseAggregateRoot
	UserID     *uuid.UUID
	SessionID  *string
	Status     Status
	CouponCode *string
	Currency   valueobject.Currency
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
	Items      []Item `gorm:"foreignKey:CartID"`
}

// TableName maps Cart to the carts table
func (Cart) TableName() string {
	return "carts"
}

// NewCartForUser creates an active cart owned by an authenticated user
func NewCartForUser(userID uuid.UUID, cur valueobject.Currency) (*Cart, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_OWNER", "User ID cannot be empty")
	}
	c := newCart(cur)
	c.UserID = &userID
	return c, nil
}

// NewCartForSession creates an active cart owned by a guest session
func NewCartForSession(sessionID string, cur valueobject.Currency) (*Cart, error) {
	if sessionID == "" {
		return nil, shared.NewDomainError("INVALID_OWNER", "Session ID cannot be empty")
	}
	c := newCart(cur)
	c.SessionID = &sessionID
	return c, nil
}

func newCart(cur valueobject.Currency) *Cart {
	return &Cart{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Status:            StatusActive,
		Currency:          cur,
		Subtotal:          decimal.Zero,
		Discount:          decimal.Zero,
		Shipping:          decimal.Zero,
		Tax:               decimal.Zero,
		Total:             decimal.Zero,
		Items:             make([]Item, 0),
	}
}

// CanModify returns true if cart contents may still change
func (c *Cart) CanModify() bool {
	return c.Status == StatusActive || c.Status == StatusAbandoned
}

// OwnedByUser reports whether the cart belongs to the given user
func (c *Cart) OwnedByUser(userID uuid.UUID) bool {
	return c.UserID != nil && *c.UserID == userID
}

// OwnedBySession reports whether the cart belongs to the given session
func (c *Cart) OwnedBySession(sessionID string) bool {
	return c.SessionID != nil && *c.SessionID == sessionID
}

// HasOwner reports whether any owner has been assigned
func (c *Cart) HasOwner() bool {
	return c.UserID != nil || c.SessionID != nil
}

// AddItem adds a line or, when a line with the same (product_id, variant_id)
// already exists, increments its quantity. Quantity zero is a validation
// error, never a removal.
func (c *Cart) AddItem(productID uuid.UUID, variantID *uuid.UUID, quantity int, unitPrice decimal.Decimal) (*Item, error) {
	if err := c.ensureModifiable(); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be a positive integer")
	}

	for idx := range c.Items {
		if c.Items[idx].matchesLine(productID, variantID) {
			if err := c.Items[idx].setQuantity(c.Items[idx].Quantity + quantity); err != nil {
				return nil, err
			}
			c.UpdatedAt = time.Now()
			return &c.Items[idx], nil
		}
	}

	item, err := newItem(c.ID, productID, variantID, quantity, unitPrice)
	if err != nil {
		return nil, err
	}

	c.Items = append(c.Items, *item)
	c.UpdatedAt = time.Now()
	return &c.Items[len(c.Items)-1], nil
}

// UpdateItemQuantity sets the quantity of an existing line.
// Quantity below one removes the line.
func (c *Cart) UpdateItemQuantity(itemID uuid.UUID, quantity int) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	if quantity < 1 {
		return c.RemoveItem(itemID)
	}

	for idx := range c.Items {
		if c.Items[idx].ID == itemID {
			if err := c.Items[idx].setQuantity(quantity); err != nil {
				return err
			}
			c.UpdatedAt = time.Now()
			return nil
		}
	}

	return shared.NewDomainError("ITEM_NOT_FOUND", "Cart item not found")
}

// RemoveItem deletes a line. Removing the last line keeps the cart so
// coupon and shipping state survive mid-checkout.
func (c *Cart) RemoveItem(itemID uuid.UUID) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}

	for idx, item := range c.Items {
		if item.ID == itemID {
			c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
			c.UpdatedAt = time.Now()
			return nil
		}
	}

	return shared.NewDomainError("ITEM_NOT_FOUND", "Cart item not found")
}

// Clear removes every line. Coupon and owner state are untouched.
func (c *Cart) Clear() error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	c.Items = c.Items[:0]
	c.UpdatedAt = time.Now()
	return nil
}

// ApplyCoupon stores the coupon reference. The discount amount itself is
// supplied to Recompute after the rules service validated the code.
// Applying a second code replaces the first.
func (c *Cart) ApplyCoupon(code string) error {
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	if code == "" {
		return shared.NewDomainError("INVALID_COUPON", "Coupon code cannot be empty")
	}
	c.CouponCode = &code
	c.UpdatedAt = time.Now()
	return nil
}

// RemoveCoupon clears the coupon reference. Removing when none is active
// is an idempotent no-op.
func (c *Cart) RemoveCoupon() {
	if c.CouponCode == nil {
		return
	}
	c.CouponCode = nil
	c.UpdatedAt = time.Now()
}

// RecomputeInputs carries the externally supplied figures for a
// recomputation: the validated discount quote and the shipping/tax amounts
// from the rate service.
type RecomputeInputs struct {
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

// Recompute derives every monetary field from the current lines: line totals
// from unit price and quantity, subtotal as their sum, the discount capped at
// the subtotal, and total = subtotal + shipping + tax - discount floored at
// zero. Unit prices must already be resolved (healed) by the price resolver.
func (c *Cart) Recompute(in RecomputeInputs) {
	subtotal := decimal.Zero
	for idx := range c.Items {
		item := &c.Items[idx]
		item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(item.TotalPrice)
	}
	c.Subtotal = subtotal

	discount := in.Discount
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if c.CouponCode == nil {
		discount = decimal.Zero
	}
	c.Discount = discount

	c.Shipping = in.Shipping
	c.Tax = in.Tax

	total := subtotal.Add(c.Shipping).Add(c.Tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	c.Total = total
	c.UpdatedAt = time.Now()
}

// MergeFrom folds every line of the donor cart into this cart, summing
// quantities for matching (product_id, variant_id) lines, then marks the
// donor merged. The caller persists both carts in one transaction.
func (c *Cart) MergeFrom(donor *Cart) error {
	if donor == nil || donor.ID == c.ID {
		return shared.NewDomainError("INVALID_MERGE", "Donor cart missing or same as recipient")
	}
	if err := c.ensureModifiable(); err != nil {
		return err
	}
	if !donor.CanModify() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot merge a cart in %s status", donor.Status))
	}

	now := time.Now()
	for _, donated := range donor.Items {
		merged := false
		for idx := range c.Items {
			if c.Items[idx].matchesLine(donated.ProductID, donated.VariantID) {
				if err := c.Items[idx].setQuantity(c.Items[idx].Quantity + donated.Quantity); err != nil {
					return err
				}
				merged = true
				break
			}
		}
		if !merged {
			moved := donated
			moved.ID = uuid.New()
			moved.CartID = c.ID
			moved.CreatedAt = now
			moved.UpdatedAt = now
			c.Items = append(c.Items, moved)
		}
	}

	donor.Items = donor.Items[:0]
	donor.Status = StatusMerged
	donor.UpdatedAt = now
	c.UpdatedAt = now
	return nil
}

// PromoteToUser reassigns a session-owned cart to an authenticated user.
// Used when the user had no active cart of their own at merge time.
func (c *Cart) PromoteToUser(userID uuid.UUID) error {
	if userID == uuid.Nil {
		return shared.NewDomainError("INVALID_OWNER", "User ID cannot be empty")
	}
	if c.UserID != nil {
		return shared.NewDomainError("INVALID_STATE", "Cart is already user-owned")
	}
	c.UserID = &userID
	c.SessionID = nil
	c.UpdatedAt = time.Now()
	return nil
}

// AssignSession assigns first-mutator ownership to a guest session. This is
// the only path by which ownership is assigned; it is never reassigned
// afterwards except via merge promotion.
func (c *Cart) AssignSession(sessionID string) error {
	if c.HasOwner() {
		return shared.NewDomainError("INVALID_STATE", "Cart ownership is already assigned")
	}
	if sessionID == "" {
		return shared.NewDomainError("INVALID_OWNER", "Session ID cannot be empty")
	}
	c.SessionID = &sessionID
	c.UpdatedAt = time.Now()
	return nil
}

// MarkConverted transitions the cart to its terminal converted state once an
// order has been placed from it.
func (c *Cart) MarkConverted() error {
	if c.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot convert a cart in %s status", c.Status))
	}
	c.Status = StatusConverted
	c.UpdatedAt = time.Now()
	return nil
}

// Abandon marks an idle cart abandoned. Not terminal: the owner's next
// mutation reactivates it.
func (c *Cart) Abandon() error {
	if c.Status != StatusActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot abandon a cart in %s status", c.Status))
	}
	c.Status = StatusAbandoned
	c.UpdatedAt = time.Now()
	return nil
}

// Reactivate returns an abandoned cart to active
func (c *Cart) Reactivate() {
	if c.Status == StatusAbandoned {
		c.Status = StatusActive
		c.UpdatedAt = time.Now()
	}
}

// GetItem returns a line by its ID
func (c *Cart) GetItem(itemID uuid.UUID) *Item {
	for idx := range c.Items {
		if c.Items[idx].ID == itemID {
			return &c.Items[idx]
		}
	}
	return nil
}

// ItemCount returns the number of lines in the cart
func (c *Cart) ItemCount() int {
	return len(c.Items)
}

// TotalMoney returns the cart total as Money
func (c *Cart) TotalMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(c.Total, c.Currency)
	return m
}

func (c *Cart) ensureModifiable() error {
	if !c.CanModify() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify a cart in %s status", c.Status))
	}
	return nil
}
