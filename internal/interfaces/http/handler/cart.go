package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appcart "github.com/storefront/backend/internal/application/cart"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// CartHandler handles cart API endpoints
type CartHandler struct {
	BaseHandler
	cartService *appcart.CartService
}

// NewCartHandler creates a new CartHandler
func NewCartHandler(cartService *appcart.CartService) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

// actorFrom builds the caller's identity from the request context. An
// authenticated user keeps their session identity alongside the user one so
// the merge endpoint can see both.
func actorFrom(c *gin.Context) appcart.Actor {
	actor := appcart.Actor{
		Route: c.FullPath(),
		IP:    c.ClientIP(),
	}
	if userID, err := getUserID(c); err == nil {
		actor.UserID = &userID
	}
	if sessionID := middleware.GetSessionID(c); sessionID != "" {
		actor.SessionID = &sessionID
	}
	return actor
}

// Get godoc
// @Summary      Get the current cart
// @Description  Returns the caller's current cart with prices refreshed from the catalog. 404 when the caller has no cart; carts are created by the first mutation. The expand parameter narrows the view to the listed collections.
// @Tags         cart
// @Produce      json
// @Param        expand query string false "Comma-separated collections to include (items, notices); omitted means all"
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cart [get]
func (h *CartHandler) Get(c *gin.Context) {
	expansions, err := appcart.ParseExpansions(c.Query("expand"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp, err := h.cartService.GetCart(c.Request.Context(), actorFrom(c), expansions)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// AddItem godoc
// @Summary      Add an item to the cart
// @Description  Adds a product line to the cart. The unit price is resolved server-side from the catalog; client-supplied prices are ignored.
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        request body cart.AddItemRequest true "Item to add"
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cart/items [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req appcart.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.cartService.AddItem(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// UpdateItem godoc
// @Summary      Update an item's quantity
// @Description  Sets a cart line's quantity. Quantity zero removes the line.
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        id path string true "Cart item ID"
// @Param        request body cart.UpdateItemRequest true "New quantity"
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cart/items/{id} [put]
func (h *CartHandler) UpdateItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid item ID format")
		return
	}

	var req appcart.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.cartService.UpdateItem(c.Request.Context(), actorFrom(c), itemID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RemoveItem godoc
// @Summary      Remove an item from the cart
// @Tags         cart
// @Produce      json
// @Param        id path string true "Cart item ID"
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cart/items/{id} [delete]
func (h *CartHandler) RemoveItem(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid item ID format")
		return
	}

	resp, err := h.cartService.RemoveItem(c.Request.Context(), actorFrom(c), itemID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Clear godoc
// @Summary      Clear the cart
// @Description  Removes every line from the cart. The coupon, if any, stays applied and re-validates on the next refresh.
// @Tags         cart
// @Produce      json
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cart [delete]
func (h *CartHandler) Clear(c *gin.Context) {
	resp, err := h.cartService.Clear(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// ApplyCoupon godoc
// @Summary      Apply a coupon code
// @Description  Validates the code against the current subtotal and applies it. A rejected code returns 422 with the typed rejection reason.
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        request body cart.ApplyCouponRequest true "Coupon code"
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cart/coupon [post]
func (h *CartHandler) ApplyCoupon(c *gin.Context) {
	var req appcart.ApplyCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.cartService.ApplyCoupon(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// RemoveCoupon godoc
// @Summary      Remove the active coupon
// @Description  Clears any active coupon. Removing when none is active is a no-op that still returns the recomputed cart.
// @Tags         cart
// @Produce      json
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Router       /cart/coupon [delete]
func (h *CartHandler) RemoveCoupon(c *gin.Context) {
	resp, err := h.cartService.RemoveCoupon(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Merge godoc
// @Summary      Merge the guest cart into the user cart
// @Description  Folds the caller's guest-session cart into their user cart after login. Requires both an authenticated user and a session cookie.
// @Tags         cart
// @Produce      json
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /cart/merge [post]
func (h *CartHandler) Merge(c *gin.Context) {
	resp, err := h.cartService.Merge(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// VerifyCheckout godoc
// @Summary      Verify the cart before checkout
// @Description  Recomputes the cart and checks the client's integrity stamp against it. The response reports ok, price_changed, or integrity_mismatch with the fresh cart so the client can reconcile.
// @Tags         cart
// @Accept       json
// @Produce      json
// @Param        request body cart.VerifyCheckoutRequest true "Stamp from the last cart response"
// @Success      200 {object} dto.Response{data=cart.CheckoutVerification}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /cart/checkout/verify [post]
func (h *CartHandler) VerifyCheckout(c *gin.Context) {
	var req appcart.VerifyCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	resp, err := h.cartService.VerifyCheckout(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// MarkConverted godoc
// @Summary      Mark a cart as converted
// @Description  Transitions a cart to its terminal converted state once an order has been placed from it.
// @Tags         cart
// @Produce      json
// @Param        id path string true "Cart ID"
// @Success      200 {object} dto.Response{data=cart.CartResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /carts/{id}/convert [post]
func (h *CartHandler) MarkConverted(c *gin.Context) {
	cartID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid cart ID format")
		return
	}

	resp, err := h.cartService.MarkConverted(c.Request.Context(), actorFrom(c), cartID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
