package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/cart"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// respond runs fn against a fresh test context and decodes the envelope.
func respond(t *testing.T, fn func(h *BaseHandler, c *gin.Context)) (int, dto.Response) {
	t.Helper()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	fn(&BaseHandler{}, c)

	var resp dto.Response
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*gin.Context)
		want  string
	}{
		{"from context", func(c *gin.Context) {
			c.Set(RequestIDKey, "ctx-request-id")
		}, "ctx-request-id"},
		{"from header when context empty", func(c *gin.Context) {
			c.Request.Header.Set(RequestIDKey, "header-request-id")
		}, "header-request-id"},
		{"empty when unset", func(c *gin.Context) {}, ""},
		{"context wins over header", func(c *gin.Context) {
			c.Set(RequestIDKey, "ctx-id")
			c.Request.Header.Set(RequestIDKey, "header-id")
		}, "ctx-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/", nil)
			tt.setup(c)

			assert.Equal(t, tt.want, getRequestID(c))
		})
	}
}

func TestBaseHandlerSuccess(t *testing.T) {
	code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		h.Success(c, map[string]string{"cart_id": "abc"})
	})

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestBaseHandlerSuccessWithMeta(t *testing.T) {
	code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		h.SuccessWithMeta(c, []string{"line1", "line2"}, 100, 1, 10)
	})

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(100), resp.Meta.Total)
}

func TestBaseHandlerCreated(t *testing.T) {
	code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		h.Created(c, map[string]string{"id": "123"})
	})

	assert.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)
}

func TestBaseHandlerNoContent(t *testing.T) {
	h := &BaseHandler{}
	router := gin.New()
	router.DELETE("/carts/items/1", func(c *gin.Context) {
		h.NoContent(c)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/carts/items/1", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	tests := []struct {
		name     string
		send     func(*BaseHandler, *gin.Context)
		wantCode int
		wantErr  string
	}{
		{"BadRequest", func(h *BaseHandler, c *gin.Context) { h.BadRequest(c, "Invalid request") },
			http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"NotFound", func(h *BaseHandler, c *gin.Context) { h.NotFound(c, "Cart not found") },
			http.StatusNotFound, dto.ErrCodeNotFound},
		{"Unauthorized", func(h *BaseHandler, c *gin.Context) { h.Unauthorized(c, "Not authenticated") },
			http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"Forbidden", func(h *BaseHandler, c *gin.Context) { h.Forbidden(c, "Access denied") },
			http.StatusForbidden, dto.ErrCodeForbidden},
		{"Conflict", func(h *BaseHandler, c *gin.Context) { h.Conflict(c, "Version conflict") },
			http.StatusConflict, dto.ErrCodeConflict},
		{"InternalError", func(h *BaseHandler, c *gin.Context) { h.InternalError(c, "Server error") },
			http.StatusInternalServerError, dto.ErrCodeInternal},
		{"TooManyRequests", func(h *BaseHandler, c *gin.Context) { h.TooManyRequests(c, "Rate limit exceeded") },
			http.StatusTooManyRequests, dto.ErrCodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := respond(t, tt.send)

			assert.Equal(t, tt.wantCode, code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
		})
	}
}

func TestBaseHandlerErrorCarriesRequestID(t *testing.T) {
	_, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		c.Set(RequestIDKey, "test-request-123")
		h.BadRequest(c, "Invalid request")
	})

	assert.Equal(t, "test-request-123", resp.Error.RequestID)
}

func TestBaseHandlerErrorWithCode(t *testing.T) {
	code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		h.ErrorWithCode(c, dto.ErrCodeProductUnavailable, "Product cannot be added")
	})

	// Business rule violations map to 422.
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, dto.ErrCodeProductUnavailable, resp.Error.Code)
}

func TestBaseHandlerUnprocessableEntity(t *testing.T) {
	code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		h.UnprocessableEntity(c, dto.ErrCodeBusinessRule, "Business rule violated")
	})

	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, dto.ErrCodeBusinessRule, resp.Error.Code)
}

func TestBaseHandlerValidationError(t *testing.T) {
	code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		c.Set(RequestIDKey, "val-req-456")
		h.ValidationError(c, []dto.ValidationDetail{
			{Field: "quantity", Message: "Must be positive"},
			{Field: "coupon_code", Message: "Required"},
		})
	})

	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "val-req-456", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
}

func TestBaseHandlerHandleDomainError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"already exists", shared.ErrAlreadyExists, http.StatusConflict, dto.ErrCodeAlreadyExists},
		{"invalid input", shared.ErrInvalidInput, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, dto.ErrCodeUnauthorized},
		{"forbidden", shared.ErrForbidden, http.StatusForbidden, dto.ErrCodeForbidden},
		{"invalid state", shared.ErrInvalidState, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"concurrency conflict", shared.ErrConcurrencyConflict, http.StatusConflict, dto.ErrCodeConcurrencyConflict},
		// Ownership denials must look identical to a missing cart.
		{"ownership violation reported as not found", shared.ErrOwnership, http.StatusNotFound, dto.ErrCodeNotFound},
		{"cart locked", shared.ErrCartLocked, http.StatusConflict, dto.ErrCodeCartLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
				h.HandleDomainError(c, tt.err)
			})

			assert.Equal(t, tt.wantCode, code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
		})
	}
}

func TestBaseHandlerHandleDomainErrorWithRequestID(t *testing.T) {
	_, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
		c.Set(RequestIDKey, "domain-err-req")
		h.HandleDomainError(c, shared.ErrNotFound)
	})

	assert.Equal(t, "domain-err-req", resp.Error.RequestID)
}

func TestBaseHandlerHandleError(t *testing.T) {
	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("GET", "/", nil)

		(&BaseHandler{}).HandleError(c, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("domain error", func(t *testing.T) {
		code, _ := respond(t, func(h *BaseHandler, c *gin.Context) {
			h.HandleError(c, shared.ErrNotFound)
		})
		assert.Equal(t, http.StatusNotFound, code)
	})

	t.Run("plain error hides detail behind a 500", func(t *testing.T) {
		code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
			h.HandleError(c, assert.AnError)
		})

		assert.Equal(t, http.StatusInternalServerError, code)
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
		assert.Equal(t, "An unexpected error occurred", resp.Error.Message)
	})

	t.Run("coupon rejection", func(t *testing.T) {
		code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
			h.HandleError(c, &cart.CouponRejectedError{Code: "SAVE20", Reason: cart.RejectExpired})
		})

		assert.Equal(t, http.StatusUnprocessableEntity, code)
		assert.Equal(t, dto.ErrCodeCouponRejected, resp.Error.Code)
	})

	t.Run("wrapped domain error", func(t *testing.T) {
		code, resp := respond(t, func(h *BaseHandler, c *gin.Context) {
			h.HandleError(c, fmt.Errorf("loading cart: %w", shared.ErrNotFound))
		})

		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	})
}
