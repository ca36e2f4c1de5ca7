package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity context keys
const (
	SessionIDKey = "cart_session_id"
	OwnerKindKey = "owner_kind"
)

// Owner kinds as stored in the gin context. They feed metrics and profiling
// labels, so they must stay low cardinality.
const (
	OwnerKindUser      = "user"
	OwnerKindSession   = "session"
	OwnerKindAnonymous = "anonymous"
)

// IdentityConfig holds configuration for the identity middleware
type IdentityConfig struct {
	// CookieName is the name of the guest session cookie
	CookieName string
	// CookieMaxAge is how long the session cookie lives in the browser
	CookieMaxAge time.Duration
	// Secure marks the cookie as HTTPS-only
	Secure bool
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultIdentityConfig returns default identity middleware configuration
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		CookieName:   "cart_session",
		CookieMaxAge: 30 * 24 * time.Hour,
		Secure:       false,
		Logger:       nil,
	}
}

// IdentityMiddleware establishes the shopper identity for the request. It
// must run after the optional JWT middleware: an authenticated user keeps any
// existing session cookie (the merge endpoint needs it) but is never issued a
// new one. A guest with no cookie gets a fresh session ID, set as an HttpOnly
// cookie and available to handlers in the same request.
func IdentityMiddleware(cfg IdentityConfig) gin.HandlerFunc {
	if cfg.CookieName == "" {
		cfg.CookieName = "cart_session"
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = 30 * 24 * time.Hour
	}

	return func(c *gin.Context) {
		sessionID, err := c.Cookie(cfg.CookieName)
		if err != nil || sessionID == "" {
			sessionID = ""
		} else if _, parseErr := uuid.Parse(sessionID); parseErr != nil {
			// A malformed cookie is treated as absent rather than an error.
			sessionID = ""
		}

		authenticated := GetJWTUserID(c) != ""

		if sessionID == "" && !authenticated {
			sessionID = uuid.New().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cfg.CookieName, sessionID, int(cfg.CookieMaxAge.Seconds()), "/", "", cfg.Secure, true)
			if cfg.Logger != nil {
				cfg.Logger.Debug("issued guest session",
					zap.String("session_id", sessionID),
					zap.String("path", c.Request.URL.Path),
				)
			}
		}

		if sessionID != "" {
			c.Set(SessionIDKey, sessionID)
		}
		c.Set(OwnerKindKey, ownerKind(authenticated, sessionID))

		c.Next()
	}
}

func ownerKind(authenticated bool, sessionID string) string {
	switch {
	case authenticated:
		return OwnerKindUser
	case sessionID != "":
		return OwnerKindSession
	default:
		return OwnerKindAnonymous
	}
}

// GetSessionID retrieves the guest session ID from gin.Context
func GetSessionID(c *gin.Context) string {
	if sessionID, exists := c.Get(SessionIDKey); exists {
		if id, ok := sessionID.(string); ok {
			return id
		}
	}
	return ""
}

// GetOwnerKind retrieves the owner kind from gin.Context
func GetOwnerKind(c *gin.Context) string {
	if kind, exists := c.Get(OwnerKindKey); exists {
		if k, ok := kind.(string); ok {
			return k
		}
	}
	return OwnerKindAnonymous
}
