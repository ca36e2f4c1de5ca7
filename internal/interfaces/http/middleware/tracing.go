package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MaxRequestIDLength caps inbound request IDs; anything longer is
	// truncated before it reaches a span attribute.
	MaxRequestIDLength = 128
	// MaxSessionIDLength caps session IDs read from cookies.
	MaxSessionIDLength = 64
)

// Session cookies come from the client, so only well-formed UUIDs may enter
// trace attributes.
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns the default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "storefront-backend",
		Enabled:     true,
	}
}

// Tracing returns the OpenTelemetry tracing middleware with default
// configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin and enriches each server span with
// request_id, session_id and user_id attributes. Span names follow otelgin's
// "METHOD route_pattern" convention.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return noopMiddleware
	}

	otel := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		otel(c)

		// otelgin has created the span by now; attach shopper identity.
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			setIdentityAttributes(c, span)
		}
	}
}

// setIdentityAttributes records who issued the request on the current span.
func setIdentityAttributes(c *gin.Context, span trace.Span) {
	if requestID := traceRequestID(c); requestID != "" {
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if sessionID := traceSessionID(c); sessionID != "" {
		span.SetAttributes(attribute.String("session_id", sessionID))
	}
	if userID := traceUserID(c); userID != "" {
		span.SetAttributes(attribute.String("user_id", userID))
	}
}

// traceRequestID prefers the ID stamped by the RequestID middleware and
// falls back to the header, truncated to a safe length.
func traceRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok && id != "" {
			return id
		}
	}

	headerID := c.GetHeader("X-Request-ID")
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}

// traceSessionID reads the guest session from the identity middleware, or
// from the cookie when tracing runs earlier in the chain. Cookie values must
// parse as UUIDs before they are trusted.
func traceSessionID(c *gin.Context) string {
	if sessionID := GetSessionID(c); sessionID != "" {
		return sessionID
	}

	cookieSessionID, err := c.Cookie("cart_session")
	if err == nil && isValidSessionID(cookieSessionID) {
		return cookieSessionID
	}
	return ""
}

func isValidSessionID(sessionID string) bool {
	return len(sessionID) <= MaxSessionIDLength && uuidRegex.MatchString(sessionID)
}

func traceUserID(c *gin.Context) string {
	if userID, exists := c.Get(JWTUserIDKey); exists {
		if id, ok := userID.(string); ok {
			return id
		}
	}
	return ""
}

// SpanErrorMarker marks the active span with an error status on 4xx and 5xx
// responses. Place it after the Tracing middleware in the chain.
func SpanErrorMarker() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			return
		}

		statusCode := c.Writer.Status()
		if statusCode < http.StatusBadRequest {
			return
		}

		span.SetStatus(codes.Error, errorStatusMessage(statusCode))
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}

func errorStatusMessage(statusCode int) string {
	switch {
	case statusCode >= http.StatusInternalServerError:
		return "Internal Server Error"
	case statusCode == http.StatusUnauthorized:
		return "Unauthorized"
	case statusCode == http.StatusForbidden:
		return "Forbidden"
	case statusCode == http.StatusNotFound:
		return "Not Found"
	default:
		return "Client Error"
	}
}

// TracingAttributeInjector re-applies identity attributes to the current
// span. Place it after both the Tracing and JWT middleware so that user_id
// from freshly validated claims makes it onto the span.
func TracingAttributeInjector() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			setIdentityAttributes(c, span)
		}
		c.Next()
	}
}
