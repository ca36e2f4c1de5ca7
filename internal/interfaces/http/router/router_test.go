package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func textHandler(status int, body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(status, body)
	}
}

func TestNewRouterDefaults(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterMountsUnderVersionPrefix(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("cart", "/cart")
	group.GET("/ping", textHandler(http.StatusOK, "pong"))

	NewRouter(engine).Register(group).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/cart/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterMiddlewareAppliesToAPIGroup(t *testing.T) {
	engine := gin.New()
	group := NewDomainGroup("cart", "/cart")
	group.GET("", textHandler(http.StatusOK, "ok"))

	NewRouter(engine).
		Use(func(c *gin.Context) {
			c.Header("X-API-Middleware", "applied")
			c.Next()
		}).
		Register(group).
		Setup()

	w := serve(engine, http.MethodGet, "/api/v1/cart")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "applied", w.Header().Get("X-API-Middleware"))
}

func TestDomainGroupNameAndPrefix(t *testing.T) {
	g := NewDomainGroup("cart", "/cart")

	assert.Equal(t, "cart", g.Name())
	assert.Equal(t, "/cart", g.Prefix())
}

func TestDomainGroupMethods(t *testing.T) {
	tests := []struct {
		method     string
		register   func(*DomainGroup, string, gin.HandlerFunc) *DomainGroup
		path       string
		requestURL string
		wantStatus int
	}{
		{http.MethodGet, func(g *DomainGroup, p string, h gin.HandlerFunc) *DomainGroup { return g.GET(p, h) },
			"/items", "/api/v1/cart/items", http.StatusOK},
		{http.MethodPost, func(g *DomainGroup, p string, h gin.HandlerFunc) *DomainGroup { return g.POST(p, h) },
			"/items", "/api/v1/cart/items", http.StatusCreated},
		{http.MethodPut, func(g *DomainGroup, p string, h gin.HandlerFunc) *DomainGroup { return g.PUT(p, h) },
			"/items/:id", "/api/v1/cart/items/123", http.StatusOK},
		{http.MethodDelete, func(g *DomainGroup, p string, h gin.HandlerFunc) *DomainGroup { return g.DELETE(p, h) },
			"/items/:id", "/api/v1/cart/items/123", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			engine := gin.New()
			g := NewDomainGroup("cart", "/cart")
			tt.register(g, tt.path, textHandler(tt.wantStatus, ""))
			g.RegisterRoutes(engine.Group("/api/v1"))

			assert.Equal(t, tt.wantStatus, serve(engine, tt.method, tt.requestURL).Code)
		})
	}
}

func TestDomainGroupMiddleware(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("cart", "/cart")
	g.Use(func(c *gin.Context) {
		c.Header("X-Group-Middleware", "applied")
		c.Next()
	})
	g.GET("/items", textHandler(http.StatusOK, "ok"))
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := serve(engine, http.MethodGet, "/api/v1/cart/items")
	assert.Equal(t, "applied", w.Header().Get("X-Group-Middleware"))
}

func TestMultipleDomainGroups(t *testing.T) {
	engine := gin.New()

	cart := NewDomainGroup("cart", "/cart")
	cart.GET("/items", textHandler(http.StatusOK, "items"))

	carts := NewDomainGroup("carts", "/carts")
	carts.POST("/:id/convert", textHandler(http.StatusOK, "converted"))

	NewRouter(engine).Register(cart).Register(carts).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/cart/items")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "items", w.Body.String())

	w = serve(engine, http.MethodPost, "/api/v1/carts/abc/convert")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "converted", w.Body.String())
}

func TestDomainGroupChaining(t *testing.T) {
	engine := gin.New()

	g := NewDomainGroup("cart", "/cart")
	g.GET("", textHandler(http.StatusOK, "get")).
		POST("/coupon", textHandler(http.StatusOK, "apply")).
		DELETE("/coupon", textHandler(http.StatusOK, "remove"))

	NewRouter(engine).Register(g).Setup()

	for _, rt := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/cart"},
		{http.MethodPost, "/api/v1/cart/coupon"},
		{http.MethodDelete, "/api/v1/cart/coupon"},
	} {
		assert.Equal(t, http.StatusOK, serve(engine, rt.method, rt.path).Code, "%s %s", rt.method, rt.path)
	}
}
