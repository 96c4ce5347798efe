package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/stay-reservation/internal/config"
	"github.com/iliyamo/stay-reservation/internal/handler"
	"github.com/iliyamo/stay-reservation/internal/middleware"
	"github.com/iliyamo/stay-reservation/internal/model"
)

// Deps is everything the route table needs.  Redis may be nil; the cache
// and the rate limiter then pass requests straight through.
type Deps struct {
	JWTSecret string
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig

	Health    echo.HandlerFunc
	Auth      *handler.AuthHandler
	Resources *handler.ResourceHandler
	Bookings  *handler.BookingHandler
}

// Register wires every route on e.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d.Health)
	RegisterAuth(e, d.Auth, d.JWTSecret)
	RegisterPublic(e, d.Resources, middleware.NewRedisCache(d.Cache, d.Redis))

	auth := middleware.JWTAuth(d.JWTSecret)
	limit := middleware.NewTokenBucket(d.RateLimit, d.Redis)
	RegisterBookings(e, d.Bookings, auth, limit)
	RegisterHost(e, d.Resources, d.Bookings, auth, limit)
	RegisterAdmin(e, d.Bookings, auth, limit)
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers the account endpoints.  Register and login are
// open; /v1/me needs a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterPublic registers the catalog and availability endpoints.  Only
// the catalog listings sit behind the response cache; availability must
// always reflect the latest commit.
func RegisterPublic(e *echo.Echo, r *handler.ResourceHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/properties", r.ListProperties, cache)
	e.GET("/v1/tours", r.ListTours, cache)

	e.GET("/v1/resources/:kind/:id", r.Get)
	e.GET("/v1/resources/:kind/:id/availability", r.Availability)
	e.GET("/v1/resources/:kind/:id/blocked", r.Blocked)
}

// RegisterBookings registers the booking routes open to every
// authenticated role.  Which bookings a caller sees is decided by the
// service, not here.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1/bookings", mw...)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/export", h.Export)
	g.GET("/:id", h.Get)
	g.PATCH("/:id/dates", h.ModifyDates)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/attachments", h.AddAttachments)
	g.DELETE("/:id/attachments", h.RemoveAttachment)
}

// RegisterHost registers HOST and ADMIN endpoints: resource management and
// booking status updates.
func RegisterHost(e *echo.Echo, r *handler.ResourceHandler, b *handler.BookingHandler, mw ...echo.MiddlewareFunc) {
	mw = append(mw, middleware.RequireRole(model.RoleHost, model.RoleAdmin))

	e.PATCH("/v1/bookings/:id/status", b.UpdateStatus, mw...)

	g := e.Group("/v1/host", mw...)
	g.POST("/properties", r.CreateProperty)
	g.POST("/tours", r.CreateTour)
	g.GET("/resources", r.HostList)
	g.PATCH("/resources/:kind/:id/status", r.SetStatus)
}

// RegisterAdmin registers ADMIN-only endpoints.
func RegisterAdmin(e *echo.Echo, b *handler.BookingHandler, mw ...echo.MiddlewareFunc) {
	mw = append(mw, middleware.RequireRole(model.RoleAdmin))
	g := e.Group("/v1/admin", mw...)
	g.DELETE("/bookings/:id", b.Delete)
}
