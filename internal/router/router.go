package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"                    // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // Echo's bundled middleware (recover, request id)
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/referral-tracker/internal/config"
	"github.com/iliyamo/referral-tracker/internal/handler"
	"github.com/iliyamo/referral-tracker/internal/metrics"
	"github.com/iliyamo/referral-tracker/internal/middleware"
	"github.com/iliyamo/referral-tracker/internal/model"
)

// Deps collects everything the routes need. Redis may be nil (mysql
// backend); the rate limiter and response cache are then disabled.
type Deps struct {
	Auth      *handler.AuthHandler
	Dashboard *handler.DashboardHandler
	Sessions  *middleware.SessionAuth
	Store     handler.Pinger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// New builds the Echo instance with the global middleware chain and all
// routes registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestContext())
	e.Use(d.Metrics.Middleware())
	// Every request gets its session resolved; guards decide per route.
	e.Use(d.Sessions.LoadSession())

	RegisterRoutes(e, d.Store, d.Gatherer)
	RegisterAuth(e, d.Auth, middleware.NewTokenBucket(d.RateLimit, d.Redis))
	RegisterDashboard(e, d.Dashboard, middleware.NewRedisCache(d.Cache, d.Redis))
	return e
}

// RegisterRoutes registers routes that do not require authentication:
// the health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, store handler.Pinger, g prometheus.Gatherer) {
	e.GET("/healthz", handler.Health(store))
	if g != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}
}

// RegisterAuth registers the signup, login, logout and password reset
// routes under /v1/auth and /v1/admin, all behind the rate limiter, plus
// GET /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/signup", a.Signup)
	g.POST("/login", a.Login)
	g.POST("/logout", a.Logout)
	g.POST("/reset", a.RequestReset)
	g.POST("/reset/confirm", a.ConfirmReset)

	e.POST("/v1/admin/signup", a.AdminSignup, limiter)
	e.POST("/v1/admin/login", a.AdminLogin, limiter)

	e.GET("/v1/me", a.Me, middleware.RequireAuth())
}

// RegisterDashboard registers the role-guarded dashboard routes. The
// admin overview is served through the response cache, which runs after
// the role check.
func RegisterDashboard(e *echo.Echo, d *handler.DashboardHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/dashboard", d.Affiliate, middleware.RequireRole(model.RoleAffiliate))

	adminOnly := middleware.RequireRole(model.RoleAdmin)
	e.GET("/v1/admin/overview", d.Overview, adminOnly, cache)
	e.POST("/v1/admin/invites", d.CreateInvite, adminOnly)
}
