package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/config"
	"github.com/iliyamo/weighbridge-ops/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/weighbridge-ops/internal/middleware" // import middleware for JWT authentication and permission enforcement
	"github.com/iliyamo/weighbridge-ops/internal/model"
	"github.com/iliyamo/weighbridge-ops/internal/utils"
)

// Deps is everything the HTTP surface needs. Redis may be nil: the rate
// limiter then keeps its buckets in memory and the response cache is off.
type Deps struct {
	Cfg         config.Config
	RateLimit   config.RateLimitConfig
	Cache       config.CacheConfig
	DB          *sql.DB
	Redis       *redis.Client
	Log         *zap.Logger
	Tokens      *utils.TokenIssuer
	Permissions middleware.PermissionChecker

	Auth  *handler.AuthHandler
	Users *handler.UserHandler
	Items *handler.ItemHandler
}

// New builds the Echo instance with the global middleware chain and every
// route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)

	e.Use(
		echomw.RequestID(),
		middleware.RequestLogger(d.Log),
		middleware.Metrics(),
		echomw.Recover(),
		echomw.BodyLimit("1M"),
		echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     []string{d.Cfg.FrontendURL},
			AllowCredentials: true,
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		}),
	)

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	protected := middleware.JWTAuth(d.Tokens)
	RegisterUsers(e, d.Users, protected, d.Permissions, middleware.NewRedisCache(d.Cache, d.Redis, d.Log), d.Log)
	RegisterItems(e, d.Items, protected, d.Permissions, d.Log)
	return e
}

// RegisterRoutes registers routes that do not require authentication: the
// health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers the session endpoints under /api/auth. The
// credential endpoints sit behind the rate limiter; refresh and logout do
// not, since they only ever act on a cookie the server issued.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/forgot-password", a.ForgotPassword, limiter)
	g.POST("/reset-password/:token", a.ResetPassword, limiter)
}

// RegisterUsers registers /api/users. Every route needs a valid access
// token plus the named permission; /roles is additionally served from the
// response cache.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, auth echo.MiddlewareFunc, perms middleware.PermissionChecker, cache echo.MiddlewareFunc, log *zap.Logger) {
	need := func(p string) echo.MiddlewareFunc { return middleware.RequirePermission(perms, p, log) }

	g := e.Group("/api/users", auth)
	g.GET("/profile", u.Profile, need(model.PermReadProfile))
	g.GET("", u.List, need(model.PermReadUsers))
	g.POST("", u.Create, need(model.PermCreateUser))
	g.GET("/roles", u.ListRoles, need(model.PermReadUsers), cache)
	g.GET("/:id", u.Get, need(model.PermReadUsers))
	g.PUT("/:id", u.Update, need(model.PermUpdateUser))
	g.DELETE("/:id", u.Delete, need(model.PermDeleteUser))
}

// RegisterItems registers /api/items behind the authentication gate.
func RegisterItems(e *echo.Echo, it *handler.ItemHandler, auth echo.MiddlewareFunc, perms middleware.PermissionChecker, log *zap.Logger) {
	need := func(p string) echo.MiddlewareFunc { return middleware.RequirePermission(perms, p, log) }

	g := e.Group("/api/items", auth)
	g.GET("", it.List, need(model.PermReadItems))
	g.GET("/:id", it.Get, need(model.PermReadItems))
	g.POST("", it.Create, need(model.PermCreateItem))
	g.PUT("/:id", it.Update, need(model.PermUpdateItem))
	g.DELETE("/:id", it.Delete, need(model.PermDeleteItem))
}
