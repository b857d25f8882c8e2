package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // Echo web framework used for routing
	"github.com/redis/go-redis/v9"

	"github.com/resotel/tariff-conventions/internal/config"
	"github.com/resotel/tariff-conventions/internal/handler"
	"github.com/resotel/tariff-conventions/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check,
// used by load balancers and monitoring to verify the service is up.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterPricing registers the read path of the engine.  Resolution and
// the listing endpoints are pure reads, so they sit behind the Redis
// response cache; rate limiting applies to everything.  These endpoints
// are consumed by reservation pricing and billing, which authenticate at
// the platform edge, so no JWT is enforced here.
func RegisterPricing(e *echo.Echo, p *handler.PricingHandler, conv *handler.ConventionHandler, rdb *redis.Client) {
	cacheCfg := config.LoadCacheConfig()
	cache := middleware.NewRedisCache(cacheCfg, rdb)

	// Per-night price resolution, called once per stay night by
	// reservation pricing to build a total.
	e.GET("/v1/pricing/resolve", p.ResolvePrice, cache)
	// Convention listings for the administration UI and reporting.
	e.GET("/v1/clients/:id/conventions", conv.ListByClient, cache)
	e.GET("/v1/conventions", conv.ListByPeriod, cache)
	e.GET("/v1/conventions/:id", conv.GetByID, cache)
	// Pre-submission conflict probe for the administration UI.  Not
	// cached: a stale answer here would defeat its purpose.
	e.GET("/v1/conventions/check-overlap", conv.CheckOverlap)
}

// RegisterAdmin registers the write path.  Every route requires a valid
// access token carrying the ADMIN role; tokens are issued by the
// platform's auth service and only verified here.
func RegisterAdmin(e *echo.Echo, conv *handler.ConventionHandler, jwtSecret string) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole("ADMIN"))

	// Create or fully replace a convention.  The only write path into
	// the convention store.
	g.POST("/conventions", conv.Upsert)
	// Activate or deactivate an agreement.
	g.PATCH("/conventions/:id/status", conv.SetStatus)
	// Administrative removal.
	g.DELETE("/conventions/:id", conv.Delete)
}
