package routes

import (
	"net/http"
	"time"

	"family-backend/internal/api/handlers"
	"family-backend/internal/api/middleware"
	"family-backend/pkg/ratelimit"

	"github.com/acronis/go-appkit/log"
	"github.com/gin-gonic/gin"
)

// Deps carries everything the routes need. Store may be nil, which disables
// rate limiting; RedisClient may be nil when Redis is not in use.
type Deps struct {
	Store       ratelimit.Store
	RedisClient handlers.RedisChecker
	Defaults    ratelimit.Config
	Timeout     time.Duration
	Exempt      []string
	Tracker     ratelimit.EventTracker
	Logger      log.FieldLogger
	MetricsPath string
	Metrics     http.Handler
	UpstreamURL string
}

// Rules returns the per-route overrides: credentials, uploads and payment
// webhooks get their own budgets, sharing the default window.
func Rules(defaults ratelimit.Config) []ratelimit.Rule {
	return []ratelimit.Rule{
		{Prefix: "/api/auth", Config: ratelimit.Config{
			Interval: defaults.Interval,
			Limit:    10,
			Burst:    5,
			Refill:   defaults.Refill,
		}},
		{Prefix: "/api/upload", Config: ratelimit.Config{
			Interval: defaults.Interval,
			Limit:    20,
			Burst:    10,
			Cost:     2,
			Refill:   defaults.Refill,
		}},
		{Prefix: "/api/webhooks/billing", Config: ratelimit.Config{
			Interval: defaults.Interval,
			Limit:    300,
			Burst:    300,
			Refill:   defaults.Refill,
		}},
	}
}

func SetupRoutes(router *gin.Engine, deps Deps) (*ratelimit.Policy, error) {
	policy, err := ratelimit.NewPolicy(
		deps.Store,
		deps.Defaults,
		Rules(deps.Defaults),
		deps.Exempt,
		ratelimit.WithTimeout(deps.Timeout),
		ratelimit.WithTracker(deps.Tracker),
		ratelimit.WithLogger(deps.Logger),
	)
	if err != nil {
		return nil, err
	}

	router.Use(middleware.RateLimitMiddleware(policy))

	healthHandler := handlers.NewHealthHandler(deps.RedisClient, policy.Enabled())
	router.GET("/api/v1/health", healthHandler.HealthCheck)

	if deps.Metrics != nil && deps.MetricsPath != "" {
		router.GET(deps.MetricsPath, gin.WrapH(deps.Metrics))
	}

	if deps.UpstreamURL != "" {
		proxyHandler, err := handlers.NewProxyHandler(deps.UpstreamURL, deps.Logger)
		if err != nil {
			return nil, err
		}
		router.NoRoute(proxyHandler.Forward)
	}

	return policy, nil
}
