package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"family-backend/internal/api/routes"
	"family-backend/internal/config"
	"family-backend/internal/observability"
	"family-backend/pkg/ratelimit"
	"family-backend/pkg/redis"

	"github.com/acronis/go-appkit/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger, closeLog := log.NewLogger(log.NewDefaultConfig())
		logger.Error("failed to load configuration", log.Error(err))
		closeLog()
		os.Exit(1)
	}

	logger, closeLog := log.NewLogger(cfg.Log.Logger())
	err = run(cfg, logger)
	if err != nil {
		logger.Error("server stopped with error", log.Error(err))
	}
	closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger log.FieldLogger) error {
	deps := routes.Deps{
		Defaults:    cfg.RateLimit.Default,
		Timeout:     cfg.RateLimit.Timeout,
		Exempt:      cfg.RateLimit.Exempt,
		Logger:      logger,
		MetricsPath: cfg.MetricsPath,
		UpstreamURL: cfg.UpstreamURL,
	}

	// Select the rate limit store
	switch {
	case cfg.RateLimit.Store == config.StoreMemory:
		store := ratelimit.NewMemoryStore(time.Minute)
		defer store.Close()
		deps.Store = store
		logger.Info("rate limiting uses the in-memory store")
	case cfg.Redis.Configured():
		redisClient, err := redis.NewClient(cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		deps.Store = ratelimit.NewRedisStore(redisClient.GetClient())
		deps.RedisClient = redisClient
	default:
		logger.Warn("redis is not configured, rate limiting is disabled")
	}

	metrics := observability.NewMetrics()
	deps.Metrics = metrics.Handler()
	deps.Tracker = ratelimit.Trackers{ratelimit.LogTracker{Logger: logger}, metrics}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", ratelimit.HeaderLimit, ratelimit.HeaderRemaining, ratelimit.HeaderReset, ratelimit.HeaderRetryAfter},
	}

	// Handle wildcard origin for development
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false // Cannot use credentials with AllowAllOrigins
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}

	router.Use(cors.New(corsConfig))

	// Setup routes
	policy, err := routes.SetupRoutes(router, deps)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			log.String("port", cfg.Port),
			log.Bool("rate_limit_enabled", policy.Enabled()),
		)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
