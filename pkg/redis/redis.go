package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"family-backend/internal/config"
)

// ErrNotConfigured is returned when no Redis credentials are configured
var ErrNotConfigured = errors.New("redis is not configured")

type Client struct {
	client      *redis.Client
	config      config.RedisConfig
	logger      log.FieldLogger
	mu          sync.RWMutex
	isConnected bool
	reconnect   chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type HealthStatus struct {
	IsConnected    bool          `json:"isConnected"`
	LastPing       time.Time     `json:"lastPing"`
	ResponseTime   time.Duration `json:"responseTime"`
	ConnectionInfo string        `json:"connectionInfo"`
	Error          string        `json:"error,omitempty"`
}

// Options builds go-redis options from the configuration. REDIS_URL takes
// precedence over host and port.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{
			Addr:     cfg.Address(),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	// Apply pool and timeout configuration
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	opt.MinIdleConns = cfg.MinIdleConns
	opt.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		opt.MinRetryBackoff = cfg.RetryDelay
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PoolTimeout > 0 {
		opt.PoolTimeout = cfg.PoolTimeout
	}

	return opt, nil
}

// NewClient creates a Redis client with connection pooling, tests the
// connection and starts the health check loop. An unreachable server is not
// an error: the client keeps probing in the background.
func NewClient(cfg config.RedisConfig, logger log.FieldLogger) (*Client, error) {
	opt, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		client:    redis.NewClient(opt),
		config:    cfg,
		logger:    logger.With(log.String("redis_addr", opt.Addr)),
		reconnect: make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}

	if err := c.ping(5 * time.Second); err != nil {
		c.logger.Warn("redis connection test failed, will retry", log.Error(err))
		c.triggerReconnect()
	} else {
		c.logger.Info("redis connected")
	}

	c.wg.Add(2)
	go c.healthCheckLoop()
	go c.reconnectLoop()

	return c, nil
}

// ping checks the connection and records the result
func (c *Client) ping(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()

	err := c.client.Ping(ctx).Err()

	c.mu.Lock()
	c.isConnected = err == nil
	c.mu.Unlock()

	return err
}

// GetClient returns the underlying go-redis client
func (c *Client) GetClient() *redis.Client {
	return c.client
}

// IsConnected returns the connection status observed by the last ping
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// HealthCheck performs a health check and returns detailed status
func (c *Client) HealthCheck() HealthStatus {
	status := HealthStatus{
		ConnectionInfo: c.client.Options().Addr,
	}

	start := time.Now()
	err := c.ping(3 * time.Second)
	status.ResponseTime = time.Since(start)
	status.LastPing = time.Now()
	status.IsConnected = err == nil

	if err != nil {
		status.Error = err.Error()
		c.triggerReconnect()
	}

	return status
}

// triggerReconnect signals the reconnection goroutine
func (c *Client) triggerReconnect() {
	select {
	case c.reconnect <- struct{}{}:
	default:
		// Reconnection already triggered
	}
}

// healthCheckLoop runs periodic health checks
func (c *Client) healthCheckLoop() {
	defer c.wg.Done()

	interval := c.config.HealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			status := c.HealthCheck()
			if !status.IsConnected {
				c.logger.Warn("redis health check failed", log.String("error", status.Error))
			}
		}
	}
}

// reconnectLoop pings the server with exponential backoff until it answers.
// The go-redis pool redials on its own; this loop only tracks when the
// server becomes reachable again.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnect:
		}

		if c.IsConnected() {
			continue
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.config.ReconnectDelay
		if b.InitialInterval <= 0 {
			b.InitialInterval = time.Second
		}
		b.MaxInterval = 30 * time.Second
		b.MaxElapsedTime = 0

		err := backoff.RetryNotify(func() error {
			return c.ping(5 * time.Second)
		}, backoff.WithContext(b, c.ctx), func(err error, next time.Duration) {
			c.logger.Warn("redis reconnect failed", log.Error(err), log.Duration("retry_in", next))
		})
		if err == nil {
			c.logger.Info("redis reconnected")
		}
	}
}

// Close stops background loops and closes the connection pool
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

// GetConnectionStats returns connection pool statistics
func (c *Client) GetConnectionStats() map[string]interface{} {
	stats := c.client.PoolStats()
	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"totalConns":  stats.TotalConns,
		"idleConns":   stats.IdleConns,
		"staleConns":  stats.StaleConns,
		"isConnected": c.IsConnected(),
	}
}
