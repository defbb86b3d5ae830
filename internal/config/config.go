package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/acronis/go-appkit/log"
	"github.com/joho/godotenv"

	"family-backend/pkg/ratelimit"
)

// Store backends for rate limit state
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	Port           string
	AllowedOrigins []string
	UpstreamURL    string
	MetricsPath    string
	Log            LogConfig
	Redis          RedisConfig
	RateLimit      RateLimitConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// RedisConfig holds connection settings for the shared rate limit store.
// Leaving both URL and Host empty disables rate limiting.
type RedisConfig struct {
	URL            string
	Host           string
	Port           string
	Username       string
	Password       string
	DB             int
	PoolSize       int
	MinIdleConns   int
	MaxRetries     int
	RetryDelay     time.Duration
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PoolTimeout    time.Duration
	HealthInterval time.Duration
	ReconnectDelay time.Duration
}

type RateLimitConfig struct {
	Store   string
	Default ratelimit.Config
	Timeout time.Duration
	Exempt  []string
}

// Configured reports whether connection credentials for Redis are present
func (c RedisConfig) Configured() bool {
	return c.URL != "" || c.Host != ""
}

// Address returns the host:port pair of the Redis server
func (c RedisConfig) Address() string {
	return c.Host + ":" + c.Port
}

// Logger returns the appkit logging configuration
func (c LogConfig) Logger() *log.Config {
	cfg := log.NewDefaultConfig()
	cfg.Level = log.Level(strings.ToLower(c.Level))
	cfg.Format = log.Format(strings.ToLower(c.Format))
	return cfg
}

// Load reads configuration from the environment, after loading a .env file
// if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisConfig, err := loadRedisConfig()
	if err != nil {
		return nil, err
	}

	rateLimitConfig, err := loadRateLimitConfig()
	if err != nil {
		return nil, err
	}

	logConfig := LogConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}
	switch logConfig.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid LOG_LEVEL: %s", logConfig.Level)
	}
	switch logConfig.Format {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT: %s", logConfig.Format)
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173")),
		UpstreamURL:    os.Getenv("UPSTREAM_URL"),
		MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
		Log:            logConfig,
		Redis:          redisConfig,
		RateLimit:      rateLimitConfig,
	}, nil
}

func loadRedisConfig() (RedisConfig, error) {
	cfg := RedisConfig{
		URL:      os.Getenv("REDIS_URL"),
		Host:     os.Getenv("REDIS_HOST"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Username: os.Getenv("REDIS_USERNAME"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}

	var err error
	if cfg.DB, err = getInt("REDIS_DB", 0); err != nil {
		return RedisConfig{}, err
	}
	if cfg.PoolSize, err = getInt("REDIS_POOL_SIZE", 10); err != nil {
		return RedisConfig{}, err
	}
	if cfg.MinIdleConns, err = getInt("REDIS_MIN_IDLE_CONNS", 2); err != nil {
		return RedisConfig{}, err
	}
	if cfg.MaxRetries, err = getInt("REDIS_MAX_RETRIES", 1); err != nil {
		return RedisConfig{}, err
	}
	if cfg.RetryDelay, err = getDuration("REDIS_RETRY_DELAY", 50*time.Millisecond); err != nil {
		return RedisConfig{}, err
	}
	if cfg.DialTimeout, err = getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second); err != nil {
		return RedisConfig{}, err
	}
	if cfg.ReadTimeout, err = getDuration("REDIS_READ_TIMEOUT", 3*time.Second); err != nil {
		return RedisConfig{}, err
	}
	if cfg.WriteTimeout, err = getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second); err != nil {
		return RedisConfig{}, err
	}
	if cfg.PoolTimeout, err = getDuration("REDIS_POOL_TIMEOUT", 4*time.Second); err != nil {
		return RedisConfig{}, err
	}
	if cfg.HealthInterval, err = getDuration("REDIS_HEALTH_INTERVAL", 30*time.Second); err != nil {
		return RedisConfig{}, err
	}
	if cfg.ReconnectDelay, err = getDuration("REDIS_RECONNECT_DELAY", time.Second); err != nil {
		return RedisConfig{}, err
	}

	return cfg, nil
}

func loadRateLimitConfig() (RateLimitConfig, error) {
	cfg := RateLimitConfig{
		Store:  strings.ToLower(getEnv("RATE_LIMIT_STORE", StoreRedis)),
		Exempt: splitList(getEnv("RATE_LIMIT_EXEMPT", "/api/v1/health,/metrics")),
	}
	if cfg.Store != StoreRedis && cfg.Store != StoreMemory {
		return RateLimitConfig{}, fmt.Errorf("invalid RATE_LIMIT_STORE: %s", cfg.Store)
	}

	var err error
	def := ratelimit.DefaultConfig()
	if def.Interval, err = getDuration("RATE_LIMIT_INTERVAL", ratelimit.DefaultInterval); err != nil {
		return RateLimitConfig{}, err
	}
	if def.Limit, err = getInt("RATE_LIMIT_LIMIT", ratelimit.DefaultLimit); err != nil {
		return RateLimitConfig{}, err
	}
	if def.Burst, err = getInt("RATE_LIMIT_BURST", ratelimit.DefaultBurst); err != nil {
		return RateLimitConfig{}, err
	}
	if def.Cost, err = getInt("RATE_LIMIT_COST", ratelimit.DefaultCost); err != nil {
		return RateLimitConfig{}, err
	}
	def.Refill = ratelimit.RefillMode(strings.ToLower(getEnv("RATE_LIMIT_REFILL", string(ratelimit.RefillWindowed))))
	if err := def.Validate(); err != nil {
		return RateLimitConfig{}, err
	}
	cfg.Default = def

	if cfg.Timeout, err = getDuration("RATE_LIMIT_TIMEOUT", ratelimit.DefaultTimeout); err != nil {
		return RateLimitConfig{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

// getDuration accepts Go duration strings ("90s") or plain seconds ("90")
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
