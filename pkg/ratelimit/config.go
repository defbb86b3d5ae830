package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default values applied to zero-valued Config fields
const (
	DefaultInterval = 60 * time.Second
	DefaultLimit    = 100
	DefaultBurst    = 50
	DefaultCost     = 1
)

// ErrInvalidConfig is returned when a Config fails validation
var ErrInvalidConfig = errors.New("invalid rate limit config")

// RefillMode selects how the token bucket is refilled between checks
type RefillMode string

const (
	// RefillWindowed adds burst * (elapsed fraction of the current window).
	// The elapsed fraction starts again from zero at every window boundary.
	RefillWindowed RefillMode = "windowed"

	// RefillContinuous adds burst * (time since last refill / interval),
	// independent of window boundaries.
	RefillContinuous RefillMode = "continuous"
)

// Config holds the configuration for a single rate limited route.
// A zero field means "use the default", so Burst: 0 yields DefaultBurst
// rather than a disabled bucket. To let the window limit alone bind, set
// Burst to at least Limit.
type Config struct {
	// Length of the fixed window, truncated to whole seconds
	Interval time.Duration `json:"interval" validate:"omitempty,min=1s"`

	// Maximum requests admitted per window
	Limit int `json:"limit" validate:"gte=0"`

	// Token bucket capacity; zero selects DefaultBurst
	Burst int `json:"burst" validate:"gte=0"`

	// Tokens spent per request
	Cost int `json:"cost" validate:"gte=0"`

	Refill RefillMode `json:"refill" validate:"omitempty,oneof=windowed continuous"`
}

// DefaultConfig returns the default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Limit:    DefaultLimit,
		Burst:    DefaultBurst,
		Cost:     DefaultCost,
		Refill:   RefillWindowed,
	}
}

// WithDefaults returns a copy of c where every zero-valued field is
// replaced by its default.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Interval == 0 {
		c.Interval = d.Interval
	}
	if c.Limit == 0 {
		c.Limit = d.Limit
	}
	if c.Burst == 0 {
		c.Burst = d.Burst
	}
	if c.Cost == 0 {
		c.Cost = d.Cost
	}
	if c.Refill == "" {
		c.Refill = d.Refill
	}
	c.Interval = c.Interval.Truncate(time.Second)
	return c
}

var validate = validator.New()

// Validate checks the configuration and returns an error wrapping
// ErrInvalidConfig describing every invalid field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		messages = append(messages, validationMessage(fieldError))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(messages, "; "))
}

// validationMessage returns a readable message for a failed field
func validationMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()

	switch fieldError.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fieldError.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// intervalSeconds returns the window length in whole seconds
func (c Config) intervalSeconds() int64 {
	return int64(c.Interval / time.Second)
}
