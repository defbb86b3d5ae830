package ratelimit

import (
	"context"
	"time"
)

// Store is the shared key-value backend holding all rate limit state.
// Implementations must be safe for concurrent use and Incr must be atomic.
type Store interface {
	// Incr increments the integer at key and returns the new value.
	// A missing key is treated as 0.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets a time to live on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Get returns the numeric value at key. The boolean is false when the
	// key does not exist.
	Get(ctx context.Context, key string) (float64, bool, error)

	// Set stores value at key with the given time to live.
	Set(ctx context.Context, key string, value float64, ttl time.Duration) error
}

// EventTracker receives observability events from the limiter.
// Track must not block; the limiter ignores anything it does.
type EventTracker interface {
	Track(ctx context.Context, event Event)
}

// Event is a single observability event. Label carries the request path;
// Rule names the policy rule that produced the decision and is bounded by
// the configuration, so it is safe to use as a metric label.
type Event struct {
	Action   string         `json:"action"`
	Category string         `json:"category"`
	Label    string         `json:"label,omitempty"`
	Rule     string         `json:"rule,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tracked event actions
const (
	ActionCheck = "rate_limit_check"
	ActionError = "rate_limit_error"

	CategorySecurity = "security"
)

// Status is the outcome of a rate limit check
type Status int

const (
	// StatusDisabled means no decision was made: the limiter has no store or
	// the store failed. Callers admit the request.
	StatusDisabled Status = iota
	StatusAllowed
	StatusDenied
)

func (s Status) String() string {
	switch s {
	case StatusAllowed:
		return "allowed"
	case StatusDenied:
		return "denied"
	default:
		return "disabled"
	}
}

// Info describes the rate limit state after a check
type Info struct {
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
	Total     int   `json:"total"`
}

// Result is returned by Limiter.Check
type Result struct {
	Status Status
	Info   Info

	// Err is the store error that caused a fail-open StatusDisabled result
	Err error
}

// Admitted reports whether the caller should let the request through
func (r Result) Admitted() bool {
	return r.Status != StatusDenied
}

// Request identifies the caller of a rate limited route
type Request struct {
	Path          string
	ClientAddress string
}
