package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/acronis/go-appkit/log"
)

// DefaultTimeout bounds the store round trips of a single check
const DefaultTimeout = 500 * time.Millisecond

// DefaultRule names limiters that are not bound to a policy rule
const DefaultRule = "default"

// Limiter combines a fixed window counter with a token bucket, both kept in
// a shared Store. A Limiter holds no per-client state and any number of
// instances may share one Store.
type Limiter struct {
	store   Store
	config  Config
	rule    string
	tracker EventTracker
	logger  log.FieldLogger
	now     func() time.Time
	timeout time.Duration
}

// Option configures a Limiter
type Option func(*Limiter)

// WithTracker sets the observability sink for check and error events
func WithTracker(tracker EventTracker) Option {
	return func(l *Limiter) {
		if tracker != nil {
			l.tracker = tracker
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger log.FieldLogger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithTimeout bounds how long a check waits for the store before failing open
func WithTimeout(timeout time.Duration) Option {
	return func(l *Limiter) {
		if timeout > 0 {
			l.timeout = timeout
		}
	}
}

// NewLimiter creates a limiter backed by store. A nil store yields a
// disabled limiter whose checks always return StatusDisabled.
func NewLimiter(store Store, config Config, opts ...Option) (*Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	limiter := &Limiter{
		store:   store,
		config:  config.WithDefaults(),
		rule:    DefaultRule,
		tracker: NopTracker{},
		logger:  log.NewDisabledLogger(),
		now:     time.Now,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(limiter)
	}

	return limiter, nil
}

// Enabled reports whether the limiter has a backing store
func (l *Limiter) Enabled() bool {
	return l.store != nil
}

// Config returns the effective configuration with defaults applied
func (l *Limiter) Config() Config {
	return l.config
}

// Rule returns the policy rule prefix this limiter serves, or DefaultRule
func (l *Limiter) Rule() string {
	return l.rule
}

// Identifier returns the partition key for all state of req
func Identifier(req Request) string {
	address := req.ClientAddress
	if address == "" {
		address = UnknownClient
	}
	return "rate-limit:" + req.Path + ":" + address
}

// Check records one request and decides whether it is within limits.
// Check never fails: store errors and timeouts produce StatusDisabled.
func (l *Limiter) Check(ctx context.Context, req Request) Result {
	if l.store == nil {
		return Result{Status: StatusDisabled}
	}

	identifier := Identifier(req)

	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	remaining, count, reset, err := l.check(storeCtx, identifier)
	if err != nil {
		l.logger.Warn("rate limit check failed, admitting request",
			log.String("identifier", identifier),
			log.Error(err),
		)
		l.track(ctx, Event{
			Action:   ActionError,
			Category: CategorySecurity,
			Label:    req.Path,
			Rule:     l.rule,
			Metadata: map[string]any{
				"identifier": identifier,
				"error":      err.Error(),
			},
		})
		return Result{Status: StatusDisabled, Err: err}
	}

	result := Result{
		Status: StatusAllowed,
		Info: Info{
			Remaining: max(0, remaining),
			Reset:     reset,
			Total:     l.config.Limit,
		},
	}
	if remaining < 0 {
		result.Status = StatusDenied
		l.logger.Debug("rate limit exceeded",
			log.String("identifier", identifier),
			log.Int64("count", count),
			log.Int64("reset", reset),
		)
	}

	l.track(ctx, Event{
		Action:   ActionCheck,
		Category: CategorySecurity,
		Label:    req.Path,
		Rule:     l.rule,
		Metadata: map[string]any{
			"identifier": identifier,
			"remaining":  remaining,
			"count":      count,
			"allowed":    result.Admitted(),
		},
	})

	return result
}

// check runs the store round trips and returns the unclamped remaining
// allowance, the window count and the window reset time.
func (l *Limiter) check(ctx context.Context, identifier string) (int, int64, int64, error) {
	now := l.now()
	interval := l.config.intervalSeconds()
	ttl := time.Duration(interval) * time.Second

	nowSec := now.Unix()
	elapsed := nowSec % interval
	windowStart := nowSec - elapsed
	windowKey := identifier + ":" + strconv.FormatInt(windowStart, 10)
	tokenKey := identifier + ":tokens"

	count, err := l.store.Incr(ctx, windowKey)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("increment window counter: %w", err)
	}

	burst := float64(l.config.Burst)
	tokens, found, err := l.store.Get(ctx, tokenKey)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("read token bucket: %w", err)
	}
	if !found {
		tokens = burst
	}

	// First request of the window starts its expiry
	if count == 1 {
		if err := l.store.Expire(ctx, windowKey, ttl); err != nil {
			return 0, 0, 0, fmt.Errorf("expire window counter: %w", err)
		}
	}

	var refilled float64
	switch l.config.Refill {
	case RefillContinuous:
		since, err := l.secondsSinceRefill(ctx, tokenKey, now)
		if err != nil {
			return 0, 0, 0, err
		}
		refilled = burst * (since / float64(interval))
	default:
		refilled = burst * (float64(elapsed) / float64(interval))
	}
	newTokens := math.Min(burst, tokens+refilled)

	// The bucket term is taken before this request's cost is spent, so an
	// admitted request may leave the bucket below zero until it refills.
	cost := float64(l.config.Cost)
	remaining := min(l.config.Limit-int(count), int(math.Floor(newTokens/cost)))

	if remaining >= 0 {
		if err := l.store.Set(ctx, tokenKey, newTokens-cost, ttl); err != nil {
			return 0, 0, 0, fmt.Errorf("write token bucket: %w", err)
		}
		if l.config.Refill == RefillContinuous {
			at := float64(now.UnixNano()) / float64(time.Second)
			if err := l.store.Set(ctx, tokenKey+":at", at, ttl); err != nil {
				return 0, 0, 0, fmt.Errorf("write refill time: %w", err)
			}
		}
	}

	return remaining, count, windowStart + interval, nil
}

// secondsSinceRefill returns the time since the bucket was last refilled.
// An unknown refill time counts as no time elapsed.
func (l *Limiter) secondsSinceRefill(ctx context.Context, tokenKey string, now time.Time) (float64, error) {
	at, found, err := l.store.Get(ctx, tokenKey+":at")
	if err != nil {
		return 0, fmt.Errorf("read refill time: %w", err)
	}
	if !found {
		return 0, nil
	}

	nowSec := float64(now.UnixNano()) / float64(time.Second)
	return math.Max(0, nowSec-at), nil
}

// track forwards event to the tracker; a misbehaving tracker never affects
// the decision.
func (l *Limiter) track(ctx context.Context, event Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("rate limit event tracker panicked", log.Any("panic", r))
		}
	}()
	l.tracker.Track(ctx, event)
}
