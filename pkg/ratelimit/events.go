package ratelimit

import (
	"context"

	"github.com/acronis/go-appkit/log"
)

// NopTracker discards all events
type NopTracker struct{}

// Track implements EventTracker
func (NopTracker) Track(context.Context, Event) {}

// LogTracker writes events to a structured logger. Check events are logged
// at debug level, error events at warn.
type LogTracker struct {
	Logger log.FieldLogger
}

// Track implements EventTracker
func (t LogTracker) Track(_ context.Context, event Event) {
	if t.Logger == nil {
		return
	}

	fields := make([]log.Field, 0, len(event.Metadata)+4)
	fields = append(fields,
		log.String("action", event.Action),
		log.String("category", event.Category),
	)
	if event.Label != "" {
		fields = append(fields, log.String("label", event.Label))
	}
	if event.Rule != "" {
		fields = append(fields, log.String("rule", event.Rule))
	}
	for key, value := range event.Metadata {
		fields = append(fields, log.Any(key, value))
	}

	if event.Action == ActionError {
		t.Logger.Warn("rate limit event", fields...)
		return
	}
	t.Logger.Debug("rate limit event", fields...)
}

// Trackers fans an event out to several trackers
type Trackers []EventTracker

// Track implements EventTracker
func (ts Trackers) Track(ctx context.Context, event Event) {
	for _, t := range ts {
		if t != nil {
			t.Track(ctx, event)
		}
	}
}
