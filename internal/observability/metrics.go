// Package observability exports rate limiter events as Prometheus metrics.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"family-backend/pkg/ratelimit"
)

// Metrics implements ratelimit.EventTracker with Prometheus counters
type Metrics struct {
	registry *prometheus.Registry
	checks   *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

var _ ratelimit.EventTracker = (*Metrics)(nil)

// NewMetrics creates the rate limit collectors on a dedicated registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "family",
			Subsystem: "ratelimit",
			Name:      "checks_total",
			Help:      "Rate limit decisions by policy rule and outcome.",
		}, []string{"rule", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "family",
			Subsystem: "ratelimit",
			Name:      "errors_total",
			Help:      "Rate limit checks that failed open because the store errored.",
		}, []string{"rule"}),
	}

	m.registry.MustRegister(
		m.checks,
		m.errors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Track implements ratelimit.EventTracker. Series are keyed by rule, never
// by request path, so clients cannot grow the registry.
func (m *Metrics) Track(_ context.Context, event ratelimit.Event) {
	rule := event.Rule
	if rule == "" {
		rule = ratelimit.DefaultRule
	}

	switch event.Action {
	case ratelimit.ActionCheck:
		outcome := ratelimit.StatusAllowed.String()
		if allowed, ok := event.Metadata["allowed"].(bool); ok && !allowed {
			outcome = ratelimit.StatusDenied.String()
		}
		m.checks.WithLabelValues(rule, outcome).Inc()
	case ratelimit.ActionError:
		m.errors.WithLabelValues(rule).Inc()
	}
}

// Registry returns the registry holding the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
