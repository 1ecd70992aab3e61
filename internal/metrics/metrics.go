// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemrender_http_requests_total",
			Help: "Total HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chemrender_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	Renders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemrender_renders_total",
			Help: "Render attempts by source, output format and outcome",
		},
		[]string{"source", "format", "outcome"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chemrender_render_duration_seconds",
			Help:    "Time spent in the chemistry toolkit",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chemrender_audit_write_failures_total",
			Help: "Request log rows that could not be persisted",
		},
	)

	ThrottledRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chemrender_throttled_requests_total",
			Help: "Anonymous requests rejected by the rate limiter",
		},
	)
)

func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordRender(source, format string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	Renders.WithLabelValues(source, format, outcome).Inc()
	RenderDuration.WithLabelValues(format).Observe(duration.Seconds())
}
