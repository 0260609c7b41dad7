// Package metrics provides the Prometheus telemetry collector for the
// paywatch processor: HTTP request counts and latency, plus per-event-type
// processing outcomes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements both core.MetricsCollector and webhook.EventMetrics
// against a Prometheus registry. Collectors register on an injected registry
// rather than the package-level default so tests can build isolated
// instances without duplicate-registration panics.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	eventsTotal     *prometheus.CounterVec
}

// NewCollector registers the processor's metrics on the given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywatch",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed, by method, endpoint and status.",
		}, []string{"method", "endpoint", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "paywatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds, by method and endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paywatch",
			Name:      "webhook_events_total",
			Help:      "Webhook events received, by event type and processing outcome.",
		}, []string{"event_type", "outcome"}),
	}
}

// RecordRequest implements core.MetricsCollector.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(method, endpoint, status).Inc()
	c.requestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEvent implements webhook.EventMetrics.
func (c *Collector) RecordEvent(eventType, outcome string) {
	c.eventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// NewRegistry builds a registry pre-loaded with the standard Go runtime and
// process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the scrape endpoint handler for the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
