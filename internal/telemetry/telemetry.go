// Package telemetry owns the console's Prometheus collectors.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	Requests            *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	ClientErrors        prometheus.Counter
	GuardDenials        *prometheus.CounterVec
	PipelineSubscribers prometheus.Gauge
}

// New registers the console collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calcutta_console",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route template and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "calcutta_console",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ClientErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "calcutta_console",
			Name:      "client_errors_total",
			Help:      "Render errors reported by the browser.",
		}),
		GuardDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calcutta_console",
			Name:      "guard_denials_total",
			Help:      "Requests turned away by a route guard.",
		}, []string{"outcome"}),
		PipelineSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "calcutta_console",
			Name:      "pipeline_subscribers",
			Help:      "Open pipeline status WebSocket connections.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests,
		m.RequestDuration,
		m.ClientErrors,
		m.GuardDenials,
		m.PipelineSubscribers,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
