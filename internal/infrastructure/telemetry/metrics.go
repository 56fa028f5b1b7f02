package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "promptlab"

// Dispatch outcomes
const (
	DispatchExecuted         = "executed"
	DispatchRunNotFound      = "run_not_found"
	DispatchTenantUnresolved = "tenant_unresolved"
	DispatchFailed           = "failed"
)

// Metrics owns a Prometheus registry and the application counters. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	meteringEvents       *prometheus.CounterVec
	meteringFailures     *prometheus.CounterVec
	meteringReplays      *prometheus.CounterVec
	entitlementDecisions *prometheus.CounterVec
	dispatches           *prometheus.CounterVec
	usageExports         *prometheus.CounterVec
	httpInFlight         prometheus.Gauge
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
	buildInfo            *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with a fresh registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		meteringEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metering_events_total",
			Help:      "Usage events handed to the metering pipeline, by meter and result.",
		}, []string{"meter", "result"}),
		meteringFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metering_failures_total",
			Help:      "Usage events that could not be appended to the usage log.",
		}, []string{"meter"}),
		meteringReplays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metering_replays_total",
			Help:      "Reconciliation replays of failed usage events, by result.",
		}, []string{"result"}),
		entitlementDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_decisions_total",
			Help:      "Entitlement decisions by kind (feature, quota) and outcome.",
		}, []string{"kind", "outcome"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Background run dispatches by outcome.",
		}, []string{"outcome"}),
		usageExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_exports_total",
			Help:      "Usage totals reported to the billing provider, by meter and result.",
		}, []string{"meter", "result"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information.",
		}, []string{"version"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.meteringEvents,
		m.meteringFailures,
		m.meteringReplays,
		m.entitlementDecisions,
		m.dispatches,
		m.usageExports,
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.buildInfo,
	)
	m.buildInfo.WithLabelValues(ServiceVersion).Set(1)
	return m
}

// Registry exposes the registry for tests and extra collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// MeterRecorded counts an event that reached the log. duplicate marks a redelivery.
func (m *Metrics) MeterRecorded(meter string, duplicate bool) {
	if m == nil {
		return
	}
	result := "recorded"
	if duplicate {
		result = "duplicate"
	}
	m.meteringEvents.WithLabelValues(meter, result).Inc()
}

// MeteringFailed counts an event that did not reach the log
func (m *Metrics) MeteringFailed(meter string) {
	if m == nil {
		return
	}
	m.meteringFailures.WithLabelValues(meter).Inc()
}

// MeteringReplayed counts a reconciliation attempt
func (m *Metrics) MeteringReplayed(ok bool) {
	if m == nil {
		return
	}
	m.meteringReplays.WithLabelValues(outcome(ok, "resolved", "failed")).Inc()
}

// EntitlementDecided counts a feature or quota decision
func (m *Metrics) EntitlementDecided(kind string, allowed bool) {
	if m == nil {
		return
	}
	m.entitlementDecisions.WithLabelValues(kind, outcome(allowed, "allowed", "denied")).Inc()
}

// Dispatched counts a dispatch outcome
func (m *Metrics) Dispatched(result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(result).Inc()
}

// UsageExported counts a usage report sent to the billing provider
func (m *Metrics) UsageExported(meter string, ok bool) {
	if m == nil {
		return
	}
	m.usageExports.WithLabelValues(meter, outcome(ok, "accepted", "rejected")).Inc()
}

// GinMiddleware records request count, latency and in-flight requests by route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.httpInFlight.Inc()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpInFlight.Dec()
	}
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
