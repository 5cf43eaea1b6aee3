// Package metrics holds the Prometheus collectors for resolution and bundle assembly.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	BundleDuration *prometheus.HistogramVec
	Resolutions    *prometheus.CounterVec
	RulesDropped   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	AuditDropped   prometheus.CounterFunc
}

// New registers all collectors on a fresh registry. auditDropped may be nil.
func New(auditDropped func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		BundleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memhub_bundle_duration_seconds",
			Help:    "Context bundle assembly latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"mode"}),

		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memhub_resolutions_total",
			Help: "Project resolutions by matched kind and whether a project or mapping was created",
		}, []string{"kind", "created"}),

		RulesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memhub_rules_dropped_total",
			Help: "Global rules excluded from bundles by reason",
		}, []string{"reason"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memhub_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
	if auditDropped != nil {
		m.AuditDropped = f.NewCounterFunc(prometheus.CounterOpts{
			Name: "memhub_audit_events_dropped_total",
			Help: "Audit events dropped because the collector buffer was full",
		}, func() float64 { return float64(auditDropped()) })
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveBundle(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.BundleDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) ObserveResolution(kind string, created bool) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(kind, strconv.FormatBool(created)).Inc()
}

func (m *Metrics) ObserveRuleDropped(reason string) {
	if m == nil {
		return
	}
	m.RulesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveHTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
