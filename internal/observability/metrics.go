package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the authorization core.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
}

// NewMetrics initialises the registry and the decision metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "opsledger_authz_decisions_total",
		Help: "Authorization decisions by source layer and outcome.",
	}, []string{"source", "allowed"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "opsledger_authz_decision_duration_seconds",
		Help:    "Evaluation latency by source layer.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
	registry.MustRegister(decisions, duration)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		decisionsTotal:   decisions,
		decisionDuration: duration,
	}
}

// ObserveDecision records one evaluation outcome.
func (m *Metrics) ObserveDecision(source string, allowed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(source, strconv.FormatBool(allowed)).Inc()
	m.decisionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}
