// Package monitoring exposes Prometheus metrics for routing decisions and
// upstream attempts.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	fallbackDepth   *prometheus.HistogramVec
	keyTransitions  *prometheus.CounterVec
	modelsDisabled  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aigateway",
				Name:      "attempts_total",
				Help:      "Upstream call attempts by outcome and error class",
			},
			[]string{"provider", "model", "outcome", "error_class"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aigateway",
				Name:      "attempt_duration_seconds",
				Help:      "Upstream call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),
		fallbackDepth: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aigateway",
				Name:      "fallback_depth",
				Help:      "How far down the candidate chain a request traveled before resolution",
				Buckets:   []float64{0, 1, 2, 3, 4, 5},
			},
			[]string{"task"},
		),
		keyTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aigateway",
				Name:      "key_transitions_total",
				Help:      "Credential status transitions by target status",
			},
			[]string{"provider", "status"},
		),
		modelsDisabled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aigateway",
				Name:      "models_disabled_total",
				Help:      "Models auto-disabled by the circuit breaker",
			},
			[]string{"model"},
		),
	}
	registry.MustRegister(m.attemptsTotal, m.attemptDuration, m.fallbackDepth, m.keyTransitions, m.modelsDisabled)
	return m
}

func (m *Metrics) RecordAttempt(provider, model string, success bool, errorClass string, seconds float64) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.attemptsTotal.WithLabelValues(provider, model, outcome, errorClass).Inc()
	m.attemptDuration.WithLabelValues(provider, model).Observe(seconds)
}

func (m *Metrics) RecordFallbackDepth(task string, depth int) {
	m.fallbackDepth.WithLabelValues(task).Observe(float64(depth))
}

func (m *Metrics) RecordKeyTransition(provider, status string) {
	m.keyTransitions.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordModelDisabled(model string) {
	m.modelsDisabled.WithLabelValues(model).Inc()
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
