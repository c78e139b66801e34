// Package metrics holds the Prometheus collectors of the chat service.
// All recording methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes.
const (
	OutcomeReplied  = "replied"
	OutcomeDegraded = "degraded"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics tracks service-level counters and latencies.
type Metrics struct {
	registry         *prometheus.Registry
	turns            *prometheus.CounterVec
	providerFailures prometheus.Counter
	providerLatency  prometheus.Histogram
	storeErrors      *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "turns_total",
			Help:      "Chat turns handled, by outcome.",
		}, []string{"outcome"}),
		providerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "provider_failures_total",
			Help:      "Completion calls that ended in the degraded reply.",
		}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chat",
			Name:      "provider_latency_seconds",
			Help:      "Latency of completion provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "store_errors_total",
			Help:      "Conversation store failures, by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.turns,
		m.providerFailures,
		m.providerLatency,
		m.storeErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCompletion records one provider call.
func (m *Metrics) ObserveCompletion(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.providerLatency.Observe(d.Seconds())
	if err != nil {
		m.providerFailures.Inc()
	}
}

// TurnCompleted counts a finished chat turn.
func (m *Metrics) TurnCompleted(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

// StoreError counts a failed store operation.
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}
