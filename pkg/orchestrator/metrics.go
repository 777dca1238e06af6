package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zen-systems/flowroute/pkg/capability"
	"github.com/zen-systems/flowroute/pkg/router"
)

// Metrics holds the Prometheus collectors for routed requests. A nil
// *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	classifications *prometheus.CounterVec
	tools           *prometheus.CounterVec
	toolLatency     *prometheus.HistogramVec
	fallbacks       *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowroute",
			Name:      "requests_total",
			Help:      "Routed requests by outcome (completed or the failed state).",
		}, []string{"outcome"}),
		requestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowroute",
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowroute",
			Name:      "classifications_total",
			Help:      "Routing decisions by mode.",
		}, []string{"mode"}),
		tools: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowroute",
			Name:      "tool_invocations_total",
			Help:      "Capability tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		toolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flowroute",
			Name:      "tool_duration_seconds",
			Help:      "Capability tool latency.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowroute",
			Name:      "generation_fallbacks_total",
			Help:      "Generation fallbacks to the default backend.",
		}, []string{"from", "to"}),
	}
}

func (m *Metrics) observeRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	m.requestLatency.Observe(d.Seconds())
}

func (m *Metrics) observeClassification(mode router.Mode) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) observeTool(res capability.Result) {
	if m == nil {
		return
	}
	outcome := "success"
	if !res.Success {
		outcome = string(res.ErrorKind)
	}
	m.tools.WithLabelValues(res.Name, outcome).Inc()
	m.toolLatency.WithLabelValues(res.Name).Observe(res.Latency.Seconds())
}

func (m *Metrics) observeFallback(from, to string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(from, to).Inc()
}
