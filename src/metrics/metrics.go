// Package metrics exposes the counters and gauges peerd maintains about its
// protocol activity. Every Metrics owns its registry so that several engines,
// typically in tests, can coexist in one process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Correlation outcomes.
const (
	OutcomeResolved  = "resolved"
	OutcomeTimeout   = "timeout"
	OutcomeTransport = "transport_failure"
	OutcomeDiscarded = "discarded"
)

// Bootstrap outcomes.
const (
	SeedSucceeded = "succeeded"
	SeedFailed    = "failed"
)

// Metrics is a nil-safe set of collectors. Methods called on a nil *Metrics do
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	correlations    *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	queryFailures   *prometheus.CounterVec
	seeds           *prometheus.CounterVec
	discoveredPeers prometheus.Gauge
	trustQueries    prometheus.Counter
}

// New creates a Metrics registering its collectors under namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		correlations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "correlations_total",
				Help:      "Payment setup exchanges and candidate responses by outcome",
			},
			[]string{"outcome"},
		),
		publishFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_failures_total",
				Help:      "Records a relay failed to accept",
			},
			[]string{"relay"},
		),
		queryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_failures_total",
				Help:      "Queries a relay failed to answer",
			},
			[]string{"relay"},
		),
		seeds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bootstrap_seeds_total",
				Help:      "Seed peers processed by the bootstrap sequencer",
			},
			[]string{"outcome"},
		),
		discoveredPeers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "discovered_peers",
				Help:      "Peers returned by the last discovery",
			},
		),
		trustQueries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trust_computations_total",
				Help:      "Trust scores computed",
			},
		),
	}

	m.registry.MustRegister(
		m.correlations,
		m.publishFailures,
		m.queryFailures,
		m.seeds,
		m.discoveredPeers,
		m.trustQueries,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Correlation(outcome string) {
	if m == nil {
		return
	}
	m.correlations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PublishFailed(relay string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(relay).Inc()
}

func (m *Metrics) QueryFailed(relay string) {
	if m == nil {
		return
	}
	m.queryFailures.WithLabelValues(relay).Inc()
}

func (m *Metrics) Seed(outcome string) {
	if m == nil {
		return
	}
	m.seeds.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DiscoveredPeers(n int) {
	if m == nil {
		return
	}
	m.discoveredPeers.Set(float64(n))
}

func (m *Metrics) TrustComputed() {
	if m == nil {
		return
	}
	m.trustQueries.Inc()
}
