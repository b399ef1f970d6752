// Package metrics registers the driver's Prometheus series. Grounded on the
// teacher's internal/monitoring/observability.go (a prometheus.Registry holding
// CounterVec/GaugeVec/HistogramVec, served via promhttp.HandlerFor), narrowed to
// the batch-auction domain's own counters instead of the teacher's DeFi ones.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every series the driver emits.
type Registry struct {
	reg *prometheus.Registry

	BatchesSolved     *prometheus.CounterVec
	BatchesSubmitted  *prometheus.CounterVec
	SolveDuration     prometheus.Histogram
	SubmitDuration    prometheus.Histogram
	GasPriceGwei      prometheus.Gauge
	SolverInvocations *prometheus.CounterVec
	EventsApplied     prometheus.Counter
}

// New constructs a Registry with every series registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	m := &Registry{
		reg: reg,
		BatchesSolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driver",
			Name:      "batches_solved_total",
			Help:      "Batches that reached a solve attempt, by outcome.",
		}, []string{"outcome"}),
		BatchesSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driver",
			Name:      "batches_submitted_total",
			Help:      "Batches that reached a submission attempt, by outcome.",
		}, []string{"outcome"}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "driver",
			Name:      "solve_duration_seconds",
			Help:      "Wall time spent in the price finder per batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		SubmitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "driver",
			Name:      "submit_duration_seconds",
			Help:      "Wall time spent in the submit/cancel race per batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		GasPriceGwei: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "driver",
			Name:      "gas_price_gwei",
			Help:      "Gas price oracle's last preferred value.",
		}),
		SolverInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "driver",
			Name:      "solver_invocations_total",
			Help:      "Price finder subprocess invocations, by outcome.",
		}, []string{"outcome"}),
		EventsApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "driver",
			Name:      "events_applied_total",
			Help:      "Events folded into the orderbook state machine.",
		}),
	}

	reg.MustRegister(
		m.BatchesSolved,
		m.BatchesSubmitted,
		m.SolveDuration,
		m.SubmitDuration,
		m.GasPriceGwei,
		m.SolverInvocations,
		m.EventsApplied,
	)
	return m
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
