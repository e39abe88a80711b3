// Package metrics exposes the engine's Prometheus collectors
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Registry holds all Prometheus metrics for the engine
type Registry struct {
	// Observation intake
	Observations *prometheus.CounterVec

	// Admin operations
	StatusChanges *prometheus.CounterVec

	// Tick pipeline
	Ticks              prometheus.Counter
	TicksDropped       prometheus.Counter
	UpdatesAbandoned   prometheus.Counter
	CycleDuration      prometheus.Histogram
	SnapshotsPublished prometheus.Counter

	// Fan-out
	SubscriberDrops prometheus.Counter
	Subscribers     prometheus.Gauge
	SinkErrors      *prometheus.CounterVec

	// Strategy state
	Strategies prometheus.Gauge
	Confidence *prometheus.GaugeVec
}

// NewRegistry creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Registry{
		Observations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfund_observations_total",
				Help: "Observations received by result (accepted, unknown_strategy, out_of_order, invalid, removed, stale)",
			},
			[]string{"result"},
		),

		StatusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfund_status_changes_total",
				Help: "Strategy status change requests by result (applied, unknown_strategy, invalid)",
			},
			[]string{"result"},
		),

		Ticks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantfund_ticks_total",
				Help: "Clock ticks processed by the engine",
			},
		),

		TicksDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantfund_ticks_dropped_total",
				Help: "Clock ticks dropped because the previous cycle was still running",
			},
		),

		UpdatesAbandoned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantfund_updates_abandoned_total",
				Help: "Per-strategy tick updates skipped or discarded in favor of fresher ticks",
			},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantfund_cycle_duration_seconds",
				Help:    "Duration of one update and ranking cycle in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5},
			},
		),

		SnapshotsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantfund_snapshots_published_total",
				Help: "Snapshots handed to the publisher",
			},
		),

		SubscriberDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantfund_subscriber_drops_total",
				Help: "Snapshot updates lost by slow subscribers",
			},
		),

		Subscribers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quantfund_subscribers",
				Help: "Current number of snapshot subscribers",
			},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfund_sink_errors_total",
				Help: "Snapshot sink write failures by sink",
			},
			[]string{"sink"},
		),

		Strategies: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quantfund_strategies",
				Help: "Number of registered strategies",
			},
		),

		Confidence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantfund_confidence",
				Help: "Current confidence score by strategy",
			},
			[]string{"strategy"},
		),
	}

	reg.MustRegister(
		r.Observations,
		r.StatusChanges,
		r.Ticks,
		r.TicksDropped,
		r.UpdatesAbandoned,
		r.CycleDuration,
		r.SnapshotsPublished,
		r.SubscriberDrops,
		r.Subscribers,
		r.SinkErrors,
		r.Strategies,
		r.Confidence,
	)

	return r
}

// RecordObservation counts one observation outcome
func (r *Registry) RecordObservation(result string) {
	if r == nil {
		return
	}
	r.Observations.WithLabelValues(result).Inc()
}

// RecordStatusChange counts one status change request outcome
func (r *Registry) RecordStatusChange(result string) {
	if r == nil {
		return
	}
	r.StatusChanges.WithLabelValues(result).Inc()
}

// RecordCycle records one completed tick cycle
func (r *Registry) RecordCycle(duration time.Duration, strategies, subscribers int) {
	if r == nil {
		return
	}
	r.Ticks.Inc()
	r.SnapshotsPublished.Inc()
	r.CycleDuration.Observe(duration.Seconds())
	r.Strategies.Set(float64(strategies))
	r.Subscribers.Set(float64(subscribers))
}

// RecordTickDropped counts a tick the engine could not take
func (r *Registry) RecordTickDropped() {
	if r == nil {
		return
	}
	r.TicksDropped.Inc()
}

// RecordAbandoned counts a skipped or discarded per-strategy update
func (r *Registry) RecordAbandoned() {
	if r == nil {
		return
	}
	r.UpdatesAbandoned.Inc()
}

// RecordSubscriberDrop counts one lost subscriber update
func (r *Registry) RecordSubscriberDrop() {
	if r == nil {
		return
	}
	r.SubscriberDrops.Inc()
}

// RecordSinkError counts a failed sink write
func (r *Registry) RecordSinkError(sink string, err error) {
	if r == nil {
		return
	}
	r.SinkErrors.WithLabelValues(sink).Inc()
	log.Warn().
		Str("sink", sink).
		Err(err).
		Msg("Snapshot sink write failed")
}

// SetConfidence exports a strategy's confidence
func (r *Registry) SetConfidence(strategy string, value float64) {
	if r == nil {
		return
	}
	r.Confidence.WithLabelValues(strategy).Set(value)
}

// ForgetStrategy removes per-strategy series for a deregistered strategy
func (r *Registry) ForgetStrategy(strategy string) {
	if r == nil {
		return
	}
	r.Confidence.DeleteLabelValues(strategy)
}
