package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	samplesIngested *prometheus.CounterVec
	signals         *prometheus.CounterVec
	guardDecisions  *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	cycleDuration   prometheus.Histogram
	lastApproved    prometheus.Gauge
}

// New creates a Prometheus metrics recorder registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		samplesIngested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_samples_ingested_total",
				Help: "Total number of samples accepted into series buffers",
			},
			[]string{"asset"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_signals_total",
				Help: "Signals by kind and outcome (candidate, approved, suppressed)",
			},
			[]string{"kind", "outcome"},
		),
		guardDecisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_guard_decisions_total",
				Help: "Duplicate content guard decisions",
			},
			[]string{"outcome"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		cycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketpulse_cycle_duration_seconds",
				Help:    "Duration of evaluation cycles in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		lastApproved: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_cycle_approved_signals",
				Help: "Approved signals in the most recent cycle",
			},
		),
	}
}

// RecordSampleIngested counts an accepted sample.
func (r *Recorder) RecordSampleIngested(asset string) {
	r.samplesIngested.WithLabelValues(asset).Inc()
}

// RecordSignal counts a signal moving through the aggregator.
func (r *Recorder) RecordSignal(kind, outcome string) {
	r.signals.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) RecordGuardDecision(outcome string) {
	r.guardDecisions.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordCycle(seconds float64, approved int) {
	r.cycleDuration.Observe(seconds)
	r.lastApproved.Set(float64(approved))
}

// Nop is a Metrics implementation that records nothing.
type Nop struct{}

func (Nop) RecordSampleIngested(string)   {}
func (Nop) RecordSignal(string, string)   {}
func (Nop) RecordGuardDecision(string)    {}
func (Nop) RecordError(string)            {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordCycle(float64, int)      {}
