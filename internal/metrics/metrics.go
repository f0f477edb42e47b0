// Package metrics records attachment lifecycle and storage flush metrics.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "styledrop"

// Recorder holds the Prometheus collectors.
type Recorder struct {
	transitions  *prometheus.CounterVec   // by attachment, status
	styling      *prometheus.CounterVec   // by style, outcome
	flushed      *prometheus.CounterVec   // by backend, destination, operation
	flushErrors  *prometheus.CounterVec   // by backend, operation
	flushLatency *prometheus.HistogramVec // by backend, operation
}

// New creates the collectors and registers them with reg. A nil registerer
// disables metrics and returns a nil Recorder.
func New(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		return nil, nil
	}
	r := &Recorder{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attachment",
			Name:      "transitions_total",
			Help:      "Lifecycle status transitions written to host records",
		}, []string{"attachment", "status"}),
		styling: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stylist",
			Name:      "results_total",
			Help:      "Per-style styling results",
		}, []string{"style", "outcome"}),
		flushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "flushed_entries_total",
			Help:      "Queued writes and deletes flushed to a backend",
		}, []string{"backend", "destination", "operation"}),
		flushErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "flush_errors_total",
			Help:      "Flush entries that failed",
		}, []string{"backend", "operation"}),
		flushLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "flush_duration_seconds",
			Help:      "Duration of a full queue flush",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"backend", "operation"}),
	}
	for _, c := range []prometheus.Collector{r.transitions, r.styling, r.flushed, r.flushErrors, r.flushLatency} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Transition records a status write.
func (r *Recorder) Transition(attachment, status string) {
	if r != nil {
		r.transitions.WithLabelValues(attachment, status).Inc()
	}
}

// Styling records the outcome of one style.
func (r *Recorder) Styling(style, outcome string) {
	if r != nil {
		r.styling.WithLabelValues(style, outcome).Inc()
	}
}

// Flushed records one flushed queue entry.
func (r *Recorder) Flushed(backend, destination, operation string) {
	if r != nil {
		r.flushed.WithLabelValues(backend, destination, operation).Inc()
	}
}

// FlushError records one failed queue entry.
func (r *Recorder) FlushError(backend, operation string) {
	if r != nil {
		r.flushErrors.WithLabelValues(backend, operation).Inc()
	}
}

// FlushDuration observes the time taken by a full flush started at start.
func (r *Recorder) FlushDuration(backend, operation string, start time.Time) {
	if r != nil {
		r.flushLatency.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	}
}
