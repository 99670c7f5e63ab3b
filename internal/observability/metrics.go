// Package observability – orchestrator metrics.
//
// This file exposes Prometheus instrumentation for debate operations, the
// counterpart of the HTTP middleware metrics one layer down. Labels are kept
// to the operation name (and outcome) so cardinality stays bounded no matter
// how many debates exist.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// debateOps counts orchestrator operations by name and outcome.
	debateOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_operations_total",
			Help: "Total number of debate orchestrator operations.",
		},
		[]string{"operation", "outcome"},
	)

	// debateOpLat records operation duration in seconds by operation name.
	// Buckets stretch further than HTTP defaults because generation calls
	// routinely take multiple seconds.
	debateOpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debate_operation_duration_seconds",
			Help:    "Duration of debate orchestrator operations in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"operation"},
	)

	// debateInflight gauges operations currently holding a queue slot.
	debateInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "debate_operations_inflight",
			Help: "Current number of in-flight debate operations.",
		},
	)

	// rateLimited counts admissions rejected by the per-tenant limiter.
	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_rate_limited_total",
			Help: "Total number of operations rejected by the tenant rate limiter.",
		},
	)

	// lockWait records how long operations waited for their debate lock.
	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "debate_lock_wait_seconds",
			Help:    "Time spent waiting for a per-debate lock.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
	)
)

func init() {
	prometheus.MustRegister(debateOps, debateOpLat, debateInflight, rateLimited, lockWait)
}

// Metrics is the collector handle injected into the orchestrator. A nil
// *Metrics is safe to use and records nothing, which keeps tests quiet.
type Metrics struct{}

// NewMetrics returns the process-wide collector handle.
func NewMetrics() *Metrics { return &Metrics{} }

// OperationStarted marks an operation admitted past the queue. Paired with
// OperationEnded, not with OperationDone: rejected operations record an
// outcome without ever having been in flight.
func (m *Metrics) OperationStarted() {
	if m == nil {
		return
	}
	debateInflight.Inc()
}

// OperationEnded releases the in-flight gauge taken by OperationStarted.
func (m *Metrics) OperationEnded() {
	if m == nil {
		return
	}
	debateInflight.Dec()
}

// OperationDone records an operation's outcome and latency.
func (m *Metrics) OperationDone(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	debateOps.WithLabelValues(operation, outcome).Inc()
	debateOpLat.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RateLimited counts one rejected admission.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	rateLimited.Inc()
}

// LockWaited records the time an operation spent waiting for its debate lock.
func (m *Metrics) LockWaited(d time.Duration) {
	if m == nil {
		return
	}
	lockWait.Observe(d.Seconds())
}
