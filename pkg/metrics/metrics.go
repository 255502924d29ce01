// Package metrics exposes Prometheus instrumentation for the transfer
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the transfer pipeline collectors
type Metrics struct {
	TransfersSubmitted prometheus.Counter
	TransfersCompleted prometheus.Counter
	TransfersFailed    *prometheus.CounterVec
	StageTransitions   *prometheus.CounterVec
	AttestationPolls   prometheus.Histogram
}

// New creates and registers the collectors on the given registerer
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransfersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_transfers_submitted_total",
			Help: "Transfers accepted for processing",
		}),
		TransfersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_transfers_completed_total",
			Help: "Transfers that reached the completed stage",
		}),
		TransfersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_transfers_failed_total",
			Help: "Transfer failures by stage and error kind",
		}, []string{"stage", "kind"}),
		StageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_stage_transitions_total",
			Help: "State machine transitions by target stage",
		}, []string{"stage"}),
		AttestationPolls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_attestation_wait_seconds",
			Help:    "Wall time from burn confirmation to attestation",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.TransfersSubmitted,
		m.TransfersCompleted,
		m.TransfersFailed,
		m.StageTransitions,
		m.AttestationPolls,
	)
	return m
}

// NewNop creates unregistered collectors for tests
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
