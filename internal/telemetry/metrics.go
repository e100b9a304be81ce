package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes recorded in upcmd_commands_total.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
	OutcomeTemplate = "template_error"
)

// Metrics holds Prometheus metrics for upgrade command execution.
//
// Each instance owns its registry so tests and repeated runs in one process
// never collide. All metrics are prefixed with "upcmd_".
//
// Metrics:
//   - upcmd_commands_total{phase,outcome} - commands by outcome
//   - upcmd_command_duration_seconds{phase} - command wall time
//   - upcmd_artifacts_reconciled_total{type} - artifact entries added or deleted
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CommandsTotal       *prometheus.CounterVec
	CommandDuration     *prometheus.HistogramVec
	ArtifactsReconciled *prometheus.CounterVec
}

// NewMetrics creates and registers the command metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcmd_commands_total",
				Help: "Total number of upgrade commands by phase and outcome",
			},
			[]string{"phase", "outcome"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upcmd_command_duration_seconds",
				Help:    "Duration of upgrade command execution in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"phase"},
		),
		ArtifactsReconciled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upcmd_artifacts_reconciled_total",
				Help: "Total number of artifact entries produced by reconciliation",
			},
			[]string{"type"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCommand records one command outcome. Zero durations (commands that
// never ran) are not added to the histogram.
func (m *Metrics) ObserveCommand(phase, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(phase, outcome).Inc()
	if d > 0 {
		m.CommandDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// ObserveArtifacts adds n entries of the given change type.
func (m *Metrics) ObserveArtifacts(changeType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArtifactsReconciled.WithLabelValues(changeType).Add(float64(n))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
