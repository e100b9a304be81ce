// Package telemetry provides OpenTelemetry tracing and Prometheus command
// metrics for upcmd.
//
// # Tracing
//
// The orchestrator opens one span per phase (upcmd.phase), one per unit
// (upcmd.unit) and one per command (upcmd.command). Spans export over OTLP
// when telemetry is enabled and are no-ops otherwise.
//
// # Metrics
//
// Command outcomes go to a per-run Prometheus registry (see Metrics). A CI
// job can persist them with WriteTextfile for node-exporter's textfile
// collector:
//
//	telemetry:
//	  metrics_file: /var/lib/node_exporter/upcmd.prom
//
// # Testing
//
//	tt := telemetry.NewTestTelemetry()
//	orch := orchestrator.New(runner, reconciler, files, orchestrator.WithTelemetry(tt.Telemetry))
//	...
//	tt.AssertSpanExists(t, "upcmd.phase")
package telemetry
