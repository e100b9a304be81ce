// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// Logging wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stderr + OpenTelemetry)
//   - Automatic context field injection (trace_id, run.id, branch.name, dep.name, phase)
//   - Secret redaction by field name and by a pluggable Scrubber
//
// Logs go to stderr. Stdout is reserved for command results.
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithBranch(ctx, "renovate/lodash-4.x")
//	logger.Info(ctx, "executing command", zap.String("command", cmd))
//
// Output includes the correlation fields:
//
//	{
//	  "ts": "2026-03-02T10:15:30Z",
//	  "level": "info",
//	  "msg": "executing command",
//	  "run.id": "4f1c…",
//	  "branch.name": "renovate/lodash-4.x",
//	  "command": "npm ci"
//	}
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
