package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	for _, k := range correlationKeys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			fields = append(fields, zap.String(k.field, v))
		}
	}
	return fields
}

type ctxKey struct{ field string }

var (
	runKey    = ctxKey{"run.id"}
	branchKey = ctxKey{"branch.name"}
	depKey    = ctxKey{"dep.name"}
	phaseKey  = ctxKey{"phase"}

	correlationKeys = []ctxKey{runKey, branchKey, depKey, phaseKey}
)

// WithRunID tags every log line of one orchestrator invocation.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runKey, id)
}

// RunIDFromContext returns the run ID, or "".
func RunIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(runKey).(string)
	return s
}

// WithBranch adds the branch name to context.
func WithBranch(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, branchKey, name)
}

// WithDep adds the unit's dependency name (space-joined for branch units).
func WithDep(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, depKey, name)
}

// WithPhase adds the execution phase to context.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseKey, phase)
}
