package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func fieldMap(fields []zap.Field) map[string]string {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Key] = f.String
	}
	return m
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_Correlation(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	ctx = WithBranch(ctx, "renovate/lodash-4.x")
	ctx = WithDep(ctx, "lodash")
	ctx = WithPhase(ctx, "post-upgrade")

	got := fieldMap(ContextFields(ctx))
	assert.Equal(t, map[string]string{
		"run.id":      "run-1",
		"branch.name": "renovate/lodash-4.x",
		"dep.name":    "lodash",
		"phase":       "post-upgrade",
	}, got)
	assert.Equal(t, "run-1", RunIDFromContext(ctx))
}

func TestContextFields_EmptyValuesSkipped(t *testing.T) {
	ctx := WithDep(context.Background(), "")
	assert.Empty(t, ContextFields(ctx))
}

func TestContextFields_Trace(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	got := fieldMap(ContextFields(ctx))
	require.Contains(t, got, "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), got["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), got["span_id"])
}
