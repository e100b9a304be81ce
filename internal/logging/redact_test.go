package logging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type replaceScrubber struct{ secret string }

func (r replaceScrubber) Sanitize(s string) string {
	return strings.ReplaceAll(s, r.secret, "**redacted**")
}

func TestRedactingEncoder_FieldNames(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	l.Info(context.Background(), "auth", zap.String("token", "abc"), zap.String("user", "bob"))
	l.With(zap.String("password", "hunter2")).Info(context.Background(), "child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "[REDACTED]", lines[0]["token"])
	assert.Equal(t, "bob", lines[0]["user"])
	assert.Equal(t, "[REDACTED]", lines[1]["password"])
}

func TestRedactingEncoder_Scrubber(t *testing.T) {
	l, buf := newBufferLogger(t, func(c *Config) {
		c.Redaction.Scrubber = replaceScrubber{secret: "s3cr3t-value"}
	})

	ctx := context.Background()
	l.Warn(ctx, "command failed: s3cr3t-value",
		zap.String("stderr", "fatal: auth s3cr3t-value rejected"),
		zap.Error(errors.New("exit 1: s3cr3t-value")),
	)
	l.With(zap.String("command", "curl -H s3cr3t-value")).Info(ctx, "child")

	out := buf.String()
	assert.NotContains(t, out, "s3cr3t-value")
	assert.Contains(t, out, "**redacted**")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "command failed: **redacted**", lines[0]["msg"])
	assert.Equal(t, "exit 1: **redacted**", lines[0]["error"])
	assert.Equal(t, "curl -H **redacted**", lines[1]["command"])
}

func TestRedactingEncoder_Disabled(t *testing.T) {
	l, buf := newBufferLogger(t, func(c *Config) {
		c.Redaction.Enabled = false
		c.Redaction.Scrubber = replaceScrubber{secret: "x"}
	})
	l.Info(context.Background(), "plain", zap.String("token", "visible"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "visible", lines[0]["token"])
}
