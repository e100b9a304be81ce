// Package runner executes allow-listed upgrade commands and turns every
// failure into an artifact error instead of aborting the branch.
package runner

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/upcmd/internal/gate"
	"github.com/fyrsmithlabs/upcmd/internal/logging"
	"github.com/fyrsmithlabs/upcmd/internal/sanitize"
	"github.com/fyrsmithlabs/upcmd/internal/telemetry"
	"github.com/fyrsmithlabs/upcmd/internal/tmpl"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// Sanitizer strips secrets from text.
type Sanitizer interface {
	Sanitize(text string) string
}

// Policy is the per-pass gate configuration.
type Policy struct {
	AllowList       *gate.AllowList
	Templating      bool
	OnTemplateError upgrade.TemplatePolicy
}

// Runner executes commands for upgrade units.
type Runner struct {
	exec      Executor
	cwd       string
	renderer  gate.Renderer
	sanitizer Sanitizer
	logger    *logging.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithSanitizer sets the secret scrubber applied to error messages and
// logged output.
func WithSanitizer(s Sanitizer) Option {
	return func(r *Runner) {
		if s != nil {
			r.sanitizer = s
		}
	}
}

// WithRenderer overrides the template engine.
func WithRenderer(rd gate.Renderer) Option {
	return func(r *Runner) {
		if rd != nil {
			r.renderer = rd
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records command outcomes.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTelemetry traces each command as an upcmd.command span.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t.Tracer("upcmd/runner")
		}
	}
}

// New creates a Runner executing in cwd.
func New(exec Executor, cwd string, opts ...Option) *Runner {
	r := &Runner{
		exec:      exec,
		cwd:       cwd,
		renderer:  tmpl.NewEngine(),
		sanitizer: sanitize.Nop(),
		logger:    logging.Nop(),
		tracer:    noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the working directory commands run in.
func (r *Runner) Dir() string { return r.cwd }

// Run executes one already-validated, already-rendered command. Any failure
// yields exactly one ArtifactError scoped to unit's package file; success
// yields nil.
func (r *Runner) Run(ctx context.Context, unit *upgrade.Unit, taskType, cmd string) []upgrade.ArtifactError {
	task := strings.ToLower(taskType)
	r.logger.Trace(ctx, "Executing "+task+" task", zap.String("cmd", cmd))

	out, err := r.exec.Exec(ctx, cmd, r.cwd)
	if err != nil {
		msg := r.sanitizer.Sanitize(err.Error())
		r.logger.Debug(ctx, "Failed "+task+" task", zap.String("cmd", cmd), zap.String("error", msg))
		r.metrics.ObserveCommand(task, telemetry.OutcomeFailed, duration(out))
		return []upgrade.ArtifactError{{
			LockFile: unit.PackageFile,
			Stderr:   msg,
			Kind:     upgrade.KindCommandExecutionFailed,
		}}
	}

	r.logger.Debug(ctx, "Executed "+task+" task",
		zap.String("cmd", cmd),
		zap.String("stdout", r.sanitizer.Sanitize(out.Stdout)),
		zap.String("stderr", r.sanitizer.Sanitize(out.Stderr)),
		zap.Int("exitCode", out.ExitCode),
		zap.Duration("duration", out.Duration),
	)
	r.metrics.ObserveCommand(task, telemetry.OutcomeSuccess, out.Duration)
	return nil
}

// Execute runs rawCmd through the full pipeline: allow-list check on the
// configured command, template rendering, a second allow-list check on the
// rendered command, then Run.
//
// Rejections and execution failures are returned as artifact errors. A
// template failure is an artifact error under PolicyArtifactError and a
// returned error under PolicyAbort.
func (r *Runner) Execute(ctx context.Context, unit *upgrade.Unit, taskType, rawCmd string, p Policy) ([]upgrade.ArtifactError, error) {
	task := strings.ToLower(taskType)
	ctx, span := r.tracer.Start(ctx, "upcmd.command", trace.WithAttributes(
		attribute.String("upcmd.task_type", taskType),
		attribute.String("upcmd.dep", unit.DepName()),
	))
	defer span.End()

	if !p.AllowList.Validate(rawCmd) {
		return r.reject(ctx, span, unit, taskType, rawCmd, p.AllowList), nil
	}

	cmd, err := gate.Render(r.renderer, rawCmd, p.Templating, unit.Context)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("upcmd.outcome", telemetry.OutcomeTemplate))
		r.metrics.ObserveCommand(task, telemetry.OutcomeTemplate, 0)
		if p.OnTemplateError == upgrade.PolicyAbort {
			span.SetStatus(codes.Error, "template render failed")
			return nil, err
		}
		msg := r.sanitizer.Sanitize(err.Error())
		r.logger.Warn(ctx, taskType+" command template could not be rendered",
			zap.String("cmd", rawCmd), zap.String("error", msg))
		return []upgrade.ArtifactError{{
			LockFile: unit.PackageFile,
			Stderr:   msg,
			Kind:     upgrade.KindTemplateRenderFailed,
		}}, nil
	}

	if cmd != rawCmd && !p.AllowList.Validate(cmd) {
		return r.reject(ctx, span, unit, taskType, cmd, p.AllowList), nil
	}

	errs := r.Run(ctx, unit, taskType, cmd)
	if len(errs) > 0 {
		span.SetAttributes(attribute.String("upcmd.outcome", telemetry.OutcomeFailed))
		span.SetStatus(codes.Error, "command failed")
	} else {
		span.SetAttributes(attribute.String("upcmd.outcome", telemetry.OutcomeSuccess))
	}
	return errs, nil
}

// reject reports cmd as not allow-listed.
func (r *Runner) reject(ctx context.Context, span trace.Span, unit *upgrade.Unit, taskType, cmd string, allow *gate.AllowList) []upgrade.ArtifactError {
	r.logger.Warn(ctx, taskType+" task did not match any on allowedUpgradeCommands list",
		zap.String("cmd", cmd),
		zap.Strings("allowedUpgradeCommands", allow.Patterns()),
	)
	span.RecordError(gate.Reject(taskType, cmd))
	span.SetAttributes(attribute.String("upcmd.outcome", telemetry.OutcomeRejected))
	r.metrics.ObserveCommand(strings.ToLower(taskType), telemetry.OutcomeRejected, 0)
	return []upgrade.ArtifactError{{
		LockFile: unit.PackageFile,
		Stderr:   r.sanitizer.Sanitize(gate.RejectionMessage(taskType, cmd)),
		Kind:     upgrade.KindCommandRejected,
	}}
}

func duration(out *Output) time.Duration {
	if out == nil {
		return 0
	}
	return out.Duration
}
