package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/upcmd/internal/artifacts"
	"github.com/fyrsmithlabs/upcmd/internal/gate"
	"github.com/fyrsmithlabs/upcmd/internal/logging"
	"github.com/fyrsmithlabs/upcmd/internal/runner"
	"github.com/fyrsmithlabs/upcmd/internal/telemetry"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
	"github.com/fyrsmithlabs/upcmd/internal/workspace"
)

// ErrNoBranch is returned when Execute is called without a branch.
var ErrNoBranch = errors.New("branch config is required")

// Orchestrator runs a phase's upgrade commands over a branch: first once per
// dependency update, then once for the whole branch.
//
// Units run sequentially against one working tree, so an Orchestrator must
// not be used for concurrent Execute calls on the same directory.
type Orchestrator struct {
	runner     CommandRunner
	reconciler ArtifactReconciler
	files      workspace.FS
	gates      map[Phase][]PhaseGate

	logger           *logging.Logger
	metrics          *telemetry.Metrics
	tracer           trace.Tracer
	unitsExecuted    metric.Int64Counter
	progressCallback ProgressCallback
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records reconciled artifact counts.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTelemetry traces phases and units and counts executed units.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		if t == nil {
			return
		}
		o.tracer = t.Tracer("upcmd/orchestrator")
		counter, err := t.Meter("upcmd/orchestrator").Int64Counter("upcmd.units.executed",
			metric.WithDescription("Upgrade units whose commands were executed"))
		if err == nil {
			o.unitsExecuted = counter
		}
	}
}

// WithoutDefaultGates starts with no phase gates registered.
func WithoutDefaultGates() Option {
	return func(o *Orchestrator) { o.gates = make(map[Phase][]PhaseGate) }
}

// New creates an orchestrator. files receives the pending package file
// edits before each unit runs.
func New(r CommandRunner, reconciler ArtifactReconciler, files workspace.FS, opts ...Option) *Orchestrator {
	counter, _ := metricnoop.NewMeterProvider().Meter("").Int64Counter("upcmd.units.executed")
	o := &Orchestrator{
		runner:        r,
		reconciler:    reconciler,
		files:         files,
		gates:         DefaultGates(),
		logger:        logging.Nop(),
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
		unitsExecuted: counter,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterGate registers a gate for a phase
func (o *Orchestrator) RegisterGate(phase Phase, g PhaseGate) {
	o.gates[phase] = append(o.gates[phase], g)
}

// OnProgress sets the progress callback
func (o *Orchestrator) OnProgress(callback ProgressCallback) {
	o.progressCallback = callback
}

// Execute runs phase over branch. It returns nil, nil when a gate skips the
// phase. Otherwise the result starts from the branch's artifacts and errors,
// runs the update units, then the branch unit seeded with their result.
//
// Command rejections and failures are data in the result. Infrastructure
// failures, cancellation and, under the abort policy, template failures are
// returned as errors and the partial result is discarded.
func (o *Orchestrator) Execute(ctx context.Context, phase Phase, branch *upgrade.BranchConfig, s Settings) (*upgrade.ExecutionResult, error) {
	if branch == nil {
		return nil, ErrNoBranch
	}

	ctx = logging.WithRunID(ctx, uuid.NewString())
	ctx = logging.WithBranch(ctx, branch.BranchName)
	ctx = logging.WithPhase(ctx, phase.String())

	ctx, span := o.tracer.Start(ctx, "upcmd.phase", trace.WithAttributes(
		attribute.String("upcmd.phase", phase.String()),
		attribute.String("upcmd.branch", branch.BranchName),
		attribute.String("upcmd.run_id", logging.RunIDFromContext(ctx)),
	))
	defer span.End()

	reason, err := o.checkGates(ctx, &PassState{Phase: phase, Branch: branch, Settings: s})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("gate check error for phase %s: %w", phase, err)
	}
	if reason != "" {
		o.logger.Debug(ctx, "Skipping "+phase.String()+" tasks", zap.String("reason", reason))
		span.SetAttributes(attribute.String("upcmd.skipped", reason))
		return nil, nil
	}

	policy, err := compilePolicy(s)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	updateUnits, err := BuildUpdateUnits(phase, branch)
	if err != nil {
		return nil, err
	}
	branchUnit, err := BuildBranchUnit(phase, branch)
	if err != nil {
		return nil, err
	}
	if err := validateUnits(append(updateUnits, branchUnit)); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	seed := &upgrade.ExecutionResult{
		UpdatedArtifacts: branch.UpdatedArtifacts,
		ArtifactErrors:   branch.ArtifactErrors,
	}
	res, err := o.executeUnits(ctx, phase, updateUnits, branch, seed, policy)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res, err = o.executeUnits(ctx, phase, []*upgrade.Unit{branchUnit}, branch, res, policy)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("upcmd.artifacts", len(res.UpdatedArtifacts)),
		attribute.Int("upcmd.artifact_errors", len(res.ArtifactErrors)),
	)
	return res, nil
}

// ExecuteUnits runs units in order starting from seed and returns the
// accumulated result. Units without commands are skipped. seed is not
// modified.
func (o *Orchestrator) ExecuteUnits(ctx context.Context, phase Phase, units []*upgrade.Unit, branch *upgrade.BranchConfig, seed *upgrade.ExecutionResult, s Settings) (*upgrade.ExecutionResult, error) {
	if branch == nil {
		return nil, ErrNoBranch
	}
	policy, err := compilePolicy(s)
	if err != nil {
		return nil, err
	}
	if err := validateUnits(units); err != nil {
		return nil, err
	}
	return o.executeUnits(ctx, phase, units, branch, seed, policy)
}

// ExecuteAll runs the pre-upgrade phase, then the post-upgrade phase with
// the branch's artifacts and errors replaced by the pre-upgrade result.
// It returns the last non-nil result, or nil when both phases were skipped.
func (o *Orchestrator) ExecuteAll(ctx context.Context, branch *upgrade.BranchConfig, s Settings) (*upgrade.ExecutionResult, error) {
	if branch == nil {
		return nil, ErrNoBranch
	}

	pre, err := o.Execute(ctx, PhasePreUpgrade, branch, s)
	if err != nil {
		return nil, err
	}

	next := branch
	if pre != nil {
		b := *branch
		b.UpdatedArtifacts = pre.UpdatedArtifacts
		b.ArtifactErrors = pre.ArtifactErrors
		next = &b
	}

	post, err := o.Execute(ctx, PhasePostUpgrade, next, s)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return pre, nil
	}
	return post, nil
}

func (o *Orchestrator) executeUnits(ctx context.Context, phase Phase, units []*upgrade.Unit, branch *upgrade.BranchConfig, seed *upgrade.ExecutionResult, policy runner.Policy) (*upgrade.ExecutionResult, error) {
	res := seed.Clone()
	for i, unit := range units {
		uctx := logging.WithDep(ctx, unit.DepName())
		o.logger.Trace(uctx, "Checking for "+phase.String()+" tasks",
			zap.Strings("commands", unit.Commands),
			zap.Strings("fileFilters", unit.FileFilters),
			zap.Strings("allowedCommands", policy.AllowList.Patterns()),
		)
		if !unit.HasCommands() {
			continue
		}

		next, err := o.executeUnit(uctx, phase, unit, branch, res, policy)
		if err != nil {
			return nil, err
		}

		o.reportProgress(UnitProgress{
			Phase:     phase,
			Mode:      unit.Mode,
			DepName:   unit.DepName(),
			Index:     i,
			Total:     len(units),
			Commands:  len(unit.Commands),
			NewErrors: len(next.ArtifactErrors) - len(res.ArtifactErrors),
			Artifacts: len(next.UpdatedArtifacts),
		})
		res = next
	}
	return res, nil
}

// executeUnit persists the pending files once, runs each command in order
// and reconciles the workspace once afterwards.
func (o *Orchestrator) executeUnit(ctx context.Context, phase Phase, unit *upgrade.Unit, branch *upgrade.BranchConfig, res *upgrade.ExecutionResult, policy runner.Policy) (*upgrade.ExecutionResult, error) {
	ctx, span := o.tracer.Start(ctx, "upcmd.unit", trace.WithAttributes(
		attribute.String("upcmd.dep", unit.DepName()),
		attribute.String("upcmd.mode", string(unit.Mode)),
		attribute.Int("upcmd.commands", len(unit.Commands)),
	))
	defer span.End()

	pending := make([]upgrade.FileChange, 0, len(branch.UpdatedPackageFiles)+len(res.UpdatedArtifacts))
	pending = append(pending, branch.UpdatedPackageFiles...)
	pending = append(pending, res.UpdatedArtifacts...)
	written, err := workspace.PersistUpdatedFiles(o.files, pending)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("persisting updated files: %w", err)
	}
	if len(written) > 0 {
		o.logger.Debug(ctx, "Persisted updated files", zap.Strings("files", written))
	}

	taskType := phase.TaskType()
	for _, cmd := range unit.Commands {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		errs, err := o.runner.Execute(ctx, unit, taskType, cmd, policy)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		res = res.WithErrors(errs...)
	}

	updated, err := o.reconciler.Reconcile(ctx, taskType, unit.FileFilters, res.UpdatedArtifacts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("updating artifacts for %s: %w", unit.DepName(), err)
	}
	o.observeArtifacts(res.UpdatedArtifacts, updated)
	o.unitsExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase.String()),
		attribute.String("mode", string(unit.Mode)),
	))

	return res.WithArtifacts(updated), nil
}

// checkGates runs all gates for a phase and returns the first skip reason.
func (o *Orchestrator) checkGates(ctx context.Context, state *PassState) (string, error) {
	for _, g := range o.gates[state.Phase] {
		reason, err := g.Check(ctx, state)
		if err != nil {
			return "", fmt.Errorf("gate %s check failed: %w", g.Name(), err)
		}
		if reason != "" {
			return reason, nil
		}
	}
	return "", nil
}

// reportProgress sends progress updates to the callback
func (o *Orchestrator) reportProgress(progress UnitProgress) {
	if o.progressCallback != nil {
		o.progressCallback(progress)
	}
}

// observeArtifacts counts entries of after that are not identical in before.
func (o *Orchestrator) observeArtifacts(before, after []upgrade.FileChange) {
	if o.metrics == nil {
		return
	}
	seen := make(map[string]string, len(before))
	for _, c := range before {
		seen[c.Path] = string(c.Type) + "\x00" + string(c.Contents)
	}
	counts := map[upgrade.ChangeType]int{}
	for _, c := range after {
		if seen[c.Path] != string(c.Type)+"\x00"+string(c.Contents) {
			counts[c.Type]++
		}
	}
	for t, n := range counts {
		o.metrics.ObserveArtifacts(string(t), n)
	}
}

func compilePolicy(s Settings) (runner.Policy, error) {
	al, err := gate.Compile(s.AllowedUpgradeCommands)
	if err != nil {
		return runner.Policy{}, fmt.Errorf("invalid allowedUpgradeCommands: %w", err)
	}
	policy := s.TemplatePolicy
	if policy == "" {
		policy = upgrade.PolicyArtifactError
	}
	return runner.Policy{
		AllowList:       al,
		Templating:      s.AllowUpgradeCommandTemplating,
		OnTemplateError: policy,
	}, nil
}

// validateUnits checks every file filter before any command runs.
func validateUnits(units []*upgrade.Unit) error {
	var errs error
	for _, u := range units {
		if err := artifacts.ValidateFilters(u.FileFilters); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", u.DepName(), err))
		}
	}
	return errs
}
