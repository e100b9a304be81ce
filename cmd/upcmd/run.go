package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/upcmd/internal/artifacts"
	"github.com/fyrsmithlabs/upcmd/internal/config"
	"github.com/fyrsmithlabs/upcmd/internal/jobfile"
	"github.com/fyrsmithlabs/upcmd/internal/logging"
	"github.com/fyrsmithlabs/upcmd/internal/orchestrator"
	"github.com/fyrsmithlabs/upcmd/internal/runner"
	"github.com/fyrsmithlabs/upcmd/internal/sanitize"
	"github.com/fyrsmithlabs/upcmd/internal/telemetry"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
	"github.com/fyrsmithlabs/upcmd/internal/workspace"
)

var (
	jobPath     string
	phaseFlag   string
	repoDir     string
	metricsFile string
)

func init() {
	runCmd.Flags().StringVarP(&jobPath, "job", "j", "", "path to branch job file (YAML)")
	runCmd.Flags().StringVarP(&phaseFlag, "phase", "p", "all", "phase to run: pre, post or all")
	runCmd.Flags().StringVar(&repoDir, "repo", "", "repository working tree (default: local_dir from config)")
	runCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	_ = runCmd.MarkFlagRequired("job")
}

// runCmd executes the upgrade phases for a branch job
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run upgrade commands for a branch job",
	Long: `Run the pre- and/or post-upgrade commands of a branch job inside a Git
working tree and print the resulting artifacts and errors as JSON.

A phase that is skipped (no allowed commands, or nothing changed on the
branch) prints null. Command failures are reported in artifactErrors and do
not change the exit code.

Examples:
  # Run both phases
  upcmd run --config upcmd.yaml --job branch.yaml

  # Run only post-upgrade tasks against another checkout
  upcmd run -c upcmd.yaml -j branch.yaml --phase post --repo /work/repo`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}
	branch, err := jobfile.Load(jobPath)
	if err != nil {
		return err
	}

	dir := repoDir
	if dir == "" {
		dir = cfg.LocalDir
	}
	if metricsFile != "" {
		cfg.Telemetry.MetricsFile = metricsFile
	}

	a, err := newApp(ctx, cfg, dir, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, a.Close(context.WithoutCancel(ctx)))
	}()

	res, err := a.Run(ctx, phaseFlag, branch)
	if err != nil {
		return err
	}
	return jobfile.WriteResult(cmd.OutOrStdout(), res)
}

// app is the wired object graph for one run.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	metrics  *telemetry.Metrics
	orch     *orchestrator.Orchestrator
	settings orchestrator.Settings
}

func newApp(ctx context.Context, cfg *config.Config, dir string, logOut io.Writer) (*app, error) {
	san, err := sanitize.New(sanitize.Options{
		Disabled:      !cfg.Sanitize.Enabled,
		Secrets:       config.Values(cfg.Sanitize.Secrets),
		Gitleaks:      cfg.Sanitize.Gitleaks,
		AllowlistPath: cfg.Sanitize.AllowlistPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sanitizer: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.ConfigFrom(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := newLogger(cfg, tel, san, logOut)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	if degraded, derr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(derr))
	}

	repo, err := workspace.Open(dir)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}

	metrics := telemetry.NewMetrics()
	exec := &runner.ShellExecutor{
		Shell:   cfg.Exec.Shell,
		Timeout: cfg.Timeout(),
		Env:     cfg.Exec.Env,
	}
	r := runner.New(exec, dir,
		runner.WithSanitizer(san),
		runner.WithLogger(logger),
		runner.WithMetrics(metrics),
		runner.WithTelemetry(tel),
	)
	rec := artifacts.NewReconciler(repo, repo, logger.Underlying())

	orch := orchestrator.New(r, rec, repo,
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTelemetry(tel),
	)
	orch.OnProgress(func(p orchestrator.UnitProgress) {
		logger.Debug(ctx, "unit complete",
			zap.String("phase", p.Phase.String()),
			zap.String("mode", string(p.Mode)),
			zap.String("depName", p.DepName),
			zap.Int("index", p.Index),
			zap.Int("total", p.Total),
			zap.Int("commands", p.Commands),
			zap.Int("newErrors", p.NewErrors),
			zap.Int("artifacts", p.Artifacts),
		)
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		tel:      tel,
		metrics:  metrics,
		orch:     orch,
		settings: orchestrator.SettingsFromConfig(cfg),
	}, nil
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry, scrubber logging.Scrubber, out io.Writer) (*logging.Logger, error) {
	lcfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	lcfg.Level = level
	if cfg.Logging.Format != "" {
		lcfg.Format = cfg.Logging.Format
	}
	lcfg.Output.Writer = out
	lcfg.Output.OTEL = tel.IsEnabled()
	lcfg.Redaction.Scrubber = scrubber

	logger, err := logging.NewLogger(lcfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger.With(zap.String("version", version)), nil
}

// Run executes the requested phase ("pre", "post" or "all").
func (a *app) Run(ctx context.Context, phase string, branch *upgrade.BranchConfig) (*upgrade.ExecutionResult, error) {
	if strings.EqualFold(strings.TrimSpace(phase), "all") {
		return a.orch.ExecuteAll(ctx, branch, a.settings)
	}
	p, err := orchestrator.ParsePhase(phase)
	if err != nil {
		return nil, err
	}
	return a.orch.Execute(ctx, p, branch, a.settings)
}

// Close writes the metrics textfile, flushes telemetry and syncs the logger.
func (a *app) Close(ctx context.Context) error {
	var errs error
	if path := a.cfg.Telemetry.MetricsFile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	errs = multierr.Append(errs, a.logger.Sync())
	return errs
}
