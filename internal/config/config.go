// Package config provides configuration loading for upcmd.
//
// Configuration is read from a YAML file and then overridden by UPCMD_*
// environment variables. The resulting Config is passed explicitly to every
// orchestration call; there is no global accessor.
package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/upcmd/internal/gate"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// Config holds the complete upcmd configuration.
type Config struct {
	// AllowedUpgradeCommands are regular expressions; a command runs only if
	// one of them matches the whole configured command and, with templating
	// on, one of them also matches the whole rendered command. Empty disables
	// upgrade commands entirely.
	AllowedUpgradeCommands []string `koanf:"allowed_upgrade_commands"`

	// AllowUpgradeCommandTemplating enables rendering commands as templates.
	AllowUpgradeCommandTemplating bool `koanf:"allow_upgrade_command_templating"`

	// TemplateFailurePolicy is "artifact_error" (default) or "abort".
	TemplateFailurePolicy string `koanf:"template_failure_policy"`

	// LocalDir is the repository working tree commands run in.
	LocalDir string `koanf:"local_dir"`

	Exec      ExecConfig      `koanf:"exec"`
	Sanitize  SanitizeConfig  `koanf:"sanitize"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ExecConfig holds process execution settings.
type ExecConfig struct {
	Shell   string            `koanf:"shell"`
	Timeout Duration          `koanf:"timeout"`
	Env     map[string]string `koanf:"env"`
}

// SanitizeConfig holds secret scrubbing settings for command output.
type SanitizeConfig struct {
	Enabled       bool     `koanf:"enabled"`
	Gitleaks      bool     `koanf:"gitleaks"`
	Secrets       []Secret `koanf:"secrets"`
	AllowlistPath string   `koanf:"allowlist_path"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds tracing and metrics settings.
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled"`
	Endpoint   string  `koanf:"endpoint"`
	Protocol   string  `koanf:"protocol"`
	Insecure   bool    `koanf:"insecure"`
	SampleRate float64 `koanf:"sample_rate"`

	// MetricsFile receives the Prometheus textfile after a run. Empty
	// disables the export.
	MetricsFile string `koanf:"metrics_file"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		TemplateFailurePolicy: string(upgrade.PolicyArtifactError),
		LocalDir:              ".",
		Exec: ExecConfig{
			Shell: "/bin/sh",
		},
		Sanitize: SanitizeConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			Endpoint:   "localhost:4317",
			Protocol:   "grpc",
			Insecure:   true,
			SampleRate: 1.0,
		},
	}
}

// applyDefaults fills values a file or environment explicitly blanked.
func applyDefaults(cfg *Config) {
	if cfg.TemplateFailurePolicy == "" {
		cfg.TemplateFailurePolicy = string(upgrade.PolicyArtifactError)
	}
	if cfg.LocalDir == "" {
		cfg.LocalDir = "."
	}
	if cfg.Exec.Shell == "" {
		cfg.Exec.Shell = "/bin/sh"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
}

// Validate checks config for errors. Every problem is reported.
func (c *Config) Validate() error {
	var errs error

	if _, err := gate.Compile(c.AllowedUpgradeCommands); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := upgrade.ParseTemplatePolicy(c.TemplateFailurePolicy); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("template_failure_policy: %w", err))
	}
	if strings.TrimSpace(c.LocalDir) == "" {
		errs = multierr.Append(errs, fmt.Errorf("local_dir is required"))
	}
	if c.Exec.Shell == "" {
		errs = multierr.Append(errs, fmt.Errorf("exec.shell is required"))
	}
	if c.Exec.Timeout.Duration() < 0 {
		errs = multierr.Append(errs, fmt.Errorf("exec.timeout must be >= 0"))
	}
	for k := range c.Exec.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			errs = multierr.Append(errs, fmt.Errorf("exec.env: invalid variable name %q", k))
		}
	}
	if err := validateLevel(c.Logging.Level); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = multierr.Append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
		errs = multierr.Append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = multierr.Append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate))
	}

	return errs
}

// Policy returns the parsed template failure policy.
func (c *Config) Policy() upgrade.TemplatePolicy {
	p, err := upgrade.ParseTemplatePolicy(c.TemplateFailurePolicy)
	if err != nil {
		return upgrade.PolicyArtifactError
	}
	return p
}

// Timeout returns the per-command timeout, 0 for none.
func (c *Config) Timeout() time.Duration {
	return c.Exec.Timeout.Duration()
}

func validateLevel(level string) error {
	if strings.EqualFold(level, "trace") {
		return nil
	}
	var l zapcore.Level
	return l.UnmarshalText([]byte(strings.ToLower(level)))
}
