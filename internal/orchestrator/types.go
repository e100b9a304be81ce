package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/upcmd/internal/config"
	"github.com/fyrsmithlabs/upcmd/internal/runner"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// Phase is the point in the branch lifecycle at which tasks run.
type Phase string

const (
	// PhasePreUpgrade runs before the dependency edits are committed.
	PhasePreUpgrade Phase = "pre-upgrade"

	// PhasePostUpgrade runs after the package files have been updated.
	PhasePostUpgrade Phase = "post-upgrade"
)

// AllPhases returns all phases in execution order.
func AllPhases() []Phase {
	return []Phase{PhasePreUpgrade, PhasePostUpgrade}
}

// ParsePhase accepts "pre", "post" or a full phase name.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pre", string(PhasePreUpgrade):
		return PhasePreUpgrade, nil
	case "post", string(PhasePostUpgrade):
		return PhasePostUpgrade, nil
	}
	return "", fmt.Errorf("unknown phase %q (want pre or post)", s)
}

func (p Phase) String() string { return string(p) }

// TaskType is the capitalised label used in log and error messages,
// e.g. "Post-upgrade".
func (p Phase) TaskType() string {
	s := string(p)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// UpgradeTasks selects the phase's task spec of a single upgrade.
func (p Phase) UpgradeTasks(u *upgrade.Upgrade) *upgrade.TaskSpec {
	if p == PhasePreUpgrade {
		return u.PreUpgradeTasks
	}
	return u.PostUpgradeTasks
}

// BranchTasks selects the phase's branch-level task spec.
func (p Phase) BranchTasks(b *upgrade.BranchConfig) *upgrade.TaskSpec {
	if p == PhasePreUpgrade {
		return b.PreUpgradeTasks
	}
	return b.PostUpgradeTasks
}

// Settings are the operator-controlled knobs of a pass. They are passed
// explicitly to every call.
type Settings struct {
	AllowedUpgradeCommands        []string
	AllowUpgradeCommandTemplating bool
	TemplatePolicy                upgrade.TemplatePolicy
}

// SettingsFromConfig extracts the pass settings from a loaded config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		AllowedUpgradeCommands:        append([]string(nil), cfg.AllowedUpgradeCommands...),
		AllowUpgradeCommandTemplating: cfg.AllowUpgradeCommandTemplating,
		TemplatePolicy:                cfg.Policy(),
	}
}

// PassState is what a gate sees before a phase runs.
type PassState struct {
	Phase    Phase
	Branch   *upgrade.BranchConfig
	Settings Settings
}

// PhaseGate decides whether a phase runs at all.
type PhaseGate interface {
	// Name returns the gate identifier
	Name() string

	// Check returns a non-empty reason when the phase must be skipped.
	Check(ctx context.Context, state *PassState) (string, error)
}

// CommandRunner runs one configured command for a unit.
type CommandRunner interface {
	Execute(ctx context.Context, unit *upgrade.Unit, taskType, rawCmd string, p runner.Policy) ([]upgrade.ArtifactError, error)
}

// ArtifactReconciler folds workspace changes into an artifact list.
type ArtifactReconciler interface {
	Reconcile(ctx context.Context, taskType string, fileFilters []string, current []upgrade.FileChange) ([]upgrade.FileChange, error)
}

// UnitProgress reports the completion of one unit.
type UnitProgress struct {
	Phase     Phase                 `json:"phase"`
	Mode      upgrade.ExecutionMode `json:"mode"`
	DepName   string                `json:"depName"`
	Index     int                   `json:"index"`
	Total     int                   `json:"total"`
	Commands  int                   `json:"commands"`
	NewErrors int                   `json:"newErrors"`
	Artifacts int                   `json:"artifacts"`
}

// ProgressCallback receives progress updates during execution
type ProgressCallback func(progress UnitProgress)
