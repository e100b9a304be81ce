// Package upgrade defines the data model shared by the upgrade command
// orchestrator: branch configuration, upgrade units, file changes and
// artifact errors.
package upgrade

import (
	"strings"
)

// ExecutionMode is the fan-out level at which a task's commands run.
type ExecutionMode string

const (
	// ModeUpdate runs commands once per dependency change.
	ModeUpdate ExecutionMode = "update"

	// ModeBranch runs commands once for the whole branch.
	ModeBranch ExecutionMode = "branch"
)

// IsUpdate reports whether the mode selects the per-dependency pass.
// An unset mode behaves like ModeUpdate.
func (m ExecutionMode) IsUpdate() bool {
	return m == "" || m == ModeUpdate
}

// Valid reports whether m is empty or one of the known modes.
func (m ExecutionMode) Valid() bool {
	return m == "" || m == ModeUpdate || m == ModeBranch
}

// ChangeType is the kind of a FileChange.
type ChangeType string

const (
	ChangeAddition ChangeType = "addition"
	ChangeDeletion ChangeType = "deletion"
)

// FileChange is a single tracked change to a file on the branch.
// Contents is only meaningful for additions.
type FileChange struct {
	Path     string     `json:"path" yaml:"path"`
	Type     ChangeType `json:"type" yaml:"type"`
	Contents []byte     `json:"contents,omitempty" yaml:"contents,omitempty"`
}

// IsAddition reports whether the change adds or modifies the file.
func (f FileChange) IsAddition() bool {
	return f.Type == ChangeAddition
}

// TaskSpec is the per-unit configuration of upgrade commands.
type TaskSpec struct {
	Commands      []string      `json:"commands,omitempty" yaml:"commands,omitempty"`
	FileFilters   []string      `json:"fileFilters,omitempty" yaml:"fileFilters,omitempty"`
	ExecutionMode ExecutionMode `json:"executionMode,omitempty" yaml:"executionMode,omitempty"`
}

// Upgrade is one dependency change on a branch.
type Upgrade struct {
	DepName        string `json:"depName" yaml:"depName"`
	Manager        string `json:"manager,omitempty" yaml:"manager,omitempty"`
	PackageFile    string `json:"packageFile,omitempty" yaml:"packageFile,omitempty"`
	DepType        string `json:"depType,omitempty" yaml:"depType,omitempty"`
	UpdateType     string `json:"updateType,omitempty" yaml:"updateType,omitempty"`
	CurrentValue   string `json:"currentValue,omitempty" yaml:"currentValue,omitempty"`
	NewValue       string `json:"newValue,omitempty" yaml:"newValue,omitempty"`
	CurrentVersion string `json:"currentVersion,omitempty" yaml:"currentVersion,omitempty"`
	NewVersion     string `json:"newVersion,omitempty" yaml:"newVersion,omitempty"`

	PreUpgradeTasks  *TaskSpec `json:"preUpgradeTasks,omitempty" yaml:"preUpgradeTasks,omitempty"`
	PostUpgradeTasks *TaskSpec `json:"postUpgradeTasks,omitempty" yaml:"postUpgradeTasks,omitempty"`
}

// BranchConfig is the state of a branch being upgraded, including the
// pending package file edits and any artifacts produced so far.
type BranchConfig struct {
	Manager    string    `json:"manager,omitempty" yaml:"manager,omitempty"`
	BranchName string    `json:"branchName" yaml:"branchName"`
	BaseBranch string    `json:"baseBranch,omitempty" yaml:"baseBranch,omitempty"`
	Upgrades   []Upgrade `json:"upgrades" yaml:"upgrades"`

	PreUpgradeTasks  *TaskSpec `json:"preUpgradeTasks,omitempty" yaml:"preUpgradeTasks,omitempty"`
	PostUpgradeTasks *TaskSpec `json:"postUpgradeTasks,omitempty" yaml:"postUpgradeTasks,omitempty"`

	UpdatedPackageFiles []FileChange    `json:"updatedPackageFiles,omitempty" yaml:"updatedPackageFiles,omitempty"`
	UpdatedArtifacts    []FileChange    `json:"updatedArtifacts,omitempty" yaml:"updatedArtifacts,omitempty"`
	ArtifactErrors      []ArtifactError `json:"artifactErrors,omitempty" yaml:"artifactErrors,omitempty"`
}

// HasChangedFiles reports whether any package file or artifact has changed.
func (b *BranchConfig) HasChangedFiles() bool {
	return len(b.UpdatedPackageFiles) > 0 || len(b.UpdatedArtifacts) > 0
}

// DepNames returns the dependency names of all upgrades in order.
func (b *BranchConfig) DepNames() []string {
	names := make([]string, 0, len(b.Upgrades))
	for _, u := range b.Upgrades {
		names = append(names, u.DepName)
	}
	return names
}

// Unit is one execution scope for commands: either a single dependency
// change or the aggregated branch. Units are built fresh per pass.
type Unit struct {
	Manager     string
	DepNames    []string
	BranchName  string
	PackageFile string
	Commands    []string
	FileFilters []string
	Mode        ExecutionMode

	// Context holds the unit's templating fields. It is merged over the
	// branch context when commands are rendered.
	Context map[string]any
}

// DepName returns the unit's dependency names joined by a space.
func (u *Unit) DepName() string {
	return strings.Join(u.DepNames, " ")
}

// HasCommands reports whether the unit has anything to execute.
func (u *Unit) HasCommands() bool {
	return len(u.Commands) > 0
}

// ExecutionResult is the accumulated output of a phase.
type ExecutionResult struct {
	UpdatedArtifacts []FileChange    `json:"updatedArtifacts"`
	ArtifactErrors   []ArtifactError `json:"artifactErrors"`
}

// Clone returns a copy whose slices do not alias r's.
func (r *ExecutionResult) Clone() *ExecutionResult {
	if r == nil {
		return &ExecutionResult{
			UpdatedArtifacts: []FileChange{},
			ArtifactErrors:   []ArtifactError{},
		}
	}
	return &ExecutionResult{
		UpdatedArtifacts: CloneChanges(r.UpdatedArtifacts),
		ArtifactErrors:   append([]ArtifactError{}, r.ArtifactErrors...),
	}
}

// WithErrors returns a copy of r with errs appended.
func (r *ExecutionResult) WithErrors(errs ...ArtifactError) *ExecutionResult {
	out := r.Clone()
	out.ArtifactErrors = append(out.ArtifactErrors, errs...)
	return out
}

// WithArtifacts returns a copy of r with its artifact list replaced.
func (r *ExecutionResult) WithArtifacts(changes []FileChange) *ExecutionResult {
	out := r.Clone()
	out.UpdatedArtifacts = CloneChanges(changes)
	return out
}

// CloneChanges copies a change list, including each addition's contents.
func CloneChanges(changes []FileChange) []FileChange {
	out := make([]FileChange, 0, len(changes))
	for _, c := range changes {
		if c.Contents != nil {
			c.Contents = append([]byte(nil), c.Contents...)
		}
		out = append(out, c)
	}
	return out
}
