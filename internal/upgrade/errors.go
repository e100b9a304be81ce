package upgrade

import (
	"errors"
	"fmt"
)

// ErrorKind tags the way a command failed.
type ErrorKind string

const (
	// KindCommandRejected means the command matched no allow-list pattern.
	KindCommandRejected ErrorKind = "command_rejected"

	// KindCommandExecutionFailed means the process exited non-zero or could
	// not be spawned.
	KindCommandExecutionFailed ErrorKind = "command_execution_failed"

	// KindTemplateRenderFailed means the command template could not be rendered.
	KindTemplateRenderFailed ErrorKind = "template_render_failed"
)

var (
	// ErrCommandRejected is the sentinel for KindCommandRejected.
	ErrCommandRejected = errors.New("command rejected by allow-list")

	// ErrCommandExecutionFailed is the sentinel for KindCommandExecutionFailed.
	ErrCommandExecutionFailed = errors.New("command execution failed")

	// ErrTemplateRenderFailed is the sentinel for KindTemplateRenderFailed.
	ErrTemplateRenderFailed = errors.New("template render failed")
)

// Sentinel returns the sentinel error for the kind, or nil if unknown.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindCommandRejected:
		return ErrCommandRejected
	case KindCommandExecutionFailed:
		return ErrCommandExecutionFailed
	case KindTemplateRenderFailed:
		return ErrTemplateRenderFailed
	}
	return nil
}

// CommandError is a tagged failure of a single configured command.
type CommandError struct {
	Kind    ErrorKind
	Command string
	Err     error
}

// NewCommandError wraps err as a command failure of the given kind.
func NewCommandError(kind ErrorKind, cmd string, err error) *CommandError {
	return &CommandError{Kind: kind, Command: cmd, Err: err}
}

func (e *CommandError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Command)
	}
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e's kind, so errors.Is(err, ErrCommandRejected)
// works without inspecting messages.
func (e *CommandError) Is(target error) bool {
	return target != nil && target == e.Kind.Sentinel()
}

// ArtifactError is a user-visible failure scoped to a package or lock file.
type ArtifactError struct {
	LockFile string    `json:"lockFile,omitempty" yaml:"lockFile,omitempty"`
	Stderr   string    `json:"stderr" yaml:"stderr"`
	Kind     ErrorKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// TemplatePolicy decides what a template render failure does to a phase.
type TemplatePolicy string

const (
	// PolicyArtifactError records the failure as an ArtifactError and moves
	// on to the next command.
	PolicyArtifactError TemplatePolicy = "artifact_error"

	// PolicyAbort stops the phase and returns the render error.
	PolicyAbort TemplatePolicy = "abort"
)

// ParseTemplatePolicy maps a config value to a policy. Empty selects
// PolicyArtifactError.
func ParseTemplatePolicy(s string) (TemplatePolicy, error) {
	switch TemplatePolicy(s) {
	case "", PolicyArtifactError:
		return PolicyArtifactError, nil
	case PolicyAbort:
		return PolicyAbort, nil
	}
	return "", fmt.Errorf("unknown template failure policy %q (want %q or %q)", s, PolicyArtifactError, PolicyAbort)
}
