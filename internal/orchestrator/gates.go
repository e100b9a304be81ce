package orchestrator

import (
	"context"
)

// AllowListGate skips a phase when no allowed command patterns are
// configured, which disables upgrade commands entirely.
type AllowListGate struct{}

// NewAllowListGate creates a new allow-list gate
func NewAllowListGate() *AllowListGate {
	return &AllowListGate{}
}

// Name returns the gate identifier
func (g *AllowListGate) Name() string {
	return "allow-list-gate"
}

// Check reports a skip reason when the allow-list is empty.
func (g *AllowListGate) Check(ctx context.Context, state *PassState) (string, error) {
	if len(state.Settings.AllowedUpgradeCommands) == 0 {
		return "no allowedUpgradeCommands configured", nil
	}
	return "", nil
}

// ChangedFilesGate skips a phase when the branch has neither updated
// package files nor updated artifacts.
type ChangedFilesGate struct{}

// NewChangedFilesGate creates a new changed-files gate
func NewChangedFilesGate() *ChangedFilesGate {
	return &ChangedFilesGate{}
}

// Name returns the gate identifier
func (g *ChangedFilesGate) Name() string {
	return "changed-files-gate"
}

// Check reports a skip reason when nothing on the branch has changed.
func (g *ChangedFilesGate) Check(ctx context.Context, state *PassState) (string, error) {
	if state.Branch == nil || !state.Branch.HasChangedFiles() {
		return "no updated package files or artifacts", nil
	}
	return "", nil
}

// DefaultGates returns the gates every orchestrator starts with. Post-upgrade
// tasks only run when there is something to post-process.
func DefaultGates() map[Phase][]PhaseGate {
	return map[Phase][]PhaseGate{
		PhasePreUpgrade:  {NewAllowListGate()},
		PhasePostUpgrade: {NewChangedFilesGate(), NewAllowListGate()},
	}
}
