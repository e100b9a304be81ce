package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

func TestAllowListGate_Name(t *testing.T) {
	assert.Equal(t, "allow-list-gate", NewAllowListGate().Name())
}

func TestAllowListGate_Check(t *testing.T) {
	gate := NewAllowListGate()
	ctx := context.Background()

	reason, err := gate.Check(ctx, &PassState{Settings: Settings{}})
	require.NoError(t, err)
	assert.NotEmpty(t, reason, "empty allow-list should skip")

	reason, err = gate.Check(ctx, &PassState{Settings: Settings{AllowedUpgradeCommands: []string{"^echo .*"}}})
	require.NoError(t, err)
	assert.Empty(t, reason)
}

func TestChangedFilesGate_Name(t *testing.T) {
	assert.Equal(t, "changed-files-gate", NewChangedFilesGate().Name())
}

func TestChangedFilesGate_Check(t *testing.T) {
	gate := NewChangedFilesGate()
	ctx := context.Background()

	tests := []struct {
		name     string
		branch   *upgrade.BranchConfig
		wantSkip bool
	}{
		{name: "nil branch", branch: nil, wantSkip: true},
		{name: "nothing changed", branch: &upgrade.BranchConfig{}, wantSkip: true},
		{
			name: "package file changed",
			branch: &upgrade.BranchConfig{
				UpdatedPackageFiles: []upgrade.FileChange{{Path: "package.json", Type: upgrade.ChangeAddition}},
			},
		},
		{
			name: "artifact changed",
			branch: &upgrade.BranchConfig{
				UpdatedArtifacts: []upgrade.FileChange{{Path: "a.lock", Type: upgrade.ChangeDeletion}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, err := gate.Check(ctx, &PassState{Phase: PhasePostUpgrade, Branch: tt.branch})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSkip, reason != "")
		})
	}
}

func TestDefaultGates(t *testing.T) {
	gates := DefaultGates()

	require.Len(t, gates[PhasePreUpgrade], 1)
	assert.Equal(t, "allow-list-gate", gates[PhasePreUpgrade][0].Name())

	require.Len(t, gates[PhasePostUpgrade], 2)
	assert.Equal(t, "changed-files-gate", gates[PhasePostUpgrade][0].Name())
	assert.Equal(t, "allow-list-gate", gates[PhasePostUpgrade][1].Name())
}
