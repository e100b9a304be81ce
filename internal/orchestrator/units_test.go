package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

func groupBranch() *upgrade.BranchConfig {
	return &upgrade.BranchConfig{
		Manager:    "npm",
		BranchName: "renovate/all-minor",
		BaseBranch: "main",
		Upgrades: []upgrade.Upgrade{
			{
				DepName:     "lodash",
				PackageFile: "package.json",
				NewVersion:  "4.17.21",
				PostUpgradeTasks: &upgrade.TaskSpec{
					Commands:    []string{"npm dedupe"},
					FileFilters: []string{"package-lock.json"},
				},
			},
			{
				DepName:     "react",
				Manager:     "yarn",
				PackageFile: "web/package.json",
				PostUpgradeTasks: &upgrade.TaskSpec{
					Commands:      []string{"yarn install"},
					ExecutionMode: upgrade.ModeBranch,
				},
			},
			{
				DepName:     "left-pad",
				PackageFile: "package.json",
			},
		},
		PostUpgradeTasks: &upgrade.TaskSpec{
			Commands:      []string{"make lock"},
			FileFilters:   []string{"**/*.lock"},
			ExecutionMode: upgrade.ModeBranch,
		},
	}
}

func TestBuildUpdateUnits(t *testing.T) {
	units, err := BuildUpdateUnits(PhasePostUpgrade, groupBranch())
	require.NoError(t, err)

	// react runs at branch level; left-pad has no tasks but still forms a unit.
	require.Len(t, units, 2)

	lodash := units[0]
	assert.Equal(t, []string{"lodash"}, lodash.DepNames)
	assert.Equal(t, "npm", lodash.Manager, "manager falls back to the branch")
	assert.Equal(t, "package.json", lodash.PackageFile)
	assert.Equal(t, "renovate/all-minor", lodash.BranchName)
	assert.Equal(t, upgrade.ModeUpdate, lodash.Mode)
	assert.Equal(t, []string{"npm dedupe"}, lodash.Commands)
	assert.Equal(t, []string{"package-lock.json"}, lodash.FileFilters)
	assert.Equal(t, "lodash", lodash.Context["depName"])
	assert.Equal(t, "4.17.21", lodash.Context["newVersion"])
	assert.Equal(t, "main", lodash.Context["baseBranch"])
	assert.Equal(t, true, lodash.Context["isGroup"])

	leftPad := units[1]
	assert.Equal(t, []string{"left-pad"}, leftPad.DepNames)
	assert.False(t, leftPad.HasCommands())
}

func TestBuildUpdateUnits_PhaseSelectsTasks(t *testing.T) {
	units, err := BuildUpdateUnits(PhasePreUpgrade, groupBranch())
	require.NoError(t, err)

	// No pre-upgrade tasks anywhere: every upgrade forms an empty unit.
	require.Len(t, units, 3)
	for _, u := range units {
		assert.False(t, u.HasCommands())
	}
}

func TestBuildUpdateUnits_CopiesTaskLists(t *testing.T) {
	branch := groupBranch()
	units, err := BuildUpdateUnits(PhasePostUpgrade, branch)
	require.NoError(t, err)

	units[0].Commands[0] = "changed"
	assert.Equal(t, "npm dedupe", branch.Upgrades[0].PostUpgradeTasks.Commands[0])
}

func TestBuildBranchUnit(t *testing.T) {
	unit, err := BuildBranchUnit(PhasePostUpgrade, groupBranch())
	require.NoError(t, err)

	assert.Equal(t, []string{"lodash", "react", "left-pad"}, unit.DepNames)
	assert.Equal(t, "lodash react left-pad", unit.DepName())
	assert.Equal(t, "npm", unit.Manager)
	assert.Equal(t, "renovate/all-minor", unit.BranchName)
	assert.Empty(t, unit.PackageFile)
	assert.Equal(t, upgrade.ModeBranch, unit.Mode)
	assert.Equal(t, []string{"make lock"}, unit.Commands)
	assert.Equal(t, []string{"**/*.lock"}, unit.FileFilters)
	assert.Equal(t, "lodash react left-pad", unit.Context["depName"])
}

func TestBuildBranchUnit_UpdateModeHasNoCommands(t *testing.T) {
	branch := groupBranch()
	branch.PostUpgradeTasks.ExecutionMode = upgrade.ModeUpdate

	unit, err := BuildBranchUnit(PhasePostUpgrade, branch)
	require.NoError(t, err)
	assert.False(t, unit.HasCommands())

	branch.PostUpgradeTasks = nil
	unit, err = BuildBranchUnit(PhasePostUpgrade, branch)
	require.NoError(t, err)
	assert.False(t, unit.HasCommands())
}
