package orchestrator

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/upcmd/internal/tmpl"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// BuildUpdateUnits returns one unit per upgrade whose task mode for phase
// is unset or update. Upgrades without tasks still produce a unit; it has
// no commands and is skipped at execution.
func BuildUpdateUnits(phase Phase, branch *upgrade.BranchConfig) ([]*upgrade.Unit, error) {
	base := tmpl.BranchContext(branch)

	var units []*upgrade.Unit
	for i := range branch.Upgrades {
		u := &branch.Upgrades[i]
		tasks := phase.UpgradeTasks(u)
		if tasks != nil && !tasks.ExecutionMode.IsUpdate() {
			continue
		}

		ctx, err := tmpl.Merge(base, tmpl.UpgradeContext(u))
		if err != nil {
			return nil, fmt.Errorf("building context for %s: %w", u.DepName, err)
		}

		manager := u.Manager
		if manager == "" {
			manager = branch.Manager
		}
		unit := &upgrade.Unit{
			Manager:     manager,
			DepNames:    []string{u.DepName},
			BranchName:  branch.BranchName,
			PackageFile: u.PackageFile,
			Mode:        upgrade.ModeUpdate,
			Context:     ctx,
		}
		applyTasks(unit, tasks)
		units = append(units, unit)
	}
	return units, nil
}

// BuildBranchUnit returns the single unit aggregating every upgrade of the
// branch. It carries the branch-level tasks only when their mode is branch.
func BuildBranchUnit(phase Phase, branch *upgrade.BranchConfig) (*upgrade.Unit, error) {
	names := branch.DepNames()

	override := map[string]any{
		"depName":    strings.Join(names, " "),
		"branchName": branch.BranchName,
	}
	if branch.Manager != "" {
		override["manager"] = branch.Manager
	}
	ctx, err := tmpl.Merge(tmpl.BranchContext(branch), override)
	if err != nil {
		return nil, fmt.Errorf("building branch context: %w", err)
	}

	unit := &upgrade.Unit{
		Manager:    branch.Manager,
		DepNames:   names,
		BranchName: branch.BranchName,
		Mode:       upgrade.ModeBranch,
		Context:    ctx,
	}
	if tasks := phase.BranchTasks(branch); tasks != nil && tasks.ExecutionMode == upgrade.ModeBranch {
		applyTasks(unit, tasks)
	}
	return unit, nil
}

func applyTasks(unit *upgrade.Unit, tasks *upgrade.TaskSpec) {
	if tasks == nil {
		return
	}
	unit.Commands = append([]string(nil), tasks.Commands...)
	unit.FileFilters = append([]string(nil), tasks.FileFilters...)
}
