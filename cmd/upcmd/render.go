package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/upcmd/internal/config"
	"github.com/fyrsmithlabs/upcmd/internal/jobfile"
	"github.com/fyrsmithlabs/upcmd/internal/orchestrator"
	"github.com/fyrsmithlabs/upcmd/internal/tmpl"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

var renderDep string

func init() {
	renderCmd.Flags().StringVarP(&jobPath, "job", "j", "", "path to branch job file (YAML)")
	renderCmd.Flags().StringVar(&renderDep, "dep", "", "render for this upgrade instead of the whole branch")
	_ = renderCmd.MarkFlagRequired("job")
}

// renderCmd previews a command template
var renderCmd = &cobra.Command{
	Use:   "render CMD",
	Short: "Render a command template against a branch job",
	Long: `Render a command template with the fields a unit of the branch job
would see. Without --dep the branch-level context is used, where depName
holds every dependency name separated by spaces.

Examples:
  # Preview a per-dependency command
  upcmd render -c upcmd.yaml -j branch.yaml --dep lodash \
    "npm install {{ .depName }}@{{ .newVersion | shellQuote }}"

  # Preview a branch-level command
  upcmd render -c upcmd.yaml -j branch.yaml "echo {{ .depName }}"`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}
	branch, err := jobfile.Load(jobPath)
	if err != nil {
		return err
	}

	if !cfg.AllowUpgradeCommandTemplating {
		cmd.PrintErrln("warning: allow_upgrade_command_templating is off; run executes commands unrendered")
	}

	ctx, err := renderContext(branch, renderDep)
	if err != nil {
		return err
	}

	out, err := tmpl.NewEngine().Render(args[0], ctx)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

// renderContext returns the template context of the named upgrade's unit,
// or of the branch unit when dep is empty.
func renderContext(branch *upgrade.BranchConfig, dep string) (map[string]any, error) {
	if dep == "" {
		unit, err := orchestrator.BuildBranchUnit(orchestrator.PhasePostUpgrade, branch)
		if err != nil {
			return nil, err
		}
		return unit.Context, nil
	}
	for i := range branch.Upgrades {
		if branch.Upgrades[i].DepName == dep {
			return tmpl.Merge(tmpl.BranchContext(branch), tmpl.UpgradeContext(&branch.Upgrades[i]))
		}
	}
	return nil, fmt.Errorf("no upgrade named %q in job", dep)
}
