package main

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/upcmd/internal/config"
	"github.com/fyrsmithlabs/upcmd/internal/gate"
)

// checkCmd tests commands against the allow-list
var checkCmd = &cobra.Command{
	Use:   "check CMD...",
	Short: "Check commands against the allow-list",
	Long: `Report whether each command matches one of the configured
allowed_upgrade_commands patterns. Each pattern must match the whole command.

Examples:
  # Check a single command
  upcmd check --config upcmd.yaml "npm ci --ignore-scripts"

  # Check several commands
  upcmd check -c upcmd.yaml "npm dedupe" "rm -rf /"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	allow, err := gate.Compile(cfg.AllowedUpgradeCommands)
	if err != nil {
		return fmt.Errorf("invalid allowed_upgrade_commands: %w", err)
	}
	if allow.Empty() {
		cmd.PrintErrln("warning: allowed_upgrade_commands is empty; no command will run")
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Result", "Command", "Pattern")

	rejected := 0
	for _, c := range args {
		if pattern, ok := allow.Match(c); ok {
			_ = table.Append([]string{"allowed", c, pattern})
			continue
		}
		rejected++
		_ = table.Append([]string{"rejected", c, "-"})
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	if rejected > 0 {
		return fmt.Errorf("%d of %d commands rejected", rejected, len(args))
	}
	return nil
}
