// Package main implements the upcmd CLI, which runs allow-listed upgrade
// commands for a branch job and prints the resulting artifacts.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML configuration file
	configPath string

	// version information, set via ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "upcmd",
	Short: "Run allow-listed upgrade commands for a dependency branch",
	Long: `upcmd runs the pre- and post-upgrade commands configured for a
dependency update branch, then collects the files those commands changed.

Commands only run when they match one of the allowed_upgrade_commands
patterns. Failures are reported as artifact errors in the JSON result.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(versionCmd)
}
