// Package orchestrator runs configured upgrade commands for a branch and
// folds their side effects into the branch's artifact list.
//
// # Overview
//
// A phase (pre-upgrade or post-upgrade) fans out at two levels:
//
//	update units (one per dependency)  →  branch unit (all dependencies)
//
// The branch pass is seeded with the result of the update pass, so the
// artifact and error lists only grow across a phase.
//
// # Units
//
// For each unit with commands the orchestrator
//   - writes the pending package file edits and current artifacts to the
//     working tree, once per unit
//   - validates each command against the allow-list, renders it and runs it
//     in order, appending failures as artifact errors
//   - reconciles the working tree status into the artifact list, once per
//     unit, using the unit's file filters
//
// # Phase Gates
//
// Gates run before a phase and can skip it entirely:
//   - AllowListGate: no allowed command patterns configured
//   - ChangedFilesGate: post-upgrade only, nothing changed on the branch
//
// A skipped phase returns a nil result and touches no collaborator.
//
// # Usage Example
//
//	repo, _ := workspace.Open(dir)
//	r := runner.New(&runner.ShellExecutor{}, dir, runner.WithLogger(logger))
//	rec := artifacts.NewReconciler(repo, repo, logger.Underlying())
//	orch := orchestrator.New(r, rec, repo, orchestrator.WithLogger(logger))
//
//	result, err := orch.Execute(ctx, orchestrator.PhasePostUpgrade, branch,
//	    orchestrator.SettingsFromConfig(cfg))
//
// # Errors
//
// Rejected and failed commands are data: they end up in the result's
// ArtifactErrors. Infrastructure failures (persisting files, reading status),
// cancellation and, under the abort template policy, render failures are
// returned as errors.
package orchestrator
