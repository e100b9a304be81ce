// Package artifacts folds the files changed by upgrade commands into a
// branch's artifact change list.
//
// The list holds at most one entry per path. A path seen as modified or
// untracked becomes an addition carrying its current contents; a path seen
// as deleted becomes a deletion. Each pass removes the opposite entry for the
// same path, so the most recent classification wins.
package artifacts

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
	"github.com/fyrsmithlabs/upcmd/internal/workspace"
)

// StatusProvider reports working tree changes since the last commit.
type StatusProvider interface {
	Status(ctx context.Context) (*workspace.Status, error)
}

// FileReader reads a worktree-relative file.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// Reconciler reads workspace status and merges it into artifact lists.
type Reconciler struct {
	status StatusProvider
	files  FileReader
	logger *zap.Logger
}

// NewReconciler creates a Reconciler. A nil logger is replaced by a no-op.
func NewReconciler(status StatusProvider, files FileReader, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{status: status, files: files, logger: logger}
}

// Reconcile reads the current workspace status and returns current with the
// changed files matching fileFilters merged in. current is not modified.
func (r *Reconciler) Reconcile(ctx context.Context, taskType string, fileFilters []string, current []upgrade.FileChange) ([]upgrade.FileChange, error) {
	if err := ValidateFilters(fileFilters); err != nil {
		return nil, err
	}
	st, err := r.status.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting repository status: %w", err)
	}
	return apply(st, fileFilters, current, r.files.ReadFile, r.observer(taskType))
}

// Apply is the pure merge step of Reconcile: status is folded into current
// using read to load the contents of added or modified files.
func Apply(st *workspace.Status, fileFilters []string, current []upgrade.FileChange, read func(string) ([]byte, error)) ([]upgrade.FileChange, error) {
	if err := ValidateFilters(fileFilters); err != nil {
		return nil, err
	}
	return apply(st, fileFilters, current, read, nil)
}

type observeFunc func(path, pattern string, kind upgrade.ChangeType)

func (r *Reconciler) observer(taskType string) observeFunc {
	return func(path, pattern string, kind upgrade.ChangeType) {
		msg := taskType + " file saved"
		if kind == upgrade.ChangeDeletion {
			msg = taskType + " file removed"
		}
		r.logger.Debug(msg, zap.String("file", path), zap.String("pattern", pattern))
	}
}

func apply(st *workspace.Status, filters []string, current []upgrade.FileChange, read func(string) ([]byte, error), observe observeFunc) ([]upgrade.FileChange, error) {
	out := upgrade.CloneChanges(current)
	if st == nil || len(filters) == 0 {
		return out, nil
	}

	changed := make([]string, 0, len(st.Modified)+len(st.Untracked))
	changed = append(changed, st.Modified...)
	changed = append(changed, st.Untracked...)

	for _, p := range changed {
		pattern, ok := matchAny(filters, p)
		if !ok {
			continue
		}
		contents, err := read(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		if observe != nil {
			observe(p, pattern, upgrade.ChangeAddition)
		}
		out = upsertAddition(out, p, contents)
		out = without(out, p, upgrade.ChangeDeletion)
	}

	for _, p := range st.Deleted {
		pattern, ok := matchAny(filters, p)
		if !ok {
			continue
		}
		if observe != nil {
			observe(p, pattern, upgrade.ChangeDeletion)
		}
		if !contains(out, p, upgrade.ChangeDeletion) {
			out = append(out, upgrade.FileChange{Path: p, Type: upgrade.ChangeDeletion})
		}
		out = without(out, p, upgrade.ChangeAddition)
	}

	return out, nil
}

// upsertAddition replaces the contents of the addition for path, or appends
// a new addition when there is none.
func upsertAddition(changes []upgrade.FileChange, path string, contents []byte) []upgrade.FileChange {
	for i := range changes {
		if changes[i].Path == path && changes[i].IsAddition() {
			changes[i].Contents = contents
			return changes
		}
	}
	return append(changes, upgrade.FileChange{
		Path:     path,
		Type:     upgrade.ChangeAddition,
		Contents: contents,
	})
}

// without drops entries of the given kind for path, preserving order.
func without(changes []upgrade.FileChange, path string, kind upgrade.ChangeType) []upgrade.FileChange {
	out := changes[:0]
	for _, c := range changes {
		if c.Path == path && c.Type == kind {
			continue
		}
		out = append(out, c)
	}
	return out
}

func contains(changes []upgrade.FileChange, path string, kind upgrade.ChangeType) bool {
	for _, c := range changes {
		if c.Path == path && c.Type == kind {
			return true
		}
	}
	return false
}

// matchAny returns the first filter matching path.
func matchAny(filters []string, path string) (string, bool) {
	for _, f := range filters {
		if ok, _ := doublestar.Match(f, path); ok {
			return f, true
		}
	}
	return "", false
}
