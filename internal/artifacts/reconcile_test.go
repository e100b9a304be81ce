package artifacts

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/upcmd/internal/logging"
	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
	"github.com/fyrsmithlabs/upcmd/internal/workspace"
)

type fakeWorkspace struct {
	status *workspace.Status
	files  map[string]string
	err    error
}

func (f *fakeWorkspace) Status(context.Context) (*workspace.Status, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.status, nil
}

func (f *fakeWorkspace) ReadFile(p string) ([]byte, error) {
	c, ok := f.files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: file does not exist", p)
	}
	return []byte(c), nil
}

func addition(p, c string) upgrade.FileChange {
	return upgrade.FileChange{Path: p, Type: upgrade.ChangeAddition, Contents: []byte(c)}
}

func deletion(p string) upgrade.FileChange {
	return upgrade.FileChange{Path: p, Type: upgrade.ChangeDeletion}
}

func TestReconcile_ModifiedAndDeleted(t *testing.T) {
	ws := &fakeWorkspace{
		status: &workspace.Status{Modified: []string{"a.lock"}, Deleted: []string{"b.lock"}},
		files:  map[string]string{"a.lock": "content-a"},
	}
	r := NewReconciler(ws, ws, nil)

	got, err := r.Reconcile(context.Background(), "Post-upgrade", []string{"*.lock"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []upgrade.FileChange{
		addition("a.lock", "content-a"),
		deletion("b.lock"),
	}, got)
}

func TestReconcile_FiltersApplied(t *testing.T) {
	ws := &fakeWorkspace{
		status: &workspace.Status{
			Modified:  []string{"package.json", "sub/dir/yarn.lock"},
			Untracked: []string{"tmp/debug.log", "yarn.lock"},
			Deleted:   []string{"README.md"},
		},
		files: map[string]string{
			"package.json":      "{}",
			"sub/dir/yarn.lock": "nested",
			"tmp/debug.log":     "noise",
			"yarn.lock":         "root",
		},
	}

	got, err := Apply(ws.status, []string{"**/yarn.lock"}, nil, ws.ReadFile)
	require.NoError(t, err)

	assert.Equal(t, []upgrade.FileChange{
		addition("sub/dir/yarn.lock", "nested"),
		addition("yarn.lock", "root"),
	}, got)
}

func TestReconcile_NoFiltersNoChanges(t *testing.T) {
	st := &workspace.Status{Modified: []string{"a.lock"}}
	current := []upgrade.FileChange{deletion("x")}

	got, err := Apply(st, nil, current, func(string) ([]byte, error) {
		t.Fatal("nothing should be read without filters")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, current, got)
}

func TestReconcile_Idempotent(t *testing.T) {
	ws := &fakeWorkspace{
		status: &workspace.Status{
			Modified:  []string{"a.lock"},
			Untracked: []string{"c.lock"},
			Deleted:   []string{"b.lock"},
		},
		files: map[string]string{"a.lock": "A", "c.lock": "C"},
	}
	r := NewReconciler(ws, ws, nil)
	filters := []string{"*.lock"}

	first, err := r.Reconcile(context.Background(), "Post-upgrade", filters, nil)
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), "Post-upgrade", filters, first)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 3)
}

func TestReconcile_UpsertReplacesContents(t *testing.T) {
	st := &workspace.Status{Modified: []string{"a.lock"}}
	current := []upgrade.FileChange{addition("a.lock", "old"), addition("other", "o")}

	got, err := Apply(st, []string{"*.lock"}, current, func(string) ([]byte, error) {
		return []byte("new"), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []upgrade.FileChange{addition("a.lock", "new"), addition("other", "o")}, got)
	assert.Equal(t, "old", string(current[0].Contents), "input must not be modified")
}

func TestReconcile_RecreatedFileClearsDeletion(t *testing.T) {
	// An earlier unit deleted a.lock; a later unit's command recreated it.
	st := &workspace.Status{Untracked: []string{"a.lock"}}
	current := []upgrade.FileChange{deletion("a.lock")}

	got, err := Apply(st, []string{"*.lock"}, current, func(string) ([]byte, error) {
		return []byte("again"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []upgrade.FileChange{addition("a.lock", "again")}, got)
}

func TestReconcile_DeletionClearsAddition(t *testing.T) {
	st := &workspace.Status{Deleted: []string{"a.lock"}}
	current := []upgrade.FileChange{addition("a.lock", "A"), addition("b.lock", "B")}

	got, err := Apply(st, []string{"*.lock"}, current, nil)
	require.NoError(t, err)
	assert.Equal(t, []upgrade.FileChange{addition("b.lock", "B"), deletion("a.lock")}, got)
}

func TestReconcile_DeletionNotDuplicated(t *testing.T) {
	st := &workspace.Status{Deleted: []string{"a.lock"}}
	current := []upgrade.FileChange{deletion("a.lock")}

	got, err := Apply(st, []string{"*.lock", "a.*"}, current, nil)
	require.NoError(t, err)
	assert.Equal(t, []upgrade.FileChange{deletion("a.lock")}, got)
}

func TestReconcile_ModifiedAndDeletedSamePathDeletionWins(t *testing.T) {
	st := &workspace.Status{Modified: []string{"a.lock"}, Deleted: []string{"a.lock"}}

	got, err := Apply(st, []string{"*.lock"}, nil, func(string) ([]byte, error) {
		return []byte("A"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []upgrade.FileChange{deletion("a.lock")}, got)
}

func TestReconcile_AtMostOneEntryPerPath(t *testing.T) {
	statuses := []*workspace.Status{
		{Modified: []string{"a.lock", "b.lock"}},
		{Deleted: []string{"a.lock"}, Untracked: []string{"c.lock"}},
		{Untracked: []string{"a.lock"}, Deleted: []string{"b.lock"}},
		{Modified: []string{"c.lock"}},
	}
	read := func(p string) ([]byte, error) { return []byte(p), nil }

	var artifacts []upgrade.FileChange
	for _, st := range statuses {
		var err error
		artifacts, err = Apply(st, []string{"*.lock"}, artifacts, read)
		require.NoError(t, err)

		seen := map[string]bool{}
		for _, a := range artifacts {
			assert.False(t, seen[a.Path], "duplicate entry for %s", a.Path)
			seen[a.Path] = true
		}
	}

	assert.ElementsMatch(t, []upgrade.FileChange{
		addition("a.lock", "a.lock"),
		deletion("b.lock"),
		addition("c.lock", "c.lock"),
	}, artifacts)
}

func TestReconcile_Errors(t *testing.T) {
	t.Run("status failure", func(t *testing.T) {
		ws := &fakeWorkspace{err: errors.New("index locked")}
		_, err := NewReconciler(ws, ws, nil).Reconcile(context.Background(), "Pre-upgrade", []string{"*"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index locked")
	})

	t.Run("unreadable file", func(t *testing.T) {
		ws := &fakeWorkspace{status: &workspace.Status{Modified: []string{"gone.lock"}}}
		_, err := NewReconciler(ws, ws, nil).Reconcile(context.Background(), "Pre-upgrade", []string{"*.lock"}, nil)
		assert.Error(t, err)
	})

	t.Run("invalid filter", func(t *testing.T) {
		ws := &fakeWorkspace{status: &workspace.Status{}}
		_, err := NewReconciler(ws, ws, nil).Reconcile(context.Background(), "Pre-upgrade", []string{"[", "/abs/*"}, nil)
		assert.ErrorIs(t, err, ErrInvalidFilter)
	})
}

func TestReconcile_LogsSavedAndRemoved(t *testing.T) {
	tl := logging.NewTestLogger()
	ws := &fakeWorkspace{
		status: &workspace.Status{Modified: []string{"a.lock"}, Deleted: []string{"b.lock"}},
		files:  map[string]string{"a.lock": "A"},
	}

	_, err := NewReconciler(ws, ws, tl.Underlying()).Reconcile(context.Background(), "Post-upgrade", []string{"*.lock"}, nil)
	require.NoError(t, err)

	tl.AssertField(t, "Post-upgrade file saved", "file", "a.lock")
	tl.AssertField(t, "Post-upgrade file removed", "file", "b.lock")
}

func TestApply_Scenarios(t *testing.T) {
	read := func(p string) ([]byte, error) { return []byte("new " + p), nil }
	byPath := cmpopts.SortSlices(func(a, b upgrade.FileChange) bool { return a.Path < b.Path })

	tests := []struct {
		name    string
		status  *workspace.Status
		filters []string
		current []upgrade.FileChange
		want    []upgrade.FileChange
	}{
		{
			name:    "nested lock files with globstar",
			status:  &workspace.Status{Modified: []string{"web/yarn.lock", "api/go.sum"}},
			filters: []string{"**/*.lock"},
			want:    []upgrade.FileChange{addition("web/yarn.lock", "new web/yarn.lock")},
		},
		{
			name:    "brace alternatives",
			status:  &workspace.Status{Untracked: []string{"go.sum", "go.mod", "main.go"}},
			filters: []string{"go.{mod,sum}"},
			want: []upgrade.FileChange{
				addition("go.mod", "new go.mod"),
				addition("go.sum", "new go.sum"),
			},
		},
		{
			name:    "deletion replaces earlier addition",
			status:  &workspace.Status{Deleted: []string{"package-lock.json"}},
			filters: []string{"package-lock.json"},
			current: []upgrade.FileChange{addition("package-lock.json", "old"), addition("package.json", "p")},
			want:    []upgrade.FileChange{addition("package.json", "p"), deletion("package-lock.json")},
		},
		{
			name:    "unmatched paths leave the list untouched",
			status:  &workspace.Status{Modified: []string{"README.md"}, Deleted: []string{"docs/a.md"}},
			filters: []string{"*.lock"},
			current: []upgrade.FileChange{deletion("old.lock")},
			want:    []upgrade.FileChange{deletion("old.lock")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.status, tt.filters, tt.current, read)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, byPath, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
