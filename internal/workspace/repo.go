// Package workspace provides the working-tree collaborators of the upgrade
// command orchestrator: repository status since the last commit and file
// I/O rooted at the repository worktree.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
)

// ErrNotGitRepo indicates the directory is not a Git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// Status is the set of paths changed in the working tree since the last
// commit. Paths are slash separated, relative to the worktree root and
// sorted.
type Status struct {
	Modified  []string
	Untracked []string
	Deleted   []string
}

// Empty reports whether nothing changed.
func (s *Status) Empty() bool {
	return len(s.Modified) == 0 && len(s.Untracked) == 0 && len(s.Deleted) == 0
}

// FS is file I/O relative to a working tree.
type FS interface {
	Exists(path string) bool
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
}

// Files implements FS over a billy filesystem. Every path is validated to
// stay inside the root.
type Files struct {
	fs billy.Filesystem
}

// NewFiles returns an FS rooted at dir on the local disk. Symlinks are
// resolved within dir.
func NewFiles(dir string) *Files {
	return &Files{fs: osfs.New(dir, osfs.WithBoundOS())}
}

// NewFilesFrom wraps an existing billy filesystem, e.g. a memfs in tests.
func NewFilesFrom(fs billy.Filesystem) *Files {
	return &Files{fs: fs}
}

// Root returns the filesystem root.
func (f *Files) Root() string {
	return f.fs.Root()
}

// Exists reports whether path is an existing regular file, following
// symlinks.
func (f *Files) Exists(p string) bool {
	clean, err := CleanRelative(p)
	if err != nil {
		return false
	}
	info, err := f.fs.Stat(clean)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// ReadFile returns the contents of path.
func (f *Files) ReadFile(p string) ([]byte, error) {
	clean, err := CleanRelative(p)
	if err != nil {
		return nil, err
	}
	file, err := f.fs.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", clean, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", clean, err)
	}
	return data, nil
}

// WriteFile replaces the contents of path, creating parent directories.
func (f *Files) WriteFile(p string, data []byte) error {
	clean, err := CleanRelative(p)
	if err != nil {
		return err
	}
	perm := os.FileMode(0o644)
	if info, err := f.fs.Stat(clean); err == nil {
		perm = info.Mode().Perm()
	}
	if dir := path.Dir(clean); dir != "." {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := util.WriteFile(f.fs, clean, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", clean, err)
	}
	return nil
}

// Repo is a Git working tree: the status collaborator plus file I/O.
type Repo struct {
	*Files
	repo *git.Repository
}

// Open opens the Git repository whose worktree root is dir.
func Open(dir string) (*Repo, error) {
	r, err := git.PlainOpen(dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, dir)
		}
		return nil, fmt.Errorf("opening repository %s: %w", dir, err)
	}
	wt, err := r.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree %s: %w", dir, err)
	}
	return &Repo{Files: NewFilesFrom(wt.Filesystem), repo: r}, nil
}

// Status returns the working tree changes relative to HEAD. Files staged
// as added are reported as untracked, since both are new to the branch.
func (r *Repo) Status(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("reading repository status: %w", err)
	}

	out := &Status{}
	for p, fs := range st {
		switch {
		case fs.Worktree == git.Deleted || fs.Staging == git.Deleted:
			out.Deleted = append(out.Deleted, p)
		case fs.Worktree == git.Untracked || fs.Staging == git.Added:
			out.Untracked = append(out.Untracked, p)
		case fs.Worktree == git.Modified || fs.Staging == git.Modified:
			out.Modified = append(out.Modified, p)
		}
	}
	sort.Strings(out.Modified)
	sort.Strings(out.Untracked)
	sort.Strings(out.Deleted)
	return out, nil
}
