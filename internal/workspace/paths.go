package workspace

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrPathTraversal indicates a path escapes the worktree root.
	ErrPathTraversal = errors.New("path escapes worktree")

	// ErrAbsolutePath indicates an absolute path was given where a
	// worktree-relative one is required.
	ErrAbsolutePath = errors.New("absolute path not allowed")

	// ErrEmptyPath indicates an empty path.
	ErrEmptyPath = errors.New("path cannot be empty")
)

// CleanRelative validates a worktree-relative path and returns it in clean,
// slash-separated form. File changes come from repository configuration and
// command side effects, so anything that would resolve outside the root is
// rejected.
func CleanRelative(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}
	p = strings.ReplaceAll(p, `\`, "/")
	if path.IsAbs(p) || (len(p) >= 2 && p[1] == ':') {
		return "", fmt.Errorf("%w: %s", ErrAbsolutePath, p)
	}

	clean := path.Clean(p)
	if clean == "." {
		return "", ErrEmptyPath
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, p)
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return "", fmt.Errorf("%w: %s is inside .git", ErrPathTraversal, p)
	}
	return clean, nil
}
