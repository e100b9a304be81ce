package workspace

import (
	"fmt"

	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// PersistUpdatedFiles writes pending additions to the working tree so that
// upgrade commands observe not-yet-committed edits. Only additions whose
// path already exists as a regular file are written. Deletions and new
// paths are left to the branch commit.
//
// It returns the paths written, in order.
func PersistUpdatedFiles(fs FS, files []upgrade.FileChange) ([]string, error) {
	var written []string
	for _, f := range files {
		if !f.IsAddition() || !fs.Exists(f.Path) {
			continue
		}
		if err := fs.WriteFile(f.Path, f.Contents); err != nil {
			return written, fmt.Errorf("persisting %s: %w", f.Path, err)
		}
		written = append(written, f.Path)
	}
	return written, nil
}
