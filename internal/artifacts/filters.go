package artifacts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/multierr"
)

// ErrInvalidFilter indicates a malformed file filter glob.
var ErrInvalidFilter = errors.New("invalid file filter")

// ValidateFilter checks that a file filter is a well-formed,
// worktree-relative glob.
func ValidateFilter(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidFilter)
	}
	if strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("%w: %q is absolute", ErrInvalidFilter, pattern)
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("%w: %q is not a valid glob", ErrInvalidFilter, pattern)
	}
	return nil
}

// ValidateFilters validates every pattern and reports all failures.
func ValidateFilters(patterns []string) error {
	var errs error
	for i, p := range patterns {
		if err := ValidateFilter(p); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fileFilters[%d]: %w", i, err))
		}
	}
	return errs
}
