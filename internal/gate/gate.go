// Package gate decides whether a configured upgrade command may run and
// renders command templates.
//
// The allow-list is the only safety boundary between repository
// configuration and arbitrary code execution in the build environment: a
// command that does not match any pattern must never reach a process.
package gate

import (
	"fmt"
	"regexp"

	"go.uber.org/multierr"

	"github.com/fyrsmithlabs/upcmd/internal/upgrade"
)

// AllowList is a compiled set of allowed command patterns.
type AllowList struct {
	patterns []string
	compiled []*regexp.Regexp
}

// Compile anchors and compiles each pattern so it must match a whole command
// string. All invalid patterns are reported together.
func Compile(patterns []string) (*AllowList, error) {
	al := &AllowList{
		patterns: append([]string(nil), patterns...),
		compiled: make([]*regexp.Regexp, 0, len(patterns)),
	}

	var errs error
	for i, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("allowed_upgrade_commands[%d] %q: %w", i, p, err))
			continue
		}
		al.compiled = append(al.compiled, re)
	}
	if errs != nil {
		return nil, errs
	}
	return al, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(patterns ...string) *AllowList {
	al, err := Compile(patterns)
	if err != nil {
		panic(err)
	}
	return al
}

// Validate reports whether cmd matches at least one pattern. An empty or nil
// allow-list rejects everything.
func (a *AllowList) Validate(cmd string) bool {
	_, ok := a.Match(cmd)
	return ok
}

// Match returns the first configured pattern that matches cmd.
func (a *AllowList) Match(cmd string) (string, bool) {
	if a == nil {
		return "", false
	}
	for i, re := range a.compiled {
		if re.MatchString(cmd) {
			return a.patterns[i], true
		}
	}
	return "", false
}

// Empty reports whether no pattern is configured.
func (a *AllowList) Empty() bool {
	return a == nil || len(a.compiled) == 0
}

// Patterns returns the configured (unanchored) patterns.
func (a *AllowList) Patterns() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.patterns...)
}

// RejectionMessage is the user-visible error for a command absent from the
// allow-list. taskType is e.g. "Post-upgrade".
func RejectionMessage(taskType, cmd string) string {
	return fmt.Sprintf("%s command '%s' has not been added to the allowed list in allowedUpgradeCommands", taskType, cmd)
}

// Reject builds the tagged error for a rejected command.
func Reject(taskType, cmd string) *upgrade.CommandError {
	return upgrade.NewCommandError(upgrade.KindCommandRejected, cmd,
		fmt.Errorf("%w: %s", upgrade.ErrCommandRejected, RejectionMessage(taskType, cmd)))
}
