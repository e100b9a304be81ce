package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"
)

// Output is the captured result of one process.
type Output struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// Executor runs one shell command in a working directory.
type Executor interface {
	Exec(ctx context.Context, command, cwd string) (*Output, error)
}

// ExitError reports a command that ran but did not succeed.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExitError) Error() string {
	var head string
	switch {
	case e.TimedOut:
		head = fmt.Sprintf("Command timed out: %s", e.Command)
	default:
		head = fmt.Sprintf("Command failed: %s", e.Command)
	}
	if e.Stderr == "" {
		return head
	}
	return head + "\n" + e.Stderr
}

func (e *ExitError) Unwrap() error { return e.Err }

const (
	defaultMaxOutput = 4 << 20 // 4MB per stream
	waitDelay        = 5 * time.Second
)

// ShellExecutor runs commands through a POSIX shell with os/exec.
type ShellExecutor struct {
	// Shell is invoked as `Shell -c command`. Defaults to /bin/sh.
	Shell string

	// Timeout bounds each command; 0 means no limit beyond ctx.
	Timeout time.Duration

	// Env is layered over the parent environment.
	Env map[string]string

	// MaxOutputBytes caps each captured stream. Excess output is dropped.
	MaxOutputBytes int
}

// Exec runs command with cwd as its working directory. A non-zero exit or a
// timeout is returned as *ExitError together with the captured output; a
// spawn failure is returned as-is with a nil Output.
func (s *ShellExecutor) Exec(ctx context.Context, command, cwd string) (*Output, error) {
	shell := s.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	limit := s.MaxOutputBytes
	if limit <= 0 {
		limit = defaultMaxOutput
	}

	execCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, shell, "-c", command)
	cmd.Dir = cwd
	cmd.Env = s.environ()
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, max: limit}
	cmd.Stderr = &limitedWriter{w: &stderr, max: limit}

	start := time.Now()
	err := cmd.Run()
	out := &Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case execCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil:
		return out, &ExitError{Command: command, ExitCode: out.ExitCode, Stderr: out.Stderr, TimedOut: true, Err: err}
	case errors.As(err, &exitErr):
		return out, &ExitError{Command: command, ExitCode: out.ExitCode, Stderr: out.Stderr, Err: err}
	case ctx.Err() != nil:
		return out, ctx.Err()
	default:
		return nil, fmt.Errorf("starting %s: %w", shell, err)
	}
}

func (s *ShellExecutor) environ() []string {
	env := os.Environ()
	if len(s.Env) == 0 {
		return env
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

// limitedWriter keeps at most max bytes and silently drops the rest so a
// chatty command cannot exhaust memory.
type limitedWriter struct {
	w         *bytes.Buffer
	max       int
	truncated bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	room := l.max - l.w.Len()
	if room <= 0 {
		l.truncated = len(p) > 0 || l.truncated
		return len(p), nil
	}
	if len(p) > room {
		l.w.Write(p[:room])
		l.truncated = true
		return len(p), nil
	}
	return l.w.Write(p)
}
