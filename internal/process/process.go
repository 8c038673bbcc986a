// Package process runs short-lived external commands with a bounded timeout
// and capped output. Used for the secret-store CLI.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty commands.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultTimeout = 30 * time.Second

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the command itself was killed.
	waitDelay = 2 * time.Second
)

// Sentinel errors returned by Run. A non-zero exit is not an error: it is
// reported through Result.ExitCode.
var (
	ErrTimeout  = errors.New("command timed out")
	ErrNotFound = errors.New("executable not found")
)

// Command describes one invocation.
type Command struct {
	// Path is the program to execute, looked up in PATH when not absolute.
	Path string
	Args []string

	// Env overrides entries of the inherited environment.
	Env map[string]string

	// Timeout overrides the runner default. Zero = use default.
	Timeout time.Duration
}

// Result captures the outcome of a command that ran to completion.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes commands. Safe for concurrent use.
type Runner struct {
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewRunner creates a Runner. A zero timeout selects the 30s default.
func NewRunner(timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{defaultTimeout: timeout, logger: logger}
}

// Run executes the command and waits for it.
// The child inherits the current environment plus cmd.Env overrides.
// Output is never logged; only sizes and exit codes are.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("empty command")
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = buildEnv(c.Env)
	cmd.WaitDelay = waitDelay

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
			r.logger.Warn("command not found", slog.String("command", c.Path))
			return nil, fmt.Errorf("%w: %s", ErrNotFound, c.Path)
		}
		if ctx.Err() != nil {
			r.logger.Warn("command timed out",
				slog.String("command", c.Path),
				slog.Duration("timeout", timeout),
			)
			return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running %s: %w", c.Path, runErr)
		}
	}

	r.logger.Debug("command completed",
		slog.String("command", c.Path),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
		slog.Int("stdout_bytes", stdoutBuf.Len()),
		slog.Int("stderr_bytes", stderrBuf.Len()),
	)

	return &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// buildEnv returns the inherited environment with overrides applied.
func buildEnv(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return nil // nil = inherit unchanged
	}
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is silently discarded.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil
	}
	n := len(p)
	if n > lw.remaining {
		p = p[:lw.remaining]
	}
	written, err := lw.w.Write(p)
	lw.remaining -= written
	if err != nil {
		return written, err
	}
	return n, nil
}
