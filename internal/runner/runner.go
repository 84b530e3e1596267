// Package runner executes the program under test as a child process,
// bounded to a workspace directory, with optional timeout and capped
// output capture.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// waitDelay bounds how long Run waits for output pipes held open by
// descendants of a killed child.
const waitDelay = time.Second

// Runner executes commands within a workspace boundary.
type Runner struct {
	Workspace string        // cwd must resolve inside this directory
	Timeout   time.Duration // zero waits for the child indefinitely
	MaxOutput int           // bytes kept per stream
}

// Run executes argv synchronously and waits for it to exit. argv[0] is
// the binary (resolved via PATH when not a path) and the rest are passed
// as discrete arguments; no shell is involved. cwd is resolved relative to
// the workspace root and must remain within it.
//
// A non-zero exit is reported through Result.ExitCode, not as an error.
// An error means the process could not be run at all.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	prepareCommand(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitWriter{buf: &stdout, limit: r.MaxOutput}
	cmd.Stderr = &limitWriter{buf: &stderr, limit: r.MaxOutput}

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	truncated := r.MaxOutput > 0 && (stdout.Len() >= r.MaxOutput || stderr.Len() >= r.MaxOutput)

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Binary not found, exec format error and the like.
			return nil, fmt.Errorf("executing %s: %w", argv[0], runErr)
		}
	}

	return &Result{
		RunID:     runID,
		ExitCode:  exitCode,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: truncated,
		Duration:  elapsed,
	}, nil
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}
	if r.Workspace == "" {
		return filepath.Clean(cwd), nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
type limitWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	return w.buf.Write(p)
}
