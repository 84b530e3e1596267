// Package report provides the structured result of a harness run and its
// persistence, so that failing cases can be inspected after the fact.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome of a single test case.
type Status string

const (
	// Pass means the executable exited 0 and its output matched the golden file.
	Pass Status = "pass"
	// ProcessFailure means the executable exited non-zero or could not be started.
	ProcessFailure Status = "process_failure"
	// ContentMismatch means the output differed from the golden file.
	ContentMismatch Status = "content_mismatch"
	// FilesystemError means scratch or fixture state could not be prepared.
	FilesystemError Status = "filesystem_error"
)

// Label returns a short human-readable form of s.
func (s Status) Label() string {
	switch s {
	case Pass:
		return "ok"
	case ProcessFailure:
		return "process failure"
	case ContentMismatch:
		return "content mismatch"
	case FilesystemError:
		return "filesystem error"
	}
	return string(s)
}

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// RunResult holds the outcome of one harness run.
type RunResult struct {
	ID         string        `json:"id"`
	Modules    []string      `json:"modules"`
	Executable string        `json:"executable"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
	Cases      []CaseResult  `json:"cases"`
}

// Passed reports whether every case passed. A run without cases passes.
func (r *RunResult) Passed() bool {
	for _, c := range r.Cases {
		if !c.Passed() {
			return false
		}
	}
	return true
}

// Failures returns the cases that did not pass, in execution order.
func (r *RunResult) Failures() []CaseResult {
	var out []CaseResult
	for _, c := range r.Cases {
		if !c.Passed() {
			out = append(out, c)
		}
	}
	return out
}

// Case finds a case by "module/name" or, when unambiguous, by bare name.
func (r *RunResult) Case(ref string) (*CaseResult, error) {
	var match *CaseResult
	for i := range r.Cases {
		c := &r.Cases[i]
		if c.Ref() == ref {
			return c, nil
		}
		if c.Name == ref {
			if match != nil {
				return nil, fmt.Errorf("case %q is ambiguous in run %s (%s, %s)", ref, r.ID, match.Ref(), c.Ref())
			}
			match = c
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no case %q in run %s", ref, r.ID)
	}
	return match, nil
}

// CaseResult holds the outcome of one golden-comparison test case.
type CaseResult struct {
	Module   string   `json:"module"`
	Name     string   `json:"name"`
	Status   Status   `json:"status"`
	Argv     []string `json:"argv,omitempty"`
	ExitCode int      `json:"exit_code"`
	Stderr   string   `json:"stderr,omitempty"` // captured for humans, never asserted on

	// Populated on content mismatch.
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Diff     string `json:"diff,omitempty"`

	Detail        string        `json:"detail,omitempty"`
	Scratch       string        `json:"scratch,omitempty"`
	TeardownError string        `json:"teardown_error,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Ref returns the "module/name" reference of the case.
func (c CaseResult) Ref() string {
	return c.Module + "/" + c.Name
}

// Passed reports whether the case passed.
func (c CaseResult) Passed() bool {
	return c.Status == Pass
}

// Summary returns a one-line description of a failure, or "ok".
func (c CaseResult) Summary() string {
	switch c.Status {
	case Pass:
		return "ok"
	case ProcessFailure:
		if c.Detail != "" {
			return c.Detail
		}
		return fmt.Sprintf("executable exited with status %d", c.ExitCode)
	case ContentMismatch:
		if c.Detail != "" {
			return c.Detail
		}
		return fmt.Sprintf("output differs from golden file (%d lines expected, %d lines actual)",
			countLines(c.Expected), countLines(c.Actual))
	}
	return c.Detail
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
