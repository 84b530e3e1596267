// Package golden compares produced output against checked-in golden files.
//
// Comparison is byte-exact: no whitespace normalisation, no line-ending
// translation. The golden file is the single source of truth.
package golden

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/go-cmp/cmp"
)

var (
	// ErrGoldenUnreadable is returned when the golden file cannot be read.
	ErrGoldenUnreadable = errors.New("golden file unreadable")
	// ErrOutputUnreadable is returned when the produced output cannot be read,
	// typically because the executable never wrote it.
	ErrOutputUnreadable = errors.New("output file unreadable")
)

// MismatchError reports a golden/actual difference. It carries both full
// texts so a human can diff them.
type MismatchError struct {
	GoldenPath string
	ActualPath string
	Expected   string
	Actual     string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s differs from golden file %s (%d bytes expected, %d bytes actual)",
		e.ActualPath, e.GoldenPath, len(e.Expected), len(e.Actual))
}

// Diff returns a line-oriented diff of expected (-) against actual (+).
// Line endings are kept so that CR/LF differences stay visible.
func (e *MismatchError) Diff() string {
	return Diff(e.Expected, e.Actual)
}

// Diff returns a line-oriented diff of want (-) against got (+), or ""
// when they are equal.
func Diff(want, got string) string {
	return cmp.Diff(splitLines(want), splitLines(got))
}

// CompareFiles reads the golden file and the produced output as raw bytes
// and returns nil only if they are identical. A difference yields a
// *MismatchError.
func CompareFiles(goldenPath, actualPath string) error {
	want, err := os.ReadFile(goldenPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGoldenUnreadable, err)
	}
	got, err := os.ReadFile(actualPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputUnreadable, err)
	}
	if bytes.Equal(want, got) {
		return nil
	}
	return &MismatchError{
		GoldenPath: goldenPath,
		ActualPath: actualPath,
		Expected:   string(want),
		Actual:     string(got),
	}
}

// NoNewline marks a text whose final line has no line ending.
const NoNewline = `\ No newline at end of file`

// DisplayLines splits s for display, one entry per line without its
// "\n". Trailing blank lines are kept, and a missing final line ending
// is shown as a NoNewline entry, so texts that differ only at the end
// never print identically.
func DisplayLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	if !strings.HasSuffix(s, "\n") {
		lines = append(lines, NoNewline)
	}
	return lines
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.SplitAfter(s, "\n")
}
