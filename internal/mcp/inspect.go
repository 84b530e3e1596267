package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/itest/internal/golden"
	"github.com/deixis/itest/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID string `json:"run_id,omitempty" jsonschema:"the run ID from an itest_run result; defaults to the most recent run"`
	Case  string `json:"case" jsonschema:"the case to inspect: module/name, or the bare case name when it is unique in the run"`
}

// latestStore is implemented by stores that remember the most recent run.
type latestStore interface {
	Latest() (*report.RunResult, bool)
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if params.Case == "" {
		return errorResult("case is required")
	}

	var result *report.RunResult
	if params.RunID == "" {
		ls, ok := h.store.(latestStore)
		if !ok {
			return errorResult("run_id is required")
		}
		latest, ok := ls.Latest()
		if !ok {
			return errorResult("No runs yet. Call itest_run first.")
		}
		result = latest
	} else {
		var err error
		result, err = h.store.Load(params.RunID)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
		}
	}

	c, err := result.Case(params.Case)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatCase(result.ID, c))
}

// formatCase renders everything recorded about one case as plain text.
func formatCase(runID string, c *report.CaseResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", runID)
	if c.Passed() {
		fmt.Fprintf(&b, "%s: ok\n", c.Ref())
	} else {
		fmt.Fprintf(&b, "%s: FAIL (%s)\n", c.Ref(), c.Status.Label())
	}
	fmt.Fprintln(&b)

	if len(c.Argv) > 0 {
		fmt.Fprintf(&b, "Argv: %s\n", strings.Join(c.Argv, " "))
		fmt.Fprintf(&b, "Exit code: %d\n", c.ExitCode)
	}
	if c.Detail != "" {
		fmt.Fprintf(&b, "Detail: %s\n", c.Detail)
	}
	if c.TeardownError != "" {
		fmt.Fprintf(&b, "Teardown: %s\n", c.TeardownError)
	}
	fmt.Fprintf(&b, "Duration: %s\n", c.Duration)

	block(&b, "Stderr", c.Stderr)
	block(&b, "Diff (-expected +actual)", c.Diff)
	block(&b, "Expected", c.Expected)
	block(&b, "Actual", c.Actual)

	return b.String()
}

func block(b *strings.Builder, title, text string) {
	if text == "" {
		return
	}
	fmt.Fprintln(b)
	fmt.Fprintf(b, "%s:\n", title)
	for _, line := range golden.DisplayLines(text) {
		fmt.Fprintf(b, "    %s\n", line)
	}
}
