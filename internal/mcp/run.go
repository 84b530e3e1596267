package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/itest/internal/report"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runParams struct {
	Modules []string `json:"modules" jsonschema:"names of the test modules to run, in order (see itest_modules)"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if len(params.Modules) == 0 {
		return errorResult("modules is required: name at least one test module (see itest_modules)")
	}

	h.mu.Lock()
	result, err := h.engine.Run(ctx, params.Modules)
	h.mu.Unlock()
	if err != nil {
		return errorResult(fmt.Sprintf("run aborted: %v", err))
	}

	// Save results for itest_inspect.
	_ = h.store.Save(result)

	return textResult(formatRun(result))
}

func formatRun(rr *report.RunResult) string {
	var b strings.Builder

	if rr.Passed() {
		fmt.Fprintln(&b, "Status: PASS")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rr.ID)
	fmt.Fprintf(&b, "Executable: %s\n", rr.Executable)
	fmt.Fprintln(&b)

	if len(rr.Cases) == 0 {
		fmt.Fprintln(&b, "No cases in the selected modules.")
		return b.String()
	}

	fmt.Fprintln(&b, "Cases:")
	for _, c := range rr.Cases {
		if c.Passed() {
			fmt.Fprintf(&b, "  %s: ok\n", c.Ref())
		} else {
			fmt.Fprintf(&b, "  %s: %s (%s)\n", c.Ref(), c.Status.Label(), c.Summary())
		}
	}
	fmt.Fprintln(&b)

	failures := rr.Failures()
	if len(failures) == 0 {
		fmt.Fprintf(&b, "All %d cases passed.\n", len(rr.Cases))
		return b.String()
	}
	fmt.Fprintf(&b, "%d of %d cases failed.\n", len(failures), len(rr.Cases))
	fmt.Fprintf(&b, "Inspect with itest_inspect(run_id=%q, case=%q).\n", rr.ID, failures[0].Ref())
	return b.String()
}
