package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/deixis/itest/internal/workflow"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type modulesParams struct{}

func (h *handler) modulesHandler(ctx context.Context, req *mcp.CallToolRequest, _ modulesParams) (*mcp.CallToolResult, any, error) {
	h.mu.Lock()
	modules := h.engine.Modules()
	exe := h.engine.Config.Executable
	data := h.engine.Config.Data()
	h.mu.Unlock()

	return textResult(formatModules(modules, exe, data))
}

func formatModules(modules []workflow.ModuleInfo, exe, data string) string {
	var b strings.Builder

	if exe == "" {
		exe = "(not set)"
	}
	fmt.Fprintf(&b, "Executable: %s\n", exe)
	fmt.Fprintf(&b, "Data: %s\n", data)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Modules:")
	for _, m := range modules {
		noun := "cases"
		if len(m.Cases) == 1 {
			noun = "case"
		}
		fmt.Fprintf(&b, "  %s (%d %s)", m.Name, len(m.Cases), noun)
		if m.Description != "" {
			fmt.Fprintf(&b, ": %s", m.Description)
		}
		fmt.Fprintln(&b)
		for _, c := range m.Cases {
			fmt.Fprintf(&b, "    %s\n", c)
		}
	}
	return b.String()
}
