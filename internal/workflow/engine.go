// Package workflow aggregates named test modules into one sequential run.
// It is consumed by both the MCP server and the CLI commands.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/deixis/itest/internal/config"
	"github.com/deixis/itest/internal/report"
	"github.com/deixis/itest/internal/scenario"
	"github.com/google/uuid"
)

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner = scenario.CommandRunner

// ErrNoModules is returned when a run names no modules. It is a usage error.
var ErrNoModules = errors.New("no test module specified")

// UnknownModuleError is returned when a requested module is not registered.
type UnknownModuleError struct {
	Name  string
	Known []string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown test module %q (known: %v)", e.Name, e.Known)
}

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config   *config.Config
	Registry *Registry
	Runner   CommandRunner
	Log      *log.Logger // teardown warnings; nil uses log.Default()

	// OnCase, when set, is called after each case completes.
	OnCase func(report.CaseResult)
}

// Resolve expands module names into cases, in module order and then in
// each module's discovery order. Nothing runs.
func (e *Engine) Resolve(names []string) ([]*scenario.Case, error) {
	if len(names) == 0 {
		return nil, ErrNoModules
	}
	var cases []*scenario.Case
	for _, name := range names {
		m, ok := e.Registry.Lookup(name)
		if !ok {
			return nil, &UnknownModuleError{Name: name, Known: e.Registry.Names()}
		}
		for _, s := range m.Cases(e.Config) {
			cases = append(cases, &scenario.Case{
				Module:   m.Name,
				Scenario: s,
				Config:   e.Config,
				Log:      e.Log,
			})
		}
	}
	return cases, nil
}

// Run resolves names and runs every case sequentially. The configuration
// and module names are checked before any case starts. Per-case failures
// are recorded in the result; a returned error means the run was aborted.
func (e *Engine) Run(ctx context.Context, names []string) (*report.RunResult, error) {
	if len(names) == 0 {
		return nil, ErrNoModules
	}
	if err := e.Config.Validate(); err != nil {
		return nil, err
	}
	cases, err := e.Resolve(names)
	if err != nil {
		return nil, err
	}

	rr := &report.RunResult{
		ID:         uuid.New().String(),
		Modules:    append([]string(nil), names...),
		Executable: e.Config.Executable,
		Started:    time.Now(),
	}
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return rr, fmt.Errorf("run %s interrupted before %s: %w", rr.ID, c.Ref(), err)
		}
		res, err := c.Run(ctx, e.Runner)
		if err != nil {
			return rr, fmt.Errorf("%s: %w", c.Ref(), err)
		}
		rr.Cases = append(rr.Cases, res)
		if e.OnCase != nil {
			e.OnCase(res)
		}
	}
	rr.Duration = time.Since(rr.Started)
	return rr, nil
}

// Modules describes every registered module and how many cases it has
// under the current configuration.
func (e *Engine) Modules() []ModuleInfo {
	names := e.Registry.Names()
	out := make([]ModuleInfo, 0, len(names))
	for _, name := range names {
		m, _ := e.Registry.Lookup(name)
		info := ModuleInfo{Name: name, Description: m.Description}
		for _, s := range m.Cases(e.Config) {
			info.Cases = append(info.Cases, s.Name)
		}
		out = append(out, info)
	}
	return out
}

// ModuleInfo summarises one registered module.
type ModuleInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Cases       []string `json:"cases"`
}
