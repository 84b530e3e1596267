package scenario

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deixis/itest/internal/config"
	"github.com/deixis/itest/internal/golden"
	"github.com/deixis/itest/internal/report"
	"github.com/deixis/itest/internal/runner"
)

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string) (*runner.Result, error)
}

// Case binds a scenario to its module and the run configuration.
type Case struct {
	Module   string
	Scenario Scenario
	Config   *config.Config
	Log      *log.Logger // teardown warnings; nil uses log.Default()

	removeAll func(string) error // scratch removal; nil uses os.RemoveAll
}

// Ref returns the "module/name" reference of the case.
func (c *Case) Ref() string {
	return c.Module + "/" + c.Scenario.Name
}

// Run drives the case through setup, execute, assert and teardown.
//
// Per-case failures are reported through the returned CaseResult. A
// non-nil error is fatal for the whole run: the executable is unset or
// cannot be run, and nothing was spawned.
func (c *Case) Run(ctx context.Context, r CommandRunner) (res report.CaseResult, err error) {
	res = report.CaseResult{Module: c.Module, Name: c.Scenario.Name}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	if err := config.CheckExecutable(c.Config.Executable); err != nil {
		return res, err
	}

	scratch, err := os.MkdirTemp(c.Config.ScratchRoot(), scratchPattern(c.Module, c.Scenario.Name))
	if err != nil {
		res.Status = report.FilesystemError
		res.Detail = fmt.Sprintf("creating scratch workspace: %v", err)
		return res, nil
	}
	res.Scratch = scratch
	defer func() {
		if rmErr := c.remove(scratch); rmErr != nil {
			res.TeardownError = rmErr.Error()
			c.logger().Printf("warning: %s: removing scratch workspace: %v", c.Ref(), rmErr)
		}
	}()

	data := c.Config.Data()
	out := filepath.Join(scratch, c.Scenario.OutputName())
	argv := append([]string{c.Config.Executable}, c.Scenario.Args(c.Config.ReferencePath(), data, out)...)
	res.Argv = argv

	result, err := r.Run(ctx, argv, scratch)
	if err != nil {
		res.Status = report.ProcessFailure
		res.ExitCode = -1
		res.Detail = err.Error()
		return res, nil
	}
	res.ExitCode = result.ExitCode
	res.Stderr = string(result.Stderr)
	if result.ExitCode != 0 {
		res.Status = report.ProcessFailure
		return res, nil
	}

	c.assert(&res, c.Scenario.GoldenPath(data), out)
	return res, nil
}

func (c *Case) assert(res *report.CaseResult, goldenPath, out string) {
	err := golden.CompareFiles(goldenPath, out)
	var mismatch *golden.MismatchError
	switch {
	case err == nil:
		res.Status = report.Pass
	case errors.As(err, &mismatch):
		res.Status = report.ContentMismatch
		res.Expected = mismatch.Expected
		res.Actual = mismatch.Actual
		res.Diff = mismatch.Diff()
	case errors.Is(err, golden.ErrOutputUnreadable):
		res.Status = report.ContentMismatch
		res.Detail = fmt.Sprintf("executable exited 0 but produced no readable %s: %v", c.Scenario.OutputName(), err)
	default:
		res.Status = report.FilesystemError
		res.Detail = err.Error()
	}
}

func (c *Case) remove(dir string) error {
	if c.removeAll != nil {
		return c.removeAll(dir)
	}
	return os.RemoveAll(dir)
}

func (c *Case) logger() *log.Logger {
	if c.Log != nil {
		return c.Log
	}
	return log.Default()
}

var patternReplacer = strings.NewReplacer("/", "_", `\`, "_", "*", "_")

func scratchPattern(module, name string) string {
	return "itest-" + patternReplacer.Replace(module) + "-" + patternReplacer.Replace(name) + "-*"
}
