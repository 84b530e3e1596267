package scenario

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deixis/itest/internal/config"
	"github.com/deixis/itest/internal/report"
	"github.com/deixis/itest/internal/runner"
	"github.com/deixis/itest/internal/testutil"
	"github.com/google/go-cmp/cmp"
)

const testReference = "/ref/all_sequences.fa"

func newCase(t *testing.T, fx testutil.Fixture, bin string, s Scenario) (*Case, *runner.Runner) {
	t.Helper()
	cfg := &config.Config{
		Executable: fx.Bin(bin),
		DataDir:    fx.Data(),
		Reference:  testReference,
		Scratch:    t.TempDir(),
	}
	r := &runner.Runner{Workspace: cfg.Scratch, MaxOutput: config.DefaultMaxOutput}
	return &Case{Module: "expected", Scenario: s, Config: cfg}, r
}

func assertRemoved(t *testing.T, dir string) {
	t.Helper()
	if dir == "" {
		t.Fatal("no scratch workspace recorded")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("scratch workspace %s still exists (stat err = %v)", dir, err)
	}
}

func TestArgs_ExpectedScenario(t *testing.T) {
	got := Expected()[0].Args("/ref/all.fa", "/data", "/scratch/actual.out")
	want := []string{
		"-f", "/ref/all.fa",
		"-n", "/data/n.bam",
		"-t", "/data/t.bam",
		"-o", "/scratch/actual.out",
		"-x",
		"-q", "1",
		"--normal-purity", "1",
		"--tumor-purity", "0.76",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestArgs_OptionalFlags(t *testing.T) {
	s := Scenario{
		Name:     "plain",
		Normal:   "/abs/n.bam",
		Tumor:    "t.bam",
		Expected: "e.out",
		Params: Params{
			NormalPurity: 0.95,
			TumorPurity:  0.5,
			Extra:        []string{"--somatic-only"},
		},
	}
	got := s.Args("ref.fa", "/data", "out")
	want := []string{
		"-f", "ref.fa",
		"-n", "/abs/n.bam",
		"-t", "/data/t.bam",
		"-o", "out",
		"--normal-purity", "0.95",
		"--tumor-purity", "0.5",
		"--somatic-only",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestOutputName(t *testing.T) {
	if got := (Scenario{}).OutputName(); got != DefaultOutput {
		t.Errorf("OutputName() = %q, want %q", got, DefaultOutput)
	}
	if got := (Scenario{Output: "calls.txt"}).OutputName(); got != "calls.txt" {
		t.Errorf("OutputName() = %q, want calls.txt", got)
	}
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.ScenarioConfig{
		Name: "low", Normal: "n.bam", Tumor: "t.bam", Expected: "low.out",
		Fixed: true, MinMapQual: 20, NormalPurity: 1, TumorPurity: 0.5,
		Args: []string{"--extra"},
	})
	want := Scenario{
		Name: "low", Normal: "n.bam", Tumor: "t.bam", Expected: "low.out",
		Params: Params{Fixed: true, MinMapQual: 20, NormalPurity: 1, TumorPurity: 0.5, Extra: []string{"--extra"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromConfig mismatch (-want +got):\n%s", diff)
	}
}

func TestCaseRun_Pass(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "bassovac", Expected()[0])

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.Pass {
		t.Fatalf("Status = %q, want pass (%s)", res.Status, res.Summary())
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Ref() != "expected/expected1" {
		t.Errorf("Ref() = %q, want expected/expected1", res.Ref())
	}
	assertRemoved(t, res.Scratch)
}

func TestCaseRun_ConcreteArgv(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "bassovac", Expected()[0])

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		fx.Bin("bassovac"),
		"-f", testReference,
		"-n", filepath.Join(fx.Data(), "n.bam"),
		"-t", filepath.Join(fx.Data(), "t.bam"),
		"-o", filepath.Join(res.Scratch, "actual.out"),
		"-x", "-q", "1",
		"--normal-purity", "1",
		"--tumor-purity", "0.76",
	}
	if diff := cmp.Diff(want, res.Argv); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}
}

func TestCaseRun_ArgumentsArriveDiscrete(t *testing.T) {
	fx := testutil.NewFixture(t)
	want := strings.Join([]string{
		"-f", testReference,
		"-n", filepath.Join(fx.Data(), "n.bam"),
		"-t", filepath.Join(fx.Data(), "t.bam"),
		"-o", "OUT",
		"-x",
		"-q", "1",
		"--normal-purity", "1",
		"--tumor-purity", "0.76",
	}, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(fx.Data(), "argv.out"), []byte(want), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Expected()[0]
	s.Expected = "argv.out"
	c, r := newCase(t, fx, "argv", s)

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.Pass {
		t.Fatalf("Status = %q, want pass\n%s", res.Status, res.Diff)
	}
}

func TestCaseRun_ProcessFailureSkipsComparison(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "crash", Expected()[0])

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.ProcessFailure {
		t.Fatalf("Status = %q, want process_failure", res.Status)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if res.Expected != "" || res.Actual != "" || res.Diff != "" {
		t.Error("comparison ran after a non-zero exit")
	}
	if !strings.Contains(res.Stderr, "Failed to open output file") {
		t.Errorf("Stderr = %q, want the child's diagnostic", res.Stderr)
	}
	assertRemoved(t, res.Scratch)
}

func TestCaseRun_StartFailure(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "notaprogram", Expected()[0])

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.ProcessFailure {
		t.Fatalf("Status = %q, want process_failure", res.Status)
	}
	if res.Detail == "" {
		t.Error("Detail is empty for a start failure")
	}
	assertRemoved(t, res.Scratch)
}

func TestCaseRun_ContentMismatch(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "garble", Expected()[0])

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.ContentMismatch {
		t.Fatalf("Status = %q, want content_mismatch", res.Status)
	}
	if res.Expected != fx.Golden(t) {
		t.Errorf("Expected = %q, want full golden text", res.Expected)
	}
	if want := "chr1 10468 T C 0.998\r\nchr1 10470 A G 0.5\r\n"; res.Actual != want {
		t.Errorf("Actual = %q, want %q", res.Actual, want)
	}
	if res.Diff == "" {
		t.Error("Diff is empty")
	}
	assertRemoved(t, res.Scratch)
}

func TestCaseRun_TeardownFailureKeepsStatus(t *testing.T) {
	tests := []struct {
		bin  string
		want report.Status
	}{
		{"bassovac", report.Pass},
		{"garble", report.ContentMismatch},
		{"crash", report.ProcessFailure},
	}
	for _, tt := range tests {
		t.Run(tt.bin, func(t *testing.T) {
			fx := testutil.NewFixture(t)
			c, r := newCase(t, fx, tt.bin, Expected()[0])
			var logs bytes.Buffer
			c.Log = log.New(&logs, "", 0)
			c.removeAll = func(dir string) error {
				os.RemoveAll(dir)
				return errors.New("device or resource busy")
			}

			res, err := c.Run(context.Background(), r)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Status != tt.want {
				t.Errorf("Status = %q, want %q", res.Status, tt.want)
			}
			if !strings.Contains(res.TeardownError, "device or resource busy") {
				t.Errorf("TeardownError = %q, want removal error", res.TeardownError)
			}
			if !strings.Contains(logs.String(), "warning: expected/expected1: removing scratch workspace") {
				t.Errorf("log = %q, want teardown warning", logs.String())
			}
		})
	}
}

func TestCaseRun_MissingOutput(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "silent", Expected()[0])

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.ContentMismatch {
		t.Fatalf("Status = %q, want content_mismatch", res.Status)
	}
	if !strings.Contains(res.Detail, "actual.out") {
		t.Errorf("Detail = %q, want it to name the output file", res.Detail)
	}
}

func TestCaseRun_MissingGolden(t *testing.T) {
	fx := testutil.NewFixture(t)
	s := Expected()[0]
	s.Expected = "missing.out"
	c, r := newCase(t, fx, "bassovac", s)

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.FilesystemError {
		t.Fatalf("Status = %q, want filesystem_error", res.Status)
	}
	assertRemoved(t, res.Scratch)
}

func TestCaseRun_ScratchCreationFails(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "bassovac", Expected()[0])
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	c.Config.Scratch = blocker

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != report.FilesystemError {
		t.Fatalf("Status = %q, want filesystem_error", res.Status)
	}
	if res.Argv != nil {
		t.Error("executable ran without a scratch workspace")
	}
}

type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) Run(_ context.Context, argv []string, _ string) (*runner.Result, error) {
	r.calls = append(r.calls, argv)
	return &runner.Result{}, nil
}

func TestCaseRun_NotExecutableIsFatal(t *testing.T) {
	fx := testutil.NewFixture(t)
	if err := os.Chmod(fx.Bin("bassovac"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		exe  string
		want error
	}{
		{"unset", "", config.ErrExecutableUnset},
		{"missing", filepath.Join(fx.Root, "bin", "nope"), config.ErrNotExecutable},
		{"no exec bit", fx.Bin("bassovac"), config.ErrNotExecutable},
		{"directory", fx.Data(), config.ErrNotExecutable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCase(t, fx, "bassovac", Expected()[0])
			c.Config.Executable = tt.exe
			rec := &recordingRunner{}

			_, err := c.Run(context.Background(), rec)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Run error = %v, want %v", err, tt.want)
			}
			if len(rec.calls) != 0 {
				t.Errorf("runner called %d times, want 0", len(rec.calls))
			}
			entries, _ := os.ReadDir(c.Config.Scratch)
			if len(entries) != 0 {
				t.Errorf("scratch root has %d entries, want 0", len(entries))
			}
		})
	}
}

func TestCaseRun_Isolation(t *testing.T) {
	fx := testutil.NewFixture(t)
	a, r := newCase(t, fx, "bassovac", Expected()[0])
	b := &Case{Module: "expected", Scenario: Expected()[0], Config: a.Config}

	resA, err := a.Run(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	resB, err := b.Run(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if resA.Scratch == resB.Scratch {
		t.Fatalf("both cases used scratch workspace %s", resA.Scratch)
	}
	assertRemoved(t, resA.Scratch)
	assertRemoved(t, resB.Scratch)

	for _, name := range []string{"n.bam", "t.bam", "expected.out"} {
		if _, err := os.Stat(filepath.Join(fx.Data(), name)); err != nil {
			t.Errorf("fixture %s: %v", name, err)
		}
	}
	entries, err := os.ReadDir(a.Config.Scratch)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch root has %d leftover entries", len(entries))
	}
}

func TestCaseRun_Idempotent(t *testing.T) {
	fx := testutil.NewFixture(t)
	for _, bin := range []string{"bassovac", "garble", "crash"} {
		c, r := newCase(t, fx, bin, Expected()[0])
		first, err := c.Run(context.Background(), r)
		if err != nil {
			t.Fatal(err)
		}
		second, err := c.Run(context.Background(), r)
		if err != nil {
			t.Fatal(err)
		}
		if first.Status != second.Status {
			t.Errorf("%s: status changed from %q to %q", bin, first.Status, second.Status)
		}
	}
}

func TestCaseRun_IndependentOfWorkingDirectory(t *testing.T) {
	fx := testutil.NewFixture(t)
	c, r := newCase(t, fx, "bassovac", Expected()[0])
	t.Chdir(t.TempDir())

	res, err := c.Run(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != report.Pass {
		t.Errorf("Status = %q, want pass (%s)", res.Status, res.Summary())
	}
}

func TestScratchPattern(t *testing.T) {
	if got, want := scratchPattern("a/b", "c*d"), "itest-a_b-c_d-*"; got != want {
		t.Errorf("scratchPattern = %q, want %q", got, want)
	}
}
