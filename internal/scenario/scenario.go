// Package scenario implements the golden-comparison test case: one pinned
// invocation of the executable under test, checked byte for byte against
// a golden file inside its own scratch workspace.
package scenario

import (
	"path/filepath"
	"strconv"

	"github.com/deixis/itest/internal/config"
)

// DefaultOutput is the output file name used when a scenario names none.
const DefaultOutput = "actual.out"

// Params are the scenario-specific flags passed to the executable.
type Params struct {
	Fixed        bool // -x
	MinMapQual   uint // -q, omitted when zero
	NormalPurity float64
	TumorPurity  float64
	Extra        []string // appended verbatim
}

// Scenario describes one invocation of the executable and its expected
// result. Fixture names are relative to the data directory unless absolute.
type Scenario struct {
	Name     string
	Normal   string
	Tumor    string
	Expected string
	Output   string // file name inside the scratch workspace
	Params   Params
}

// OutputName returns the name of the file the executable writes.
func (s Scenario) OutputName() string {
	if s.Output != "" {
		return s.Output
	}
	return DefaultOutput
}

// Args returns the argument tokens for the executable, without argv[0]:
//
//	-f REF -n NORMAL -t TUMOR -o OUT [-x] [-q N] --normal-purity P --tumor-purity P [EXTRA...]
func (s Scenario) Args(reference, dataDir, outPath string) []string {
	args := []string{
		"-f", reference,
		"-n", fixture(dataDir, s.Normal),
		"-t", fixture(dataDir, s.Tumor),
		"-o", outPath,
	}
	if s.Params.Fixed {
		args = append(args, "-x")
	}
	if s.Params.MinMapQual > 0 {
		args = append(args, "-q", strconv.FormatUint(uint64(s.Params.MinMapQual), 10))
	}
	args = append(args,
		"--normal-purity", formatFloat(s.Params.NormalPurity),
		"--tumor-purity", formatFloat(s.Params.TumorPurity),
	)
	return append(args, s.Params.Extra...)
}

// GoldenPath returns the location of the expected output.
func (s Scenario) GoldenPath(dataDir string) string {
	return fixture(dataDir, s.Expected)
}

// FromConfig converts a scenario declared in the configuration file.
func FromConfig(sc config.ScenarioConfig) Scenario {
	return Scenario{
		Name:     sc.Name,
		Normal:   sc.Normal,
		Tumor:    sc.Tumor,
		Expected: sc.Expected,
		Output:   sc.Output,
		Params: Params{
			Fixed:        sc.Fixed,
			MinMapQual:   sc.MinMapQual,
			NormalPurity: sc.NormalPurity,
			TumorPurity:  sc.TumorPurity,
			Extra:        sc.Args,
		},
	}
}

func fixture(dataDir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dataDir, name)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
