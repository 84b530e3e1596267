// Package config loads and validates the harness configuration: the
// optional .itest YAML file, environment and command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the optional configuration file.
const FileName = ".itest"

// EnvExecutable names the environment variable holding the executable under test.
const EnvExecutable = "ITEST_EXECUTABLE"

// Default values.
const (
	DefaultMaxOutput = 1 << 20 // 1 MB
	DefaultDataDir   = "data"
	DefaultReference = "/gscmnt/839/info/medseq/reference_sequences/NCBI-human-build36/all_sequences.fa"
)

var (
	// ErrExecutableUnset is returned when no executable under test was configured.
	ErrExecutableUnset = errors.New("executable under test is not set (use -exe or " + EnvExecutable + ")")
	// ErrNotExecutable is returned when the configured executable cannot be run.
	ErrNotExecutable = errors.New("not executable")
)

// Config holds the Test Configuration. It is built once at startup and
// treated as read-only afterwards.
type Config struct {
	Version      int    `yaml:"version"`
	Executable   string `yaml:"executable"` // absolute after Load/Apply
	Reference    string `yaml:"reference"`  // reference FASTA passed with -f
	DataDir      string `yaml:"data"`       // fixture directory
	RawTimeout   string `yaml:"timeout"`    // e.g. "10m"; empty means no timeout
	RawMaxOutput int    `yaml:"max_output"` // bytes of stdout/stderr kept per run
	Scratch      string `yaml:"scratch"`    // parent of scratch workspaces

	// Modules declares additional scenario modules, keyed by module name.
	Modules map[string][]ScenarioConfig `yaml:"modules"`

	// HarnessDir is the directory of the harness binary. Fixture data
	// defaults to a "data" directory next to it.
	HarnessDir string `yaml:"-"`
}

// ScenarioConfig declares one scenario in the configuration file.
// Fixture names are relative to the data directory.
type ScenarioConfig struct {
	Name         string   `yaml:"name"`
	Normal       string   `yaml:"normal"`
	Tumor        string   `yaml:"tumor"`
	Expected     string   `yaml:"expected"`
	Output       string   `yaml:"output"`
	Fixed        bool     `yaml:"fixed"`
	MinMapQual   uint     `yaml:"min_mapqual"`
	NormalPurity float64  `yaml:"normal_purity"`
	TumorPurity  float64  `yaml:"tumor_purity"`
	Args         []string `yaml:"args"` // appended verbatim after the typed flags
}

// Timeout returns the configured child process timeout. Zero means the
// harness waits for the executable indefinitely.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// MaxOutputBytes returns the configured output capture cap or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// ReferencePath returns the reference dataset path passed to the executable.
func (c *Config) ReferencePath() string {
	if c.Reference != "" {
		return c.Reference
	}
	return DefaultReference
}

// Data returns the fixture data directory.
func (c *Config) Data() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(c.HarnessDir, DefaultDataDir)
}

// ScratchRoot returns the directory scratch workspaces are created in.
func (c *Config) ScratchRoot() string {
	if c.Scratch != "" {
		return c.Scratch
	}
	return os.TempDir()
}

// Validate checks the settings that must hold before any test runs.
func (c *Config) Validate() error {
	return CheckExecutable(c.Executable)
}

// CheckExecutable reports whether path names a regular file the current
// user may execute.
func CheckExecutable(path string) error {
	if path == "" {
		return ErrExecutableUnset
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("executable %s: %w: %w", path, ErrNotExecutable, err)
	}
	if !info.Mode().IsRegular() || !executableByCaller(path, info.Mode()) {
		return fmt.Errorf("executable %s: %w", path, ErrNotExecutable)
	}
	return nil
}

// Overrides holds values taken from the environment and the command line.
// Empty fields leave the loaded configuration untouched.
type Overrides struct {
	Getenv     func(string) string // environment lookup; nil skips the environment
	WorkDir    string              // relative flag paths resolve against this
	Executable string
	DataDir    string
	Reference  string
	Timeout    time.Duration
}

// Apply layers o on top of c. The environment wins over the file and the
// command line wins over both.
func (c *Config) Apply(o Overrides) {
	if o.Getenv != nil {
		if exe := o.Getenv(EnvExecutable); exe != "" {
			c.Executable = absPath(o.WorkDir, exe)
		}
	}
	if o.Executable != "" {
		c.Executable = absPath(o.WorkDir, o.Executable)
	}
	if o.DataDir != "" {
		c.DataDir = absPath(o.WorkDir, o.DataDir)
	}
	if o.Reference != "" {
		c.Reference = absPath(o.WorkDir, o.Reference)
	}
	if o.Timeout > 0 {
		c.RawTimeout = o.Timeout.String()
	}
}

// LoadResult holds the parsed config and the directory it was found in.
type LoadResult struct {
	Config *Config
	Root   string // directory containing .itest; falls back to workspace
	Path   string // path of the file that was read, empty if none
}

// Load reads the .itest file found by walking upward from workspace.
// If no file exists, a default Config is returned. Relative paths in the
// file are resolved against the directory containing it.
func Load(workspace string) (*LoadResult, error) {
	workspace, err := filepath.Abs(workspace)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	root, err := findRoot(workspace)
	if err != nil {
		return &LoadResult{Config: &Config{}, Root: workspace}, nil
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Executable != "" {
		cfg.Executable = absPath(root, cfg.Executable)
	}
	if cfg.DataDir != "" {
		cfg.DataDir = absPath(root, cfg.DataDir)
	}
	if cfg.Reference != "" {
		cfg.Reference = absPath(root, cfg.Reference)
	}
	if cfg.Scratch != "" {
		cfg.Scratch = absPath(root, cfg.Scratch)
	}
	return &LoadResult{Config: cfg, Root: root, Path: path}, nil
}

// check rejects an unusable timeout and declared scenarios that cannot
// form a command line.
func (c *Config) check() error {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err != nil {
			return fmt.Errorf("timeout %q: %w", c.RawTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout %q must be positive", c.RawTimeout)
		}
	}
	for module, scenarios := range c.Modules {
		if module == "" {
			return errors.New("module with empty name")
		}
		seen := make(map[string]bool, len(scenarios))
		for i, s := range scenarios {
			if s.Name == "" {
				return fmt.Errorf("module %s: scenario %d has no name", module, i)
			}
			if seen[s.Name] {
				return fmt.Errorf("module %s: duplicate scenario %q", module, s.Name)
			}
			seen[s.Name] = true
			if s.Normal == "" || s.Tumor == "" || s.Expected == "" {
				return fmt.Errorf("module %s: scenario %s needs normal, tumor and expected fixtures", module, s.Name)
			}
		}
	}
	return nil
}

// HarnessDir returns the directory containing the running harness binary,
// with symlinks resolved.
func HarnessDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating harness binary: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// findRoot walks upward from dir looking for a directory containing .itest.
func findRoot(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}

func absPath(base, p string) string {
	if filepath.IsAbs(p) || base == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
