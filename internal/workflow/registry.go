package workflow

import (
	"fmt"
	"sort"

	"github.com/deixis/itest/internal/config"
	"github.com/deixis/itest/internal/scenario"
)

// Module is a named, independently authored group of scenarios.
type Module struct {
	Name        string
	Description string
	// Cases builds the module's scenarios. Any count is valid, including zero.
	Cases func(cfg *config.Config) []scenario.Scenario
}

// Registry maps module names to modules. Names keep registration order.
type Registry struct {
	modules map[string]Module
	order   []string
}

// NewRegistry returns a registry holding the built-in modules followed by
// the modules declared in cfg, in sorted name order.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{modules: make(map[string]Module)}
	for _, m := range Builtins() {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	if cfg == nil {
		return r, nil
	}

	names := make([]string, 0, len(cfg.Modules))
	for name := range cfg.Modules {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		declared := cfg.Modules[name]
		m := Module{
			Name:        name,
			Description: fmt.Sprintf("declared in %s", config.FileName),
			Cases: func(*config.Config) []scenario.Scenario {
				out := make([]scenario.Scenario, len(declared))
				for i, sc := range declared {
					out[i] = scenario.FromConfig(sc)
				}
				return out
			},
		}
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtins returns the modules compiled into the harness.
func Builtins() []Module {
	return []Module{{
		Name:        "expected",
		Description: "reference normal/tumor pair against expected.out",
		Cases:       func(*config.Config) []scenario.Scenario { return scenario.Expected() },
	}}
}

// Register adds m. Registering a name twice is an error.
func (r *Registry) Register(m Module) error {
	if m.Name == "" {
		return fmt.Errorf("module with empty name")
	}
	if m.Cases == nil {
		return fmt.Errorf("module %s: no case factory", m.Name)
	}
	if _, ok := r.modules[m.Name]; ok {
		return fmt.Errorf("module %s registered twice", m.Name)
	}
	r.modules[m.Name] = m
	r.order = append(r.order, m.Name)
	return nil
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns all module names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
