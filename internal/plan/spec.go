package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"flowline/internal/faults"
)

// StepSpec declares one step of a pipeline.
type StepSpec struct {
	Name           string         `yaml:"name"`
	Kind           string         `yaml:"kind"`
	DependsOn      []string       `yaml:"depends_on"`
	Params         map[string]any `yaml:"params"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	Retries        int            `yaml:"retries"`
}

// PipelineSpec is one pipeline definition loaded from YAML.
type PipelineSpec struct {
	Name   string     `yaml:"name"`
	Tenant string     `yaml:"tenant"`
	Owners []string   `yaml:"owners"`
	Steps  []StepSpec `yaml:"steps"`
}

// LoadFile parses and validates a single pipeline definition. Unknown YAML
// keys are rejected so typos surface at load rather than as silently ignored
// configuration.
func LoadFile(path string) (*PipelineSpec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pipeline spec: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	var spec PipelineSpec
	if err := decoder.Decode(&spec); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "plan", "load", filepath.Base(path), err)
	}
	if err := spec.Validate(); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "plan", "load", filepath.Base(path), err)
	}
	return &spec, nil
}

// LoadDir loads every *.yaml / *.yml pipeline in a directory, keyed by
// pipeline name. Any invalid file fails the whole load.
func LoadDir(dir string) (map[string]*PipelineSpec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*PipelineSpec{}, nil
		}
		return nil, fmt.Errorf("read pipeline dir: %w", err)
	}

	specs := make(map[string]*PipelineSpec)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		spec, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, exists := specs[spec.Name]; exists {
			return nil, faults.Wrap(faults.ErrValidation, "plan", "load",
				fmt.Sprintf("duplicate pipeline name %q", spec.Name), nil)
		}
		specs[spec.Name] = spec
	}
	return specs, nil
}

// Validate checks the structural rules every pipeline must satisfy: a name,
// at least one step, unique step names, dependencies that exist, and an
// acyclic dependency graph.
func (p *PipelineSpec) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("pipeline %q has no steps", p.Name)
	}

	seen := make(map[string]struct{}, len(p.Steps))
	for _, s := range p.Steps {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("pipeline %q has a step without a name", p.Name)
		}
		if strings.TrimSpace(s.Kind) == "" {
			return fmt.Errorf("step %q has no kind", s.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate step name %q", name)
		}
		seen[name] = struct{}{}
		if s.TimeoutSeconds < 0 {
			return fmt.Errorf("step %q has a negative timeout", s.Name)
		}
		if s.Retries < 0 {
			return fmt.Errorf("step %q has a negative retry count", s.Name)
		}
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := seen[dep]; !ok {
				return fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
			if dep == s.Name {
				return fmt.Errorf("step %q depends on itself", s.Name)
			}
		}
	}
	if _, err := levelSteps(p.Steps); err != nil {
		return err
	}
	return nil
}

// StepNames returns the declared step names in definition order.
func (p *PipelineSpec) StepNames() []string {
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	return names
}

// Names returns the sorted pipeline names of a loaded spec set.
func Names(specs map[string]*PipelineSpec) []string {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
