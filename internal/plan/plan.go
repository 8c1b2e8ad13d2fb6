package plan

import (
	"fmt"

	"flowline/internal/faults"
)

// Plan is an executable leveling of a pipeline. Steps within a level have all
// of their dependencies satisfied by earlier levels and may run concurrently.
type Plan struct {
	Pipeline *PipelineSpec
	Levels   [][]StepSpec
}

// Build validates the spec against the processor registry and levels its
// steps. An unknown step kind fails here, before any run is created.
func Build(spec *PipelineSpec, registry *Registry) (*Plan, error) {
	if err := spec.Validate(); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "plan", "build", spec.Name, err)
	}
	for _, s := range spec.Steps {
		if _, err := registry.Resolve(s.Kind); err != nil {
			return nil, faults.Wrap(faults.ErrValidation, "plan", "build", spec.Name, err)
		}
	}
	levels, err := levelSteps(spec.Steps)
	if err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "plan", "build", spec.Name, err)
	}
	return &Plan{Pipeline: spec, Levels: levels}, nil
}

// StepCount returns the total number of steps across all levels.
func (p *Plan) StepCount() int {
	total := 0
	for _, level := range p.Levels {
		total += len(level)
	}
	return total
}

// LevelOf returns the level index a step runs at, or -1 when unknown.
func (p *Plan) LevelOf(name string) int {
	for i, level := range p.Levels {
		for _, s := range level {
			if s.Name == name {
				return i
			}
		}
	}
	return -1
}

// levelSteps performs Kahn's algorithm, grouping steps into dependency
// levels. Definition order is preserved within a level so leveling is
// deterministic.
func levelSteps(steps []StepSpec) ([][]StepSpec, error) {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	byName := make(map[string]StepSpec, len(steps))

	for _, s := range steps {
		byName[s.Name] = s
		if _, ok := indegree[s.Name]; !ok {
			indegree[s.Name] = 0
		}
		for _, dep := range s.DependsOn {
			indegree[s.Name]++
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	frontier := make([]string, 0, len(steps))
	for _, s := range steps {
		if indegree[s.Name] == 0 {
			frontier = append(frontier, s.Name)
		}
	}

	var levels [][]StepSpec
	placed := 0
	for len(frontier) > 0 {
		level := make([]StepSpec, 0, len(frontier))
		var next []string
		for _, name := range frontier {
			level = append(level, byName[name])
			placed++
			for _, dependent := range dependents[name] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		levels = append(levels, level)
		frontier = next
	}

	if placed != len(steps) {
		return nil, fmt.Errorf("dependency cycle among %d steps", len(steps)-placed)
	}
	return levels, nil
}
