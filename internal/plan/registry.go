package plan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"flowline/internal/step"
)

// Processor executes one kind of step. Implementations must honor ctx
// cancellation and report every failure through the returned Result; the
// executor treats a returned failure and a returned error path identically.
type Processor interface {
	Process(ctx context.Context, spec StepSpec, rc *RunContext) step.Result
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, spec StepSpec, rc *RunContext) step.Result

func (f ProcessorFunc) Process(ctx context.Context, spec StepSpec, rc *RunContext) step.Result {
	return f(ctx, spec, rc)
}

// Registry maps step kinds to processors. It is populated once at startup
// from an explicit registration table; Resolve fails fast for kinds nobody
// registered so misconfigured pipelines are rejected at plan build.
type Registry struct {
	processors map[string]Processor
}

func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register binds a kind to its processor. Registering the same kind twice is
// a programming error and is rejected.
func (r *Registry) Register(kind string, p Processor) error {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return fmt.Errorf("processor kind is required")
	}
	if p == nil {
		return fmt.Errorf("processor for kind %q is nil", kind)
	}
	if _, exists := r.processors[kind]; exists {
		return fmt.Errorf("processor kind %q already registered", kind)
	}
	r.processors[kind] = p
	return nil
}

// Resolve returns the processor for a kind or an error naming the unknown
// kind and the kinds that are available.
func (r *Registry) Resolve(kind string) (Processor, error) {
	p, ok := r.processors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown step kind %q (registered: %s)", kind, strings.Join(r.Kinds(), ", "))
	}
	return p, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.processors))
	for kind := range r.processors {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// RunContext carries the shared outputs of a run between steps. Each step
// publishes into its own namespace exactly once; readers get copies, so a
// consumer can never mutate a producer's output.
type RunContext struct {
	RunID    string
	Pipeline string
	Tenant   string

	mu      sync.RWMutex
	outputs map[string]map[string]any
}

func NewRunContext(runID, pipeline, tenant string) *RunContext {
	return &RunContext{
		RunID:    runID,
		Pipeline: pipeline,
		Tenant:   tenant,
		outputs:  make(map[string]map[string]any),
	}
}

// Publish stores a step's output under its own namespace. Only the executor
// calls this, with the name of the step that just completed.
func (rc *RunContext) Publish(stepName string, output map[string]any) {
	if len(output) == 0 {
		return
	}
	copied := make(map[string]any, len(output))
	for k, v := range output {
		copied[k] = v
	}
	rc.mu.Lock()
	rc.outputs[stepName] = copied
	rc.mu.Unlock()
}

// Output returns a copy of another step's published output.
func (rc *RunContext) Output(stepName string) (map[string]any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	original, ok := rc.outputs[stepName]
	if !ok {
		return nil, false
	}
	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}
	return copied, true
}

// Value reads a single key from another step's published output.
func (rc *RunContext) Value(stepName, key string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	output, ok := rc.outputs[stepName]
	if !ok {
		return nil, false
	}
	value, ok := output[key]
	return value, ok
}
