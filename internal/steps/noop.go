package steps

import (
	"context"

	"flowline/internal/plan"
	"flowline/internal/step"
)

// noopProcessor succeeds immediately and republishes its params as output.
// Useful for wiring and testing pipeline graphs.
type noopProcessor struct{}

func (noopProcessor) Process(_ context.Context, spec plan.StepSpec, _ *plan.RunContext) step.Result {
	return step.Succeed(spec.Params)
}
