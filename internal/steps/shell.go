package steps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"flowline/internal/faults"
	"flowline/internal/logging"
	"flowline/internal/plan"
	"flowline/internal/step"
)

const maxCapturedOutput = 8 * 1024

// shellProcessor runs a command through the shell. A non-zero exit is a
// permanent failure carrying the tail of the combined output; the step's
// context deadline kills the process.
type shellProcessor struct {
	logger *slog.Logger
}

func (p *shellProcessor) Process(ctx context.Context, spec plan.StepSpec, _ *plan.RunContext) step.Result {
	command, ok := paramString(spec.Params, "command")
	if !ok {
		return step.FailTyped("shell step requires a command param", faults.Validation)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if dir, ok := paramString(spec.Params, "workdir"); ok {
		cmd.Dir = dir
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	captured := tailOf(output.String())
	if err != nil {
		if ctx.Err() != nil {
			return step.FailTyped(
				fmt.Sprintf("command killed by deadline: %s", captured), faults.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Warn("shell step failed",
				logging.String(logging.FieldStep, spec.Name),
				logging.Int("exit_code", exitErr.ExitCode()),
			)
			return step.FailTyped(
				fmt.Sprintf("command exited %d: %s", exitErr.ExitCode(), captured),
				faults.Permanent)
		}
		return step.FromError(err)
	}

	return step.Succeed(map[string]any{
		"stdout":    captured,
		"exit_code": 0,
	})
}

func tailOf(output string) string {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) > maxCapturedOutput {
		return trimmed[len(trimmed)-maxCapturedOutput:]
	}
	return trimmed
}
