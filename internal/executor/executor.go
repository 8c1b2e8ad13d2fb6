package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"flowline/internal/config"
	"flowline/internal/faults"
	"flowline/internal/logging"
	"flowline/internal/plan"
	"flowline/internal/runstore"
	"flowline/internal/step"
)

// Recorder receives state transitions as they happen. Implemented by
// translog.Recorder; Record must never block.
type Recorder interface {
	Record(t runstore.Transition)
}

// Trigger describes who or what started a run.
type Trigger struct {
	Source string
	Actor  string
}

// Executor drives one pipeline run through its state machine. It owns the
// monotonic guard: once a run or step reaches a terminal status no further
// transition is persisted for it.
type Executor struct {
	store    *runstore.Store
	recorder Recorder
	registry *plan.Registry
	cfg      *config.Config
	logger   *slog.Logger
}

func New(store *runstore.Store, recorder Recorder, registry *plan.Registry, cfg *config.Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:    store,
		recorder: recorder,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "executor")),
	}
}

// Prepare creates the run record and its pending step rows. The run is
// persisted before Execute is called so a crash between the two leaves an
// inspectable pending run rather than nothing.
func (e *Executor) Prepare(ctx context.Context, p *plan.Plan, trigger Trigger) (*runstore.Run, error) {
	run := &runstore.Run{
		ID:            uuid.NewString(),
		Pipeline:      p.Pipeline.Name,
		Tenant:        p.Pipeline.Tenant,
		Status:        runstore.RunPending,
		TriggerSource: trigger.Source,
		TriggerActor:  trigger.Actor,
		CreatedAt:     time.Now().UTC(),
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	for levelIdx, level := range p.Levels {
		for _, spec := range level {
			st := &runstore.StepRun{
				RunID:  run.ID,
				Name:   spec.Name,
				Kind:   spec.Kind,
				Level:  levelIdx,
				Status: runstore.StepPending,
			}
			if err := e.store.UpsertStep(ctx, st); err != nil {
				return nil, fmt.Errorf("create step %q: %w", spec.Name, err)
			}
		}
	}
	return run, nil
}

// Execute runs the plan to a terminal status. Cancellation is honored at
// level boundaries only; the whole run is bounded by the configured run
// timeout and each step by its own timeout. The returned error reports
// executor malfunction, never step failure; step failures end in a terminal
// failed run and a nil error.
func (e *Executor) Execute(ctx context.Context, p *plan.Plan, run *runstore.Run, cancel *Cancellation) error {
	if cancel == nil {
		cancel = &Cancellation{}
	}
	x := newExecution(e, p, run, cancel)

	// Persistence must outlive the run deadline so terminal statuses are
	// always recorded.
	persist := context.WithoutCancel(ctx)

	if !x.transitionRun(persist, runstore.RunRunning, "run started", "", "") {
		return fmt.Errorf("run %s not in a startable state (%s)", run.ID, run.Status)
	}

	runTimeout := time.Duration(e.cfg.Executor.RunTimeoutSeconds) * time.Second
	runCtx, cancelRun := context.WithTimeout(ctx, runTimeout)
	defer cancelRun()
	runCtx = logging.WithRun(runCtx, run.ID)

	for levelIdx := range p.Levels {
		if cancel.Requested() || errors.Is(runCtx.Err(), context.Canceled) {
			reason := cancel.Reason()
			if reason == "" {
				reason = "execution context cancelled"
			}
			x.skipFrom(persist, levelIdx, "run cancelled", "")
			x.transitionRun(persist, runstore.RunCancelling, reason, "", "")
			x.transitionRun(persist, runstore.RunCancelled, reason, "", "")
			return nil
		}
		if err := runCtx.Err(); err != nil {
			return x.finishTimedOut(persist, levelIdx, err)
		}

		failure := x.runLevel(runCtx, persist, p.Levels[levelIdx])
		if failure != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				return x.finishTimedOut(persist, levelIdx+1, runCtx.Err())
			}
			if failure.errType == faults.Timeout {
				x.skipFrom(persist, levelIdx+1,
					fmt.Sprintf("upstream step %q timed out", failure.step), faults.Dependency)
				x.transitionRun(persist, runstore.RunTimeout,
					fmt.Sprintf("step %q timed out", failure.step), faults.Timeout, failure.message)
				return nil
			}
			x.skipFrom(persist, levelIdx+1,
				fmt.Sprintf("upstream step %q failed", failure.step), faults.Dependency)
			x.transitionRun(persist, runstore.RunFailed,
				fmt.Sprintf("step %q failed", failure.step), failure.errType, failure.message)
			return nil
		}
	}

	x.transitionRun(persist, runstore.RunCompleted, "all steps completed", "", "")
	return nil
}

// CancelDetached drives a run that has no live executor (for example a
// pending run left behind by a restart) straight to cancelled.
func (e *Executor) CancelDetached(ctx context.Context, run *runstore.Run, reason string) error {
	if run.Status.IsTerminal() {
		return nil
	}
	transitions, err := e.store.TransitionsFor(ctx, runstore.EntityRun, run.ID)
	if err != nil {
		return err
	}
	seq := 0
	for _, t := range transitions {
		if t.Seq > seq {
			seq = t.Seq
		}
	}

	now := time.Now().UTC()
	for _, to := range []runstore.RunStatus{runstore.RunCancelling, runstore.RunCancelled} {
		seq++
		e.recorder.Record(runstore.Transition{
			EntityType: runstore.EntityRun,
			EntityID:   run.ID,
			Seq:        seq,
			FromState:  string(run.Status),
			ToState:    string(to),
			OccurredAt: now,
			Reason:     reason,
		})
		run.Status = to
	}
	run.FinishedAt = &now
	return e.store.UpdateRun(ctx, run)
}

type stepFailure struct {
	step    string
	errType faults.Type
	message string
}

// execution is the per-run working state: transition sequence counters, the
// shared output context, and the current step records.
type execution struct {
	ex     *Executor
	plan   *plan.Plan
	run    *runstore.Run
	cancel *Cancellation
	rc     *plan.RunContext
	logger *slog.Logger

	mu      sync.Mutex
	runSeq  int
	stepSeq map[string]int
	steps   map[string]*runstore.StepRun
	started map[string]time.Time
}

func newExecution(e *Executor, p *plan.Plan, run *runstore.Run, cancel *Cancellation) *execution {
	x := &execution{
		ex:     e,
		plan:   p,
		run:    run,
		cancel: cancel,
		rc:     plan.NewRunContext(run.ID, run.Pipeline, run.Tenant),
		logger: e.logger.With(
			logging.String(logging.FieldRunID, run.ID),
			logging.String(logging.FieldPipeline, run.Pipeline),
		),
		stepSeq: make(map[string]int),
		steps:   make(map[string]*runstore.StepRun),
		started: make(map[string]time.Time),
	}
	for levelIdx, level := range p.Levels {
		for _, spec := range level {
			x.steps[spec.Name] = &runstore.StepRun{
				RunID:  run.ID,
				Name:   spec.Name,
				Kind:   spec.Kind,
				Level:  levelIdx,
				Status: runstore.StepPending,
			}
		}
	}
	return x
}

// transitionRun moves the run to a new status, recording the transition and
// persisting the run row. Transitions out of a terminal status are rejected
// and logged, never recorded.
func (x *execution) transitionRun(ctx context.Context, to runstore.RunStatus, reason string, errType faults.Type, errMsg string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	from := x.run.Status
	if from.IsTerminal() {
		x.logger.Warn("rejected run transition from terminal state",
			logging.String("from", string(from)),
			logging.String("to", string(to)),
		)
		return false
	}
	x.runSeq++
	now := time.Now().UTC()
	x.ex.recorder.Record(runstore.Transition{
		EntityType:   runstore.EntityRun,
		EntityID:     x.run.ID,
		Seq:          x.runSeq,
		FromState:    string(from),
		ToState:      string(to),
		OccurredAt:   now,
		Reason:       reason,
		ErrorType:    errType,
		ErrorMessage: faults.Truncate(errMsg),
	})

	x.run.Status = to
	if to == runstore.RunRunning && x.run.StartedAt == nil {
		x.run.StartedAt = &now
	}
	if to.IsTerminal() {
		x.run.FinishedAt = &now
		x.run.ErrorType = errType
		x.run.ErrorMessage = faults.Truncate(errMsg)
	}
	if err := x.ex.store.UpdateRun(ctx, x.run); err != nil {
		x.logger.Error("persist run status failed",
			logging.String("status", string(to)),
			logging.Error(err),
		)
	}
	x.logger.Info("run transition",
		logging.String(logging.FieldEventType, "run_transition"),
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String("reason", reason),
	)
	return true
}

// transitionStep is the step-level counterpart of transitionRun, with the
// same monotonic guard.
func (x *execution) transitionStep(ctx context.Context, name string, to runstore.StepStatus, reason string, errType faults.Type, errMsg, trace string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	st := x.steps[name]
	from := st.Status
	if from.IsTerminal() {
		x.logger.Warn("rejected step transition from terminal state",
			logging.String(logging.FieldStep, name),
			logging.String("from", string(from)),
			logging.String("to", string(to)),
		)
		return false
	}

	x.stepSeq[name]++
	now := time.Now().UTC()
	var durationMS int64
	if startedAt, ok := x.started[name]; ok {
		durationMS = now.Sub(startedAt).Milliseconds()
	}
	x.ex.recorder.Record(runstore.Transition{
		EntityType:   runstore.EntityStep,
		EntityID:     x.run.ID + "/" + name,
		Seq:          x.stepSeq[name],
		FromState:    string(from),
		ToState:      string(to),
		OccurredAt:   now,
		Reason:       reason,
		ErrorType:    errType,
		ErrorMessage: faults.Truncate(errMsg),
		StackTrace:   faults.Truncate(trace),
		RetryCount:   st.RetryCount,
		DurationMS:   durationMS,
		Metadata:     map[string]string{"pipeline": x.run.Pipeline, "kind": st.Kind},
	})

	st.Status = to
	if to == runstore.StepRunning && st.StartedAt == nil {
		st.StartedAt = &now
		x.started[name] = now
	}
	if to.IsTerminal() {
		st.FinishedAt = &now
		st.ErrorType = errType
		st.ErrorMessage = faults.Truncate(errMsg)
		st.StackTrace = faults.Truncate(trace)
	}
	if err := x.ex.store.UpsertStep(ctx, st); err != nil {
		x.logger.Error("persist step status failed",
			logging.String(logging.FieldStep, name),
			logging.Error(err),
		)
	}
	return true
}

// runLevel executes every step of one level concurrently and returns the
// first observed failure, or nil when the whole level succeeded. A failing
// step never interrupts its siblings; the level always runs to completion.
func (x *execution) runLevel(ctx, persist context.Context, level []plan.StepSpec) *stepFailure {
	var (
		group errgroup.Group
		mu    sync.Mutex
		first *stepFailure
	)
	for _, spec := range level {
		spec := spec
		group.Go(func() error {
			if failure := x.runStep(ctx, persist, spec); failure != nil {
				mu.Lock()
				if first == nil {
					first = failure
				}
				mu.Unlock()
			}
			return nil
		})
	}
	group.Wait()
	return first
}

// runStep drives one step through its attempts. Only transient failures are
// retried, and only when the step opted in via its retry budget.
func (x *execution) runStep(ctx, persist context.Context, spec plan.StepSpec) *stepFailure {
	processor, err := x.ex.registry.Resolve(spec.Kind)
	if err != nil {
		x.transitionStep(persist, spec.Name, runstore.StepFailed, "unresolvable step kind", faults.Validation, err.Error(), "")
		return &stepFailure{step: spec.Name, errType: faults.Validation, message: err.Error()}
	}

	retries := spec.Retries
	if limit := x.ex.cfg.Executor.StepRetryLimit; limit > 0 && retries > limit {
		retries = limit
	}
	base := time.Duration(x.ex.cfg.Executor.RetryBaseDelayMillis) * time.Millisecond
	maxDelay := time.Duration(x.ex.cfg.Executor.RetryMaxDelayMillis) * time.Millisecond

	x.transitionStep(persist, spec.Name, runstore.StepRunning, "step started", "", "", "")

	attempt := 0
	for {
		attempt++
		result, trace := x.attemptStep(ctx, processor, spec)

		if !result.Failed() {
			x.rc.Publish(spec.Name, result.Output)
			x.transitionStep(persist, spec.Name, runstore.StepCompleted, "step completed", "", "", "")
			return nil
		}

		errType := result.ErrorType()
		if faults.Retryable(errType) && attempt <= retries && ctx.Err() == nil {
			x.mu.Lock()
			x.steps[spec.Name].RetryCount = attempt
			x.mu.Unlock()
			x.transitionStep(persist, spec.Name, runstore.StepRunning,
				fmt.Sprintf("retry %d after transient failure", attempt), errType, result.Err, "")

			select {
			case <-time.After(faults.RetryDelay(attempt, base, maxDelay)):
				continue
			case <-ctx.Done():
			}
		}

		status := runstore.StepFailed
		if errType == faults.Timeout {
			status = runstore.StepTimeout
		}
		x.transitionStep(persist, spec.Name, status, "step failed", errType, result.Err, trace)
		x.logger.Error("step failed",
			logging.String(logging.FieldStep, spec.Name),
			logging.String("error_type", string(errType)),
			logging.String("error", result.Err),
			logging.Int("attempts", attempt),
		)
		return &stepFailure{step: spec.Name, errType: errType, message: result.Err}
	}
}

// attemptStep runs one processor invocation under the step deadline. A panic
// is converted into the same failure shape as a returned error, so all three
// failure signals (returned FAILED result, returned error, panic) take one
// path through the state machine.
func (x *execution) attemptStep(ctx context.Context, processor plan.Processor, spec plan.StepSpec) (result step.Result, trace string) {
	timeout := time.Duration(x.ex.cfg.Executor.StepTimeoutSeconds) * time.Second
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stepCtx = logging.WithStep(stepCtx, spec.Name)

	defer func() {
		if r := recover(); r != nil {
			trace = string(debug.Stack())
			result = step.FromError(fmt.Errorf("step panic: %v", r))
		}
	}()

	result = processor.Process(stepCtx, spec, x.rc)
	if result.Failed() && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
		result.ErrType = faults.Timeout
	}
	return result, ""
}

// skipFrom marks every non-terminal step at or after the given level as
// skipped.
func (x *execution) skipFrom(ctx context.Context, fromLevel int, reason string, errType faults.Type) {
	for levelIdx := fromLevel; levelIdx < len(x.plan.Levels); levelIdx++ {
		for _, spec := range x.plan.Levels[levelIdx] {
			x.mu.Lock()
			terminal := x.steps[spec.Name].Status.IsTerminal()
			x.mu.Unlock()
			if terminal {
				continue
			}
			x.transitionStep(ctx, spec.Name, runstore.StepSkipped, reason, errType, "", "")
		}
	}
}

// finishTimedOut settles the run after the whole-run deadline expired.
func (x *execution) finishTimedOut(persist context.Context, fromLevel int, cause error) error {
	x.skipFrom(persist, fromLevel, "run timeout exceeded", "")
	message := fmt.Sprintf("run exceeded %ds budget", x.ex.cfg.Executor.RunTimeoutSeconds)
	if cause != nil && !errors.Is(cause, context.DeadlineExceeded) {
		message = cause.Error()
	}
	x.transitionRun(persist, runstore.RunTimeout, "run timeout", faults.Timeout, message)
	return nil
}
