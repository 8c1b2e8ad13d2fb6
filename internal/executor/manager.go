package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"flowline/internal/config"
	"flowline/internal/faults"
	"flowline/internal/logging"
	"flowline/internal/plan"
	"flowline/internal/runstore"
)

// RunDetail bundles everything known about one run for the control surface.
type RunDetail struct {
	Run         *runstore.Run
	Steps       []*runstore.StepRun
	Transitions []runstore.Transition
}

// Manager tracks in-flight runs and is the single entry point the control
// surface uses to start, stop, and inspect them. Constructed once at daemon
// startup and injected where needed.
type Manager struct {
	cfg      *config.Config
	store    *runstore.Store
	executor *Executor
	registry *plan.Registry
	logger   *slog.Logger

	mu        sync.Mutex
	pipelines map[string]*plan.PipelineSpec
	active    map[string]*Cancellation
	closed    bool
	wg        sync.WaitGroup
}

func NewManager(store *runstore.Store, recorder Recorder, registry *plan.Registry, pipelines map[string]*plan.PipelineSpec, cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pipelines == nil {
		pipelines = map[string]*plan.PipelineSpec{}
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		executor:  New(store, recorder, registry, cfg, logger),
		registry:  registry,
		logger:    logger.With(logging.String(logging.FieldComponent, "manager")),
		pipelines: pipelines,
		active:    make(map[string]*Cancellation),
	}
}

// Pipelines returns the names of the loaded pipeline definitions.
func (m *Manager) Pipelines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return plan.Names(m.pipelines)
}

// ActiveCount returns the number of runs currently executing.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Trigger builds the plan for a pipeline, persists a pending run, and starts
// executing it in the background. The returned run is the freshly created
// pending record; callers poll Describe for progress.
func (m *Manager) Trigger(ctx context.Context, pipeline string, trigger Trigger) (*runstore.Run, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("manager is shut down")
	}
	spec, ok := m.pipelines[pipeline]
	m.mu.Unlock()
	if !ok {
		return nil, faults.Wrap(faults.ErrValidation, "manager", "trigger",
			fmt.Sprintf("unknown pipeline %q", pipeline), nil)
	}

	built, err := plan.Build(spec, m.registry)
	if err != nil {
		return nil, err
	}
	run, err := m.executor.Prepare(ctx, built, trigger)
	if err != nil {
		return nil, err
	}

	token := &Cancellation{}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("manager is shut down")
	}
	m.active[run.ID] = token
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("run triggered",
		logging.String(logging.FieldRunID, run.ID),
		logging.String(logging.FieldPipeline, pipeline),
		logging.String("trigger_source", trigger.Source),
	)

	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, run.ID)
			m.mu.Unlock()
		}()
		if err := m.executor.Execute(context.Background(), built, run, token); err != nil {
			m.logger.Error("run execution aborted",
				logging.String(logging.FieldRunID, run.ID),
				logging.Error(err),
			)
		}
	}()
	return run, nil
}

// Cancel requests cooperative cancellation of a run. Cancelling a run that
// already reached a terminal status is a no-op that reports the existing
// status; cancelling twice is equally harmless.
func (m *Manager) Cancel(ctx context.Context, runID, reason string) (*runstore.Run, error) {
	m.mu.Lock()
	token, isActive := m.active[runID]
	m.mu.Unlock()

	if isActive {
		if token.RequestStop(reason) {
			m.logger.Info("cancellation requested",
				logging.String(logging.FieldRunID, runID),
				logging.String("reason", reason),
			)
		}
		return m.store.GetRun(ctx, runID)
	}

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, runstore.ErrRunNotFound
	}
	if run.Status.IsTerminal() {
		return run, nil
	}
	// Orphaned non-terminal run with no live executor, e.g. after a restart.
	if err := m.executor.CancelDetached(ctx, run, reason); err != nil {
		return nil, err
	}
	return run, nil
}

// Describe returns a run with its steps and recorded run transitions.
func (m *Manager) Describe(ctx context.Context, runID string) (*RunDetail, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, runstore.ErrRunNotFound
	}
	steps, err := m.store.StepsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	transitions, err := m.store.TransitionsFor(ctx, runstore.EntityRun, runID)
	if err != nil {
		return nil, err
	}
	return &RunDetail{Run: run, Steps: steps, Transitions: transitions}, nil
}

// List returns runs filtered by optional statuses, newest first.
func (m *Manager) List(ctx context.Context, statuses ...runstore.RunStatus) ([]*runstore.Run, error) {
	return m.store.ListRuns(ctx, statuses...)
}

// Close stops accepting new runs, requests cancellation of every active run,
// and waits for them to reach a terminal status.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.wg.Wait()
		return
	}
	m.closed = true
	for runID, token := range m.active {
		if token.RequestStop("daemon shutdown") {
			m.logger.Info("shutdown cancellation requested",
				logging.String(logging.FieldRunID, runID))
		}
	}
	m.mu.Unlock()
	m.wg.Wait()
}
