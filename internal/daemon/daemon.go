package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"flowline/internal/alerts"
	"flowline/internal/config"
	"flowline/internal/executor"
	"flowline/internal/logging"
	"flowline/internal/notify"
	"flowline/internal/plan"
	"flowline/internal/runstore"
	"flowline/internal/translog"
)

// Daemon wires the pipeline manager, the alert engine, and the control API
// together and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *runstore.Store
	recorder  *translog.Recorder
	notifier  *notify.Registry
	manager   *executor.Manager
	engine    *alerts.Engine
	scheduler *alerts.Scheduler
	warehouse *sql.DB
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running            bool
	PID                int
	DatabasePath       string
	LockFilePath       string
	ActiveRuns         int
	Pipelines          []string
	AlertCount         int
	DroppedTransitions uint64
}

// New loads pipeline, channel, and alert definitions and constructs a daemon
// with initialized dependencies. The store is owned by the daemon from here
// on and closed by Close.
func New(cfg *config.Config, store *runstore.Store, registry *plan.Registry, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || registry == nil {
		return nil, errors.New("daemon requires config, store, and processor registry")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	pipelines, err := plan.LoadDir(cfg.Paths.PipelineDir)
	if err != nil {
		return nil, fmt.Errorf("load pipelines: %w", err)
	}

	owners := alerts.OwnerMap{}
	for _, spec := range pipelines {
		if spec.Tenant != "" && len(spec.Owners) > 0 {
			owners[spec.Tenant] = append(owners[spec.Tenant], spec.Owners...)
		}
	}

	notifier := notify.NewRegistry(cfg, logger)
	channels, err := notify.LoadChannels(cfg.Paths.AlertDir)
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("load channels: %w", err)
	}
	if err := notifier.ConfigureAll(channels); err != nil {
		notifier.Close()
		return nil, fmt.Errorf("configure channels: %w", err)
	}

	alertSpecs, err := alerts.LoadDir(cfg.Paths.AlertDir, cfg.Alerts.Timezone)
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	var warehouse *sql.DB
	if cfg.Alerts.WarehousePath != "" {
		warehouse, err = sql.Open("sqlite", cfg.Alerts.WarehousePath)
		if err != nil {
			notifier.Close()
			return nil, fmt.Errorf("open warehouse: %w", err)
		}
	}

	recorder := translog.NewRecorder(store, cfg, logger)
	manager := executor.NewManager(store, recorder, registry, pipelines, cfg, logger)

	engine, err := alerts.NewEngine(cfg, store, notifier, warehouse, owners, alertSpecs, logger)
	if err != nil {
		manager.Close()
		recorder.Close()
		notifier.Close()
		if warehouse != nil {
			_ = warehouse.Close()
		}
		return nil, fmt.Errorf("build alert engine: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "flowlined.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		recorder:  recorder,
		notifier:  notifier,
		manager:   manager,
		engine:    engine,
		scheduler: alerts.NewScheduler(engine, cfg, logger),
		warehouse: warehouse,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, begins scheduled alert evaluation, and
// starts serving the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another flowline daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.scheduler.Start(); err != nil {
		d.releaseStart()
		return fmt.Errorf("start alert scheduler: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.scheduler.Stop()
		d.releaseStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("flowline daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pipelines", len(d.manager.Pipelines())),
		logging.Int("alerts", len(d.engine.Alerts())),
	)
	return nil
}

func (d *Daemon) releaseStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
}

// Stop shuts down the control API, halts scheduled evaluation, cancels
// active runs, and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.scheduler.Stop()
	d.manager.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("flowline daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.notifier.Close()
	d.recorder.Close()
	var errs []error
	if d.warehouse != nil {
		if err := d.warehouse.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.store.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Manager exposes the run manager for the control surface.
func (d *Daemon) Manager() *executor.Manager {
	return d.manager
}

// Engine exposes the alert engine for the control surface.
func (d *Daemon) Engine() *alerts.Engine {
	return d.engine
}

// APIAddr returns the bound control API address, or empty when disabled.
func (d *Daemon) APIAddr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:            d.running.Load(),
		PID:                os.Getpid(),
		DatabasePath:       d.store.Path(),
		LockFilePath:       d.lockPath,
		ActiveRuns:         d.manager.ActiveCount(),
		Pipelines:          d.manager.Pipelines(),
		AlertCount:         len(d.engine.Alerts()),
		DroppedTransitions: d.recorder.Dropped(),
	}
}
