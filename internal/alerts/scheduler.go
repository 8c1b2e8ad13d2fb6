package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"flowline/internal/config"
	"flowline/internal/logging"
)

// Scheduler drives scheduled alert evaluation through one cron runner.
// Alerts without a cron expression are on-demand only.
type Scheduler struct {
	engine *Engine
	cfg    *config.Config
	logger *slog.Logger
	cron   *cron.Cron
}

func NewScheduler(engine *Engine, cfg *config.Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		engine: engine,
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "alert-scheduler")),
	}
}

// Start registers every scheduled, enabled alert and begins the cron runner.
func (s *Scheduler) Start() error {
	runner := cron.New()
	for _, spec := range s.engine.Alerts() {
		if !spec.IsEnabled() || spec.Schedule.Cron == "" {
			continue
		}

		timezone := spec.Schedule.Timezone
		if timezone == "" {
			timezone = s.cfg.Alerts.Timezone
		}
		expression := spec.Schedule.Cron
		if timezone != "" {
			expression = "CRON_TZ=" + timezone + " " + expression
		}

		id := spec.ID
		if _, err := runner.AddFunc(expression, func() { s.evaluate(id) }); err != nil {
			return err
		}
		s.logger.Info("alert scheduled",
			logging.String(logging.FieldAlert, id),
			logging.String("cron", spec.Schedule.Cron),
			logging.String("timezone", timezone),
		)
	}
	runner.Start()
	s.cron = runner
	return nil
}

func (s *Scheduler) evaluate(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := s.engine.EvaluateAlert(ctx, id, false); err != nil {
		s.logger.Error("scheduled evaluation failed",
			logging.String(logging.FieldAlert, id),
			logging.Error(err),
		)
	}
}

// Stop halts the runner and waits for in-flight evaluations to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
