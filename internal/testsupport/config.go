package testsupport

import (
	"path/filepath"
	"testing"

	"flowline/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.PipelineDir = filepath.Join(base, "pipelines")
	cfg.Paths.AlertDir = filepath.Join(base, "alerts")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Alerts.WarehousePath = filepath.Join(base, "warehouse.db")

	// Keep retries fast in tests.
	cfg.Notify.RetryBaseDelayMillis = 1
	cfg.Notify.RetryMaxDelayMillis = 5
	cfg.Executor.RetryBaseDelayMillis = 1
	cfg.Executor.RetryMaxDelayMillis = 5
	cfg.Transitions.FlushIntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithStepTimeout overrides the per-step timeout on the test config.
func WithStepTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Executor.StepTimeoutSeconds = seconds
	}
}

// WithRunTimeout overrides the whole-run timeout on the test config.
func WithRunTimeout(seconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Executor.RunTimeoutSeconds = seconds
	}
}
