package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"flowline/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.toml")
	cfg, path, exists, err := config.Load(missing)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if path != missing {
		t.Fatalf("expected resolved path %q, got %q", missing, path)
	}
	if cfg.Executor.RunTimeoutSeconds != 3600 {
		t.Fatalf("expected default run timeout, got %d", cfg.Executor.RunTimeoutSeconds)
	}
	if cfg.Paths.APIBind == "" {
		t.Fatal("expected api bind default to be populated")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[executor]
step_timeout_seconds = 60
run_timeout_seconds = 120

[transitions]
queue_size = 32
batch_size = 8

[logging]
format = "json"
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Executor.StepTimeoutSeconds != 60 || cfg.Executor.RunTimeoutSeconds != 120 {
		t.Fatalf("unexpected executor settings: %+v", cfg.Executor)
	}
	if cfg.Transitions.QueueSize != 32 || cfg.Transitions.BatchSize != 8 {
		t.Fatalf("unexpected transition settings: %+v", cfg.Transitions)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging settings: %+v", cfg.Logging)
	}
}

func TestSMTPPasswordFromEnvironment(t *testing.T) {
	t.Setenv("FLOWLINE_SMTP_PASSWORD", "env-secret")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notify.Email.Password != "env-secret" {
		t.Fatalf("expected env password to apply, got %q", cfg.Notify.Email.Password)
	}
}

func TestSMTPPasswordFileValueWinsOverEnvironment(t *testing.T) {
	t.Setenv("FLOWLINE_SMTP_PASSWORD", "env-secret")

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[notify.email]
password = "file-secret"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notify.Email.Password != "file-secret" {
		t.Fatalf("expected file password to win, got %q", cfg.Notify.Email.Password)
	}
}

func TestLoadRejectsStepTimeoutAboveRunTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[executor]
step_timeout_seconds = 600
run_timeout_seconds = 60
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for step timeout above run timeout")
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := config.Default()
	cfg.Alerts.Timezone = "Mars/Olympus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidateRejectsBadLogFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected sample config content")
	}
}
