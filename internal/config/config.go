package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	PipelineDir string `toml:"pipeline_dir"`
	AlertDir    string `toml:"alert_dir"`
	APIBind     string `toml:"api_bind"`
}

// Executor contains timeout and retry policy for pipeline runs.
type Executor struct {
	StepTimeoutSeconds   int `toml:"step_timeout_seconds"`
	RunTimeoutSeconds    int `toml:"run_timeout_seconds"`
	StepRetryLimit       int `toml:"step_retry_limit"`
	RetryBaseDelayMillis int `toml:"retry_base_delay_millis"`
	RetryMaxDelayMillis  int `toml:"retry_max_delay_millis"`
}

// Transitions contains buffering policy for the state transition recorder.
type Transitions struct {
	QueueSize            int `toml:"queue_size"`
	BatchSize            int `toml:"batch_size"`
	FlushIntervalSeconds int `toml:"flush_interval_seconds"`
}

// Email contains SMTP delivery settings shared by all tenants.
type Email struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	From     string `toml:"from"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// Notify contains notification delivery and retry settings.
type Notify struct {
	Email                 Email `toml:"email"`
	RetryAttempts         int   `toml:"retry_attempts"`
	RetryBaseDelayMillis  int   `toml:"retry_base_delay_millis"`
	RetryMaxDelayMillis   int   `toml:"retry_max_delay_millis"`
	RequestTimeoutSeconds int   `toml:"request_timeout_seconds"`
}

// Alerts contains alert evaluation settings.
type Alerts struct {
	WarehousePath string `toml:"warehouse_path"`
	Timezone      string `toml:"timezone"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Flowline.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, pipeline and alert definition dirs, API bind
//   - Executor: run and step timeouts plus the transient retry limit
//   - Transitions: state transition recorder buffering
//   - Notify: notification retry policy and SMTP settings
//   - Alerts: warehouse location and evaluation timezone
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Executor    Executor    `toml:"executor"`
	Transitions Transitions `toml:"transitions"`
	Notify      Notify      `toml:"notify"`
	Alerts      Alerts      `toml:"alerts"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/flowline/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("flowline.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.PipelineDir, c.Paths.AlertDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
