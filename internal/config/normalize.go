package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExecutor()
	c.normalizeTransitions()
	c.normalizeNotify()
	if err := c.normalizeAlerts(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.PipelineDir, err = expandPath(c.Paths.PipelineDir); err != nil {
		return fmt.Errorf("paths.pipeline_dir: %w", err)
	}
	if c.Paths.AlertDir, err = expandPath(c.Paths.AlertDir); err != nil {
		return fmt.Errorf("paths.alert_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeExecutor() {
	if c.Executor.StepTimeoutSeconds <= 0 {
		c.Executor.StepTimeoutSeconds = defaultStepTimeoutSeconds
	}
	if c.Executor.RunTimeoutSeconds <= 0 {
		c.Executor.RunTimeoutSeconds = defaultRunTimeoutSeconds
	}
	if c.Executor.StepRetryLimit < 0 {
		c.Executor.StepRetryLimit = 0
	}
}

func (c *Config) normalizeTransitions() {
	if c.Transitions.QueueSize <= 0 {
		c.Transitions.QueueSize = defaultTransitionQueueSize
	}
	if c.Transitions.BatchSize <= 0 {
		c.Transitions.BatchSize = defaultTransitionBatchSize
	}
	if c.Transitions.FlushIntervalSeconds <= 0 {
		c.Transitions.FlushIntervalSeconds = defaultFlushIntervalSeconds
	}
}

func (c *Config) normalizeNotify() {
	if c.Notify.RetryAttempts <= 0 {
		c.Notify.RetryAttempts = defaultRetryAttempts
	}
	if c.Notify.RetryBaseDelayMillis <= 0 {
		c.Notify.RetryBaseDelayMillis = defaultRetryBaseDelayMillis
	}
	if c.Notify.RetryMaxDelayMillis <= 0 {
		c.Notify.RetryMaxDelayMillis = defaultRetryMaxDelayMillis
	}
	if c.Notify.RequestTimeoutSeconds <= 0 {
		c.Notify.RequestTimeoutSeconds = defaultRequestTimeout
	}
	c.Notify.Email.Host = strings.TrimSpace(c.Notify.Email.Host)
	c.Notify.Email.From = strings.TrimSpace(c.Notify.Email.From)
	if c.Notify.Email.Port <= 0 {
		c.Notify.Email.Port = defaultSMTPPort
	}
	if c.Notify.Email.Password == "" {
		if value, ok := os.LookupEnv("FLOWLINE_SMTP_PASSWORD"); ok {
			c.Notify.Email.Password = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeAlerts() error {
	c.Alerts.Timezone = strings.TrimSpace(c.Alerts.Timezone)
	if c.Alerts.Timezone == "" {
		c.Alerts.Timezone = defaultAlertTimezone
	}
	if strings.TrimSpace(c.Alerts.WarehousePath) != "" {
		expanded, err := expandPath(c.Alerts.WarehousePath)
		if err != nil {
			return fmt.Errorf("alerts.warehouse_path: %w", err)
		}
		c.Alerts.WarehousePath = expanded
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
