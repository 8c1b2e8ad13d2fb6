package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateTransitions(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if err := c.validateAlerts(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateExecutor() error {
	if c.Executor.StepTimeoutSeconds > c.Executor.RunTimeoutSeconds {
		return errors.New("executor.step_timeout_seconds must not exceed executor.run_timeout_seconds")
	}
	if c.Executor.RetryBaseDelayMillis > c.Executor.RetryMaxDelayMillis {
		return errors.New("executor.retry_base_delay_millis must not exceed executor.retry_max_delay_millis")
	}
	return nil
}

func (c *Config) validateTransitions() error {
	if c.Transitions.BatchSize > c.Transitions.QueueSize {
		return errors.New("transitions.batch_size must not exceed transitions.queue_size")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.RetryBaseDelayMillis > c.Notify.RetryMaxDelayMillis {
		return errors.New("notify.retry_base_delay_millis must not exceed notify.retry_max_delay_millis")
	}
	if c.Notify.Email.Host != "" && c.Notify.Email.From == "" {
		return errors.New("notify.email.from must be set when notify.email.host is configured")
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if _, err := time.LoadLocation(c.Alerts.Timezone); err != nil {
		return fmt.Errorf("alerts.timezone: unknown timezone %q", c.Alerts.Timezone)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
