package config

const (
	defaultDataDir              = "~/.local/share/flowline/data"
	defaultLogDir               = "~/.local/share/flowline/logs"
	defaultPipelineDir          = "~/.config/flowline/pipelines"
	defaultAlertDir             = "~/.config/flowline/alerts"
	defaultAPIBind              = "127.0.0.1:7718"
	defaultStepTimeoutSeconds   = 900
	defaultRunTimeoutSeconds    = 3600
	defaultStepRetryLimit       = 0
	defaultTransitionQueueSize  = 1024
	defaultTransitionBatchSize  = 64
	defaultFlushIntervalSeconds = 2
	defaultRetryAttempts        = 3
	defaultRetryBaseDelayMillis = 1000
	defaultRetryMaxDelayMillis  = 30000
	defaultRequestTimeout       = 10
	defaultSMTPPort             = 587
	defaultAlertTimezone        = "UTC"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			LogDir:      defaultLogDir,
			PipelineDir: defaultPipelineDir,
			AlertDir:    defaultAlertDir,
			APIBind:     defaultAPIBind,
		},
		Executor: Executor{
			StepTimeoutSeconds:   defaultStepTimeoutSeconds,
			RunTimeoutSeconds:    defaultRunTimeoutSeconds,
			StepRetryLimit:       defaultStepRetryLimit,
			RetryBaseDelayMillis: defaultRetryBaseDelayMillis,
			RetryMaxDelayMillis:  defaultRetryMaxDelayMillis,
		},
		Transitions: Transitions{
			QueueSize:            defaultTransitionQueueSize,
			BatchSize:            defaultTransitionBatchSize,
			FlushIntervalSeconds: defaultFlushIntervalSeconds,
		},
		Notify: Notify{
			Email: Email{
				Port: defaultSMTPPort,
			},
			RetryAttempts:         defaultRetryAttempts,
			RetryBaseDelayMillis:  defaultRetryBaseDelayMillis,
			RetryMaxDelayMillis:   defaultRetryMaxDelayMillis,
			RequestTimeoutSeconds: defaultRequestTimeout,
		},
		Alerts: Alerts{
			Timezone: defaultAlertTimezone,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
