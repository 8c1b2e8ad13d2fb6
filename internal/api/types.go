package api

import "time"

// RunSummary is the wire form of one pipeline run.
type RunSummary struct {
	ID            string     `json:"id"`
	Pipeline      string     `json:"pipeline"`
	Tenant        string     `json:"tenant,omitempty"`
	Status        string     `json:"status"`
	TriggerSource string     `json:"trigger_source,omitempty"`
	TriggerActor  string     `json:"trigger_actor,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	ErrorType     string     `json:"error_type,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// StepView is the wire form of one step record.
type StepView struct {
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	Level        int        `json:"level"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorType    string     `json:"error_type,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RetryCount   int        `json:"retry_count,omitempty"`
}

// TransitionView is the wire form of one recorded state transition.
type TransitionView struct {
	Seq          int               `json:"seq"`
	FromState    string            `json:"from_state"`
	ToState      string            `json:"to_state"`
	OccurredAt   time.Time         `json:"occurred_at"`
	Reason       string            `json:"reason,omitempty"`
	ErrorType    string            `json:"error_type,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	RetryCount   int               `json:"retry_count,omitempty"`
	DurationMS   int64             `json:"duration_ms,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RunDetail is a run with its steps and run-level transitions.
type RunDetail struct {
	Run         RunSummary       `json:"run"`
	Steps       []StepView       `json:"steps"`
	Transitions []TransitionView `json:"transitions"`
}

// RunListResponse wraps GET /api/runs.
type RunListResponse struct {
	Runs []RunSummary `json:"runs"`
}

// TriggerRequest is the body of POST /api/runs.
type TriggerRequest struct {
	Pipeline string `json:"pipeline"`
	Actor    string `json:"actor,omitempty"`
}

// CancelRequest is the body of POST /api/runs/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// AlertView is the wire form of one alert definition.
type AlertView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Enabled  bool     `json:"enabled"`
	Cron     string   `json:"cron,omitempty"`
	Timezone string   `json:"timezone,omitempty"`
	Severity string   `json:"severity,omitempty"`
	Channels []string `json:"channels"`
	Cooldown int      `json:"cooldown_minutes,omitempty"`
}

// AlertListResponse wraps GET /api/alerts.
type AlertListResponse struct {
	Alerts []AlertView `json:"alerts"`
}

// TenantOutcomeView is one tenant's evaluation result.
type TenantOutcomeView struct {
	Tenant    string   `json:"tenant"`
	Matched   bool     `json:"matched"`
	Outcome   string   `json:"outcome,omitempty"`
	Message   string   `json:"message,omitempty"`
	Delivered []string `json:"delivered,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// EvalView is the wire form of one alert evaluation.
type EvalView struct {
	AlertID string              `json:"alert_id"`
	DryRun  bool                `json:"dry_run,omitempty"`
	Tenants []TenantOutcomeView `json:"tenants"`
}

// EvaluateResponse wraps POST /api/alerts/evaluate.
type EvaluateResponse struct {
	Results []EvalView `json:"results"`
}

// TestRequest is the body of POST /api/alerts/{id}/test. DryRun defaults to
// true; delivery has to be asked for explicitly.
type TestRequest struct {
	DryRun *bool `json:"dry_run,omitempty"`
}

// DaemonStatus is the wire form of GET /api/status.
type DaemonStatus struct {
	Running            bool     `json:"running"`
	PID                int      `json:"pid"`
	DatabasePath       string   `json:"database_path"`
	LockFilePath       string   `json:"lock_file_path"`
	ActiveRuns         int      `json:"active_runs"`
	Pipelines          []string `json:"pipelines"`
	AlertCount         int      `json:"alert_count"`
	DroppedTransitions uint64   `json:"dropped_transitions"`
}
