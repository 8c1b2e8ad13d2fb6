package runstore

import (
	"strings"
	"time"

	"flowline/internal/faults"
)

// RunStatus is the lifecycle of a pipeline run.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunTimeout    RunStatus = "timeout"
	RunCancelling RunStatus = "cancelling"
	RunCancelled  RunStatus = "cancelled"
)

// StepStatus is the lifecycle of a single step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepTimeout   StepStatus = "timeout"
	StepSkipped   StepStatus = "skipped"
)

var runStatuses = []RunStatus{
	RunPending,
	RunRunning,
	RunCompleted,
	RunFailed,
	RunTimeout,
	RunCancelling,
	RunCancelled,
}

var terminalRunStatuses = map[RunStatus]struct{}{
	RunCompleted: {},
	RunFailed:    {},
	RunTimeout:   {},
	RunCancelled: {},
}

var terminalStepStatuses = map[StepStatus]struct{}{
	StepCompleted: {},
	StepFailed:    {},
	StepTimeout:   {},
	StepSkipped:   {},
}

// AllRunStatuses returns the ordered list of known run statuses.
func AllRunStatuses() []RunStatus {
	cp := make([]RunStatus, len(runStatuses))
	copy(cp, runStatuses)
	return cp
}

// ParseRunStatus converts a string into a known RunStatus.
func ParseRunStatus(value string) (RunStatus, bool) {
	normalized := RunStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, status := range runStatuses {
		if status == normalized {
			return normalized, true
		}
	}
	return "", false
}

// IsTerminal reports whether a run status permits no further transitions.
func (s RunStatus) IsTerminal() bool {
	_, ok := terminalRunStatuses[s]
	return ok
}

// IsTerminal reports whether a step status permits no further transitions.
func (s StepStatus) IsTerminal() bool {
	_, ok := terminalStepStatuses[s]
	return ok
}

// Run is a pipeline run persisted in SQLite. Terminal runs are immutable.
type Run struct {
	ID            string
	Pipeline      string
	Tenant        string
	Status        RunStatus
	TriggerSource string
	TriggerActor  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	ErrorType     faults.Type
	ErrorMessage  string
}

// StepRun is one step's execution record within a run.
type StepRun struct {
	RunID        string
	Name         string
	Kind         string
	Level        int
	Status       StepStatus
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorType    faults.Type
	ErrorMessage string
	StackTrace   string
	RetryCount   int
}

// EntityType distinguishes run transitions from step transitions.
type EntityType string

const (
	EntityRun  EntityType = "RUN"
	EntityStep EntityType = "STEP"
)

// Transition is an immutable record of one status change. The tuple
// (EntityType, EntityID, FromState, ToState, Seq) identifies a logical
// transition; re-inserting the same tuple is a no-op.
type Transition struct {
	EntityType   EntityType
	EntityID     string
	Seq          int
	FromState    string
	ToState      string
	OccurredAt   time.Time
	Reason       string
	ErrorType    faults.Type
	ErrorMessage string
	StackTrace   string
	RetryCount   int
	DurationMS   int64
	Metadata     map[string]string
}

func faultType(value string) faults.Type {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return faults.Type(value)
}

// AlertOutcome is the recorded result of one alert evaluation for one tenant.
type AlertOutcome string

const (
	AlertFired          AlertOutcome = "fired"
	AlertSuppressed     AlertOutcome = "suppressed"
	AlertDeliveryFailed AlertOutcome = "delivery_failed"
)

// AlertRecord is one row of alert delivery history.
type AlertRecord struct {
	AlertID  string
	Tenant   string
	FiredAt  time.Time
	Outcome  AlertOutcome
	Message  string
	Severity string
}
