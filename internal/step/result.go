package step

import (
	"strings"

	"flowline/internal/faults"
)

// Status is the discriminant of a processor result.
type Status string

const (
	// StatusSuccess is the zero-value default: a result whose processor only
	// populated Output is treated as successful for backward compatibility.
	StatusSuccess Status = ""
	// StatusOK marks an explicit success.
	StatusOK Status = "SUCCESS"
	// StatusFailed marks an explicit failure carried in the result rather
	// than raised as an error.
	StatusFailed Status = "FAILED"
)

// Result is the single discriminated outcome every processor returns.
// The executor switches exhaustively on Failed(); a returned failure and a
// returned error follow the identical failure path, which removes the
// historical class of silently-successful failures.
type Result struct {
	Status  Status
	Err     string
	ErrType faults.Type
	Output  map[string]any
}

// Succeed builds a successful result carrying the step's output values.
func Succeed(output map[string]any) Result {
	return Result{Status: StatusOK, Output: output}
}

// Fail builds a failed result whose error type is derived from the message.
func Fail(message string) Result {
	return Result{
		Status:  StatusFailed,
		Err:     strings.TrimSpace(message),
		ErrType: faults.ClassifyMessage(message),
	}
}

// FailTyped builds a failed result with an explicit taxonomy value.
func FailTyped(message string, errType faults.Type) Result {
	return Result{Status: StatusFailed, Err: strings.TrimSpace(message), ErrType: errType}
}

// FromError converts a raised error into the same shape as a returned failure.
func FromError(err error) Result {
	if err == nil {
		return Succeed(nil)
	}
	return Result{Status: StatusFailed, Err: err.Error(), ErrType: faults.Classify(err)}
}

// Failed reports whether the result carries a failure.
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// ErrorType returns the classified failure type, classifying lazily when the
// processor filled only the message.
func (r Result) ErrorType() faults.Type {
	if !r.Failed() {
		return faults.Unknown
	}
	if r.ErrType != "" {
		return r.ErrType
	}
	return faults.ClassifyMessage(r.Err)
}
