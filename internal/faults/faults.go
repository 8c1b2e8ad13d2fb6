package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Type is the failure taxonomy used for retry decisions and run records.
type Type string

const (
	Transient  Type = "TRANSIENT"
	Permanent  Type = "PERMANENT"
	Timeout    Type = "TIMEOUT"
	Validation Type = "VALIDATION_ERROR"
	Dependency Type = "DEPENDENCY_FAILURE"
	Unknown    Type = "UNKNOWN"
)

var (
	ErrTransient  = errors.New("transient failure")
	ErrPermanent  = errors.New("permanent failure")
	ErrTimeout    = errors.New("timeout")
	ErrValidation = errors.New("validation error")
	ErrDependency = errors.New("dependency failure")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to its taxonomy value. Sentinel markers win over
// message patterns so wrapped errors keep their declared type.
func Classify(err error) Type {
	if err == nil {
		return Unknown
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return Timeout
	case errors.Is(err, ErrValidation):
		return Validation
	case errors.Is(err, ErrDependency):
		return Dependency
	case errors.Is(err, ErrPermanent):
		return Permanent
	case errors.Is(err, ErrTransient):
		return Transient
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies pattern rules to a raw error message. Unknown is the
// deliberate fallback; unknown failures are never retried.
func ClassifyMessage(message string) Type {
	lowered := strings.ToLower(message)
	switch {
	case containsAny(lowered, timeoutSignatures):
		return Timeout
	case containsAny(lowered, transientSignatures):
		return Transient
	case containsAny(lowered, validationSignatures):
		return Validation
	case containsAny(lowered, permanentSignatures):
		return Permanent
	case containsAny(lowered, dependencySignatures):
		return Dependency
	default:
		return Unknown
	}
}

// Retryable reports whether failures of the given type may be retried.
// Only transient failures qualify; Unknown is non-retryable so unclassified
// errors cannot cause retry loops.
func Retryable(t Type) bool {
	return t == Transient
}

var (
	timeoutSignatures = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}
	transientSignatures = []string{
		"rate limit",
		"too many requests",
		"connection reset",
		"connection refused",
		"temporarily unavailable",
		"deadlock",
		"status 500",
		"status 502",
		"status 503",
		"status 504",
		"internal server error",
		"service unavailable",
		"bad gateway",
	}
	validationSignatures = []string{
		"validation",
		"invalid",
		"malformed",
		"missing required",
	}
	permanentSignatures = []string{
		"unauthorized",
		"forbidden",
		"permission denied",
		"not found",
		"access denied",
		"status 401",
		"status 403",
		"status 404",
	}
	dependencySignatures = []string{
		"dependency",
		"upstream",
	}
)

func containsAny(message string, signatures []string) bool {
	for _, signature := range signatures {
		if strings.Contains(message, signature) {
			return true
		}
	}
	return false
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
