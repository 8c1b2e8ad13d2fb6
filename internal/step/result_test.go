package step_test

import (
	"errors"
	"testing"

	"flowline/internal/faults"
	"flowline/internal/step"
)

func TestZeroStatusIsSuccess(t *testing.T) {
	result := step.Result{Output: map[string]any{"rows": 12}}
	if result.Failed() {
		t.Fatal("result without a status must default to success")
	}
}

func TestFailClassifiesMessage(t *testing.T) {
	result := step.Fail("rate limit exceeded")
	if !result.Failed() {
		t.Fatal("expected failed result")
	}
	if result.ErrorType() != faults.Transient {
		t.Fatalf("expected Transient, got %s", result.ErrorType())
	}
}

func TestFromErrorMatchesReturnedFailureShape(t *testing.T) {
	raised := step.FromError(errors.New("quota exceeded"))
	returned := step.Fail("quota exceeded")
	if raised.Err != returned.Err {
		t.Fatalf("raised and returned failures diverge: %q vs %q", raised.Err, returned.Err)
	}
	if !raised.Failed() || !returned.Failed() {
		t.Fatal("both signaling channels must mark failure")
	}
}

func TestErrorTypeLazyClassification(t *testing.T) {
	result := step.Result{Status: step.StatusFailed, Err: "unauthorized"}
	if result.ErrorType() != faults.Permanent {
		t.Fatalf("expected lazy classification to Permanent, got %s", result.ErrorType())
	}
}
