// Package faults classifies failures and owns the retry/backoff policy.
//
// Components tag their errors with sentinel markers via Wrap so classification
// stays exact across package boundaries; foreign errors fall back to message
// pattern rules. Unknown is deliberately non-retryable. RetryDelay is the
// single backoff schedule shared by step retry and notification delivery.
package faults
