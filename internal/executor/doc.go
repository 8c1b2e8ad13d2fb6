// Package executor runs leveled pipeline plans through the run and step
// state machines.
//
// Failure handling is uniform: a processor that returns a failed result, one
// that returns an error, and one that panics all end up on the same path
// with a classified error type. Cancellation is cooperative; a stop request
// is observed at the next level boundary and in-flight steps always finish.
// Terminal statuses are final, guarded by the executor, never by callers.
package executor
