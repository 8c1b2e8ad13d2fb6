// Package step defines the result contract between processors and the
// executor.
//
// A processor reports failure either by returning a Result with StatusFailed
// or by raising an error; both are normalized into the same Result shape so
// the executor has exactly one failure path. The zero Status defaults to
// success for processors that only fill Output.
package step
