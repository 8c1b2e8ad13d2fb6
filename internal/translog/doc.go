// Package translog buffers run and step state transitions and persists them
// asynchronously so that recording a transition never blocks pipeline
// execution. The recorder deliberately favors losing audit rows over stalling
// a run: a full queue drops the newest transition with a warning instead of
// applying backpressure.
package translog
