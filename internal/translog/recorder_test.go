package translog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"flowline/internal/logging"
	"flowline/internal/runstore"
	"flowline/internal/testsupport"
	"flowline/internal/translog"
)

type captureSink struct {
	mu      sync.Mutex
	rows    []runstore.Transition
	calls   int
	failN   int
	entered chan struct{}
	release chan struct{}
}

func (s *captureSink) InsertTransitions(_ context.Context, batch []runstore.Transition) (int64, error) {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failN > 0 {
		s.failN--
		return 0, errors.New("database is locked")
	}
	s.rows = append(s.rows, batch...)
	return int64(len(batch)), nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func transition(id string, seq int) runstore.Transition {
	return runstore.Transition{
		EntityType: runstore.EntityRun,
		EntityID:   id,
		Seq:        seq,
		FromState:  string(runstore.RunPending),
		ToState:    string(runstore.RunRunning),
		OccurredAt: time.Now().UTC(),
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transitions.FlushIntervalSeconds = 3600

	sink := &captureSink{}
	recorder := translog.NewRecorder(sink, cfg, logging.NewNop())

	for i := 1; i <= 10; i++ {
		recorder.Record(transition("run-1", i))
	}
	recorder.Close()

	if got := sink.count(); got != 10 {
		t.Fatalf("expected 10 transitions flushed on close, got %d", got)
	}
	if recorder.Flushed() != 10 {
		t.Fatalf("expected flushed counter 10, got %d", recorder.Flushed())
	}
	if recorder.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", recorder.Dropped())
	}
}

func TestFlushesWhenBatchFills(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transitions.BatchSize = 4
	cfg.Transitions.FlushIntervalSeconds = 3600

	sink := &captureSink{}
	recorder := translog.NewRecorder(sink, cfg, logging.NewNop())
	defer recorder.Close()

	for i := 1; i <= 4; i++ {
		recorder.Record(transition("run-2", i))
	}

	deadline := time.Now().Add(5 * time.Second)
	for sink.count() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("batch never flushed, have %d rows", sink.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transitions.QueueSize = 1
	cfg.Transitions.BatchSize = 1
	cfg.Transitions.FlushIntervalSeconds = 3600

	sink := &captureSink{
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
	recorder := translog.NewRecorder(sink, cfg, logging.NewNop())

	// First transition reaches the sink and blocks there.
	recorder.Record(transition("run-3", 1))
	<-sink.entered

	// Second fills the one-slot queue, third has nowhere to go.
	recorder.Record(transition("run-3", 2))
	recorder.Record(transition("run-3", 3))

	if recorder.Dropped() != 1 {
		t.Fatalf("expected 1 dropped transition, got %d", recorder.Dropped())
	}

	close(sink.release)
	recorder.Close()

	if got := sink.count(); got != 2 {
		t.Fatalf("expected 2 transitions delivered, got %d", got)
	}
}

func TestFailedFlushRetriedNextTick(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transitions.BatchSize = 2
	cfg.Transitions.FlushIntervalSeconds = 1

	sink := &captureSink{failN: 1}
	recorder := translog.NewRecorder(sink, cfg, logging.NewNop())
	defer recorder.Close()

	recorder.Record(transition("run-4", 1))
	recorder.Record(transition("run-4", 2))

	deadline := time.Now().Add(10 * time.Second)
	for sink.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("batch never retried, have %d rows", sink.count())
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRecorderAgainstStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Transitions.FlushIntervalSeconds = 3600
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRun(t, store, "run-5", "daily-costs")

	recorder := translog.NewRecorder(store, cfg, logging.NewNop())
	recorder.Record(transition("run-5", 1))
	// Duplicate logical transition: deduplicated at the store layer.
	recorder.Record(transition("run-5", 1))
	recorder.Close()

	rows, err := store.TransitionsFor(context.Background(), runstore.EntityRun, "run-5")
	if err != nil {
		t.Fatalf("TransitionsFor failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 persisted transition, got %d", len(rows))
	}
}
