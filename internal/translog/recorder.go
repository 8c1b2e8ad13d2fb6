package translog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"flowline/internal/config"
	"flowline/internal/logging"
	"flowline/internal/runstore"
)

const flushTimeout = 10 * time.Second

// Sink receives batches of transitions. Implemented by runstore.Store.
type Sink interface {
	InsertTransitions(ctx context.Context, batch []runstore.Transition) (int64, error)
}

var _ Sink = (*runstore.Store)(nil)

// Recorder buffers state transitions in a bounded queue and flushes them to
// the sink in batches, either when the batch fills or on a timer. Record never
// blocks the caller: when the queue is full the transition is counted as
// dropped and a warning is logged. Because the sink's inserts are idempotent,
// a retained batch can safely be re-flushed after a write failure.
type Recorder struct {
	sink      Sink
	logger    *slog.Logger
	queue     chan runstore.Transition
	batchSize int
	interval  time.Duration

	dropped atomic.Uint64
	flushed atomic.Uint64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewRecorder starts the background flusher and returns the recorder.
func NewRecorder(sink Sink, cfg *config.Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Recorder{
		sink:      sink,
		logger:    logger.With(logging.String(logging.FieldComponent, "translog")),
		queue:     make(chan runstore.Transition, cfg.Transitions.QueueSize),
		batchSize: cfg.Transitions.BatchSize,
		interval:  time.Duration(cfg.Transitions.FlushIntervalSeconds) * time.Second,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues one transition without blocking. Transitions offered after
// Close, or while the queue is full, are dropped and counted.
func (r *Recorder) Record(t runstore.Transition) {
	select {
	case <-r.stop:
		r.drop(t)
		return
	default:
	}
	select {
	case r.queue <- t:
	default:
		r.drop(t)
	}
}

func (r *Recorder) drop(t runstore.Transition) {
	total := r.dropped.Add(1)
	r.logger.Warn("transition dropped, queue full",
		logging.String("entity_type", string(t.EntityType)),
		logging.String("entity_id", t.EntityID),
		logging.String("to_state", t.ToState),
		logging.Int64("dropped_total", int64(total)),
	)
}

// Dropped returns the number of transitions discarded since startup.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Flushed returns the number of transition rows written since startup.
func (r *Recorder) Flushed() uint64 {
	return r.flushed.Load()
}

// Close drains the queue, flushes everything buffered, and stops the flusher.
// Safe to call more than once.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.stop)
	})
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]runstore.Transition, 0, r.batchSize)
	for {
		select {
		case t := <-r.queue:
			batch = append(batch, t)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-r.stop:
			batch = r.drain(batch)
			if len(batch) > 0 {
				r.logger.Error("transitions unflushed at shutdown",
					logging.Int("count", len(batch)))
			}
			return
		}
	}
}

// drain empties the queue and performs a final flush.
func (r *Recorder) drain(batch []runstore.Transition) []runstore.Transition {
	for {
		select {
		case t := <-r.queue:
			batch = append(batch, t)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		default:
			return r.flush(batch)
		}
	}
}

// flush writes the batch to the sink. On failure the batch is retained so the
// next tick retries it; redelivered rows are deduplicated by the sink.
func (r *Recorder) flush(batch []runstore.Transition) []runstore.Transition {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	written, err := r.sink.InsertTransitions(ctx, batch)
	if err != nil {
		r.logger.Error("transition flush failed",
			logging.Int("batch_size", len(batch)),
			logging.Error(err),
		)
		return batch
	}
	r.flushed.Add(uint64(written))
	return batch[:0]
}
