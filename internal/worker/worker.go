// Package worker implements the consumer side of the migration: it takes
// records off the handoff queue, transforms them, and writes them.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/metrics"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
	"github.com/JakeFAU/readlater-migrate/internal/queue/memory"
)

// Dequeuer is the read side of the handoff queue.
type Dequeuer interface {
	Dequeue(ctx context.Context) (migrate.QueueItem, error)
}

// Transformer shapes a raw record into a destination payload.
type Transformer interface {
	Transform(rec migrate.RawRecord) (migrate.Payload, error)
}

// RecordWriter writes payloads and records records that cannot be written.
type RecordWriter interface {
	Write(ctx context.Context, rec migrate.RawRecord, payload migrate.Payload) migrate.Outcome
	Fail(rec migrate.RawRecord, cause error) migrate.Outcome
}

// Observer is told about every record a worker finished with.
type Observer interface {
	Observe(item migrate.QueueItem, outcome migrate.Outcome)
}

// Worker consumes one record at a time. A write, including its retries and
// rate limit waits, is outstanding until Write returns.
type Worker struct {
	id          int
	queue       Dequeuer
	transformer Transformer
	sink        RecordWriter
	observer    Observer
	logger      *zap.Logger
}

// New constructs a Worker.
func New(id int, queue Dequeuer, transformer Transformer, sink RecordWriter, observer Observer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:          id,
		queue:       queue,
		transformer: transformer,
		sink:        sink,
		observer:    observer,
		logger:      logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming queue items until the queue is closed and empty or
// ctx is canceled. Cancellation stops consumption only; a write already in
// progress runs to completion so its outcome is never lost.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, memory.ErrClosed) {
				w.logger.Error("queue dequeue failed", zap.Error(err))
			}
			return
		}
		item.Ack()
		if ctx.Err() != nil {
			w.finish(item, w.sink.Fail(item.Record, migrate.ErrNotAttempted))
			return
		}
		w.logger.Debug("dequeued record", zap.String("id", item.Record.ID), zap.Int("page", item.Page))
		w.process(context.WithoutCancel(ctx), item)
	}
}

func (w *Worker) process(ctx context.Context, item migrate.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	payload, err := w.transformer.Transform(item.Record)
	if err != nil {
		w.finish(item, w.sink.Fail(item.Record, err))
		return
	}
	w.finish(item, w.sink.Write(ctx, item.Record, payload))
}

func (w *Worker) finish(item migrate.QueueItem, outcome migrate.Outcome) {
	if w.observer != nil {
		w.observer.Observe(item, outcome)
	}
}
