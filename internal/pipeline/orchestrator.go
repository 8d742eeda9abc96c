// Package pipeline runs a migration: a page producer feeding a bounded queue
// drained by a small pool of record writers, followed by the failure report
// flush.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/readlater-migrate/internal/dispatcher"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
	"github.com/JakeFAU/readlater-migrate/internal/progress"
	"github.com/JakeFAU/readlater-migrate/internal/queue/memory"
	"github.com/JakeFAU/readlater-migrate/internal/worker"
)

// ErrAborted wraps the cause of a run that ended in StateAborted.
var ErrAborted = errors.New("migration aborted")

const defaultFlushTimeout = 30 * time.Second

// Fetcher yields pages until migrate.ErrNoMorePages.
type Fetcher interface {
	Next(ctx context.Context) (migrate.Page, error)
}

// Flusher writes the failure report once the consumer has drained.
type Flusher interface {
	Flush(ctx context.Context) (string, error)
}

// Publisher announces the final summary.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Config controls queue sizing and concurrency.
type Config struct {
	// BufferSize is the handoff queue capacity.
	BufferSize int
	// Concurrency is the number of concurrent writers.
	Concurrency int
	// FlushTimeout bounds the report write, which runs even after cancellation.
	FlushTimeout time.Duration
	// SummaryTopic is passed to the Publisher when one is configured.
	SummaryTopic string
}

// Components are the collaborators a run is assembled from.
type Components struct {
	Fetcher     Fetcher
	Transformer worker.Transformer
	Sink        worker.RecordWriter
	Collector   Flusher
	Emitter     progress.Emitter
	Publisher   Publisher
	Clock       migrate.Clock
}

// Orchestrator drives one run through its states. It is single use.
type Orchestrator struct {
	comp   Components
	cfg    Config
	runID  uuid.UUID
	logger *zap.Logger

	mu      sync.Mutex
	summary Summary
	ran     bool
}

// New constructs an Orchestrator for the run identified by runID.
func New(runID uuid.UUID, comp Components, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if comp.Emitter == nil {
		comp.Emitter = progress.NopEmitter{}
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	return &Orchestrator{
		comp:   comp,
		cfg:    cfg,
		runID:  runID,
		logger: logger.With(zap.String("run_id", runID.String())),
		summary: Summary{
			RunID: runID.String(),
			State: StateInit,
		},
	}
}

// Snapshot returns the current accounting. Safe to call during Run.
func (o *Orchestrator) Snapshot() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

// Run streams every record from the fetcher to the sink and flushes the
// failure report. A fatal fetch error or cancellation of ctx aborts the run:
// consumption stops, writes already in flight complete, records still queued
// are reported as not attempted, and the report is flushed before Run returns
// an error wrapping ErrAborted.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	o.mu.Lock()
	if o.ran {
		o.mu.Unlock()
		return o.Snapshot(), errors.New("orchestrator already ran")
	}
	o.ran = true
	o.summary.Started = o.now()
	o.mu.Unlock()

	o.transition(StateStreaming)
	o.emit(progress.Event{Stage: progress.StageRunStart})
	o.logger.Info("migration started",
		zap.Int("buffer_size", o.cfg.BufferSize),
		zap.Int("concurrency", o.cfg.Concurrency),
	)

	queue := memory.NewQueue(o.cfg.BufferSize)
	workers := make([]*worker.Worker, o.cfg.Concurrency)
	for i := range workers {
		workers[i] = worker.New(i, queue, o.comp.Transformer, o.comp.Sink, o, o.logger.Named("worker"))
	}
	dispatch := dispatcher.New(queue, workers)

	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		dispatch.Run(consumeCtx)
	}()

	cause := o.produce(ctx, dispatch)
	dispatch.Close()
	if cause == nil {
		o.transition(StateDraining)
	} else {
		o.abort(cause)
		stopConsume()
	}
	<-consumed

	// Consumers stop early on cancellation; anything still buffered was
	// fetched but never attempted.
	for _, item := range queue.Drain() {
		o.Observe(item, o.comp.Sink.Fail(item.Record, migrate.ErrNotAttempted))
	}
	if cause == nil && ctx.Err() != nil {
		cause = ctx.Err()
		o.abort(cause)
	}

	if cause == nil {
		o.transition(StateFlushing)
	}
	uri, flushErr := o.flush(ctx)

	o.mu.Lock()
	o.summary.ReportURI = uri
	o.summary.Finished = o.now()
	o.mu.Unlock()

	if cause != nil {
		err := fmt.Errorf("%w: %w", ErrAborted, cause)
		if flushErr != nil {
			err = errors.Join(err, flushErr)
		}
		o.finish(ctx, progress.StageRunAborted, err)
		return o.Snapshot(), err
	}

	o.transition(StateDone)
	o.finish(ctx, progress.StageRunDone, flushErr)
	if flushErr != nil {
		return o.Snapshot(), flushErr
	}
	return o.Snapshot(), nil
}

// produce fetches pages on demand. A page's records must all be taken by a
// consumer before the next page is requested.
func (o *Orchestrator) produce(ctx context.Context, dispatch *dispatcher.Dispatcher) error {
	for pageNo := 0; ; pageNo++ {
		page, err := o.comp.Fetcher.Next(ctx)
		if errors.Is(err, migrate.ErrNoMorePages) {
			return nil
		}
		if err != nil {
			return err
		}

		n := len(page.Records)
		o.mu.Lock()
		o.summary.Pages++
		o.summary.Fetched += n
		o.mu.Unlock()
		o.emit(progress.Event{Stage: progress.StagePageFetched, Records: int64(n), Note: page.Cursor})
		o.logger.Debug("page fetched",
			zap.Int("page", pageNo),
			zap.Int("records", n),
			zap.Bool("has_next", page.HasNext),
		)

		ack := make(chan struct{}, n)
		for i, rec := range page.Records {
			if err := dispatch.Enqueue(ctx, migrate.NewQueueItem(pageNo, i, rec, ack)); err != nil {
				for j, left := range page.Records[i:] {
					item := migrate.NewQueueItem(pageNo, i+j, left, nil)
					o.Observe(item, o.comp.Sink.Fail(left, migrate.ErrNotAttempted))
				}
				return err
			}
		}
		for taken := 0; taken < n; taken++ {
			select {
			case <-ack:
			case <-ctx.Done():
				return fmt.Errorf("await page handoff: %w", ctx.Err())
			}
		}
	}
}

// Observe implements worker.Observer.
func (o *Orchestrator) Observe(_ migrate.QueueItem, outcome migrate.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summary.Processed++
	if outcome.Saved {
		o.summary.Succeeded++
	} else {
		o.summary.Failed++
	}
}

func (o *Orchestrator) flush(ctx context.Context) (string, error) {
	if o.comp.Collector == nil {
		return "", nil
	}
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FlushTimeout)
	defer cancel()
	uri, err := o.comp.Collector.Flush(flushCtx)
	if err != nil {
		o.logger.Error("failure report flush failed", zap.Error(err))
		return "", fmt.Errorf("flush failures: %w", err)
	}
	if uri != "" {
		o.logger.Warn("failure report written", zap.String("uri", uri))
	}
	return uri, nil
}

func (o *Orchestrator) abort(cause error) {
	o.mu.Lock()
	o.summary.Error = cause.Error()
	o.mu.Unlock()
	o.transition(StateAborted)
	o.logger.Error("migration aborted", zap.Error(cause))
}

func (o *Orchestrator) finish(ctx context.Context, stage progress.Stage, err error) {
	s := o.Snapshot()
	note := ""
	if err != nil {
		note = err.Error()
	}
	o.emit(progress.Event{Stage: stage, Records: int64(s.Processed), Dur: s.Finished.Sub(s.Started), Note: note})

	fields := []zap.Field{
		zap.String("state", string(s.State)),
		zap.Int("pages", s.Pages),
		zap.Int("processed", s.Processed),
		zap.Int("succeeded", s.Succeeded),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", s.Finished.Sub(s.Started)),
	}
	if s.ReportURI != "" {
		fields = append(fields, zap.String("report", s.ReportURI))
	}
	o.logger.Info("migration finished", fields...)

	if o.comp.Publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FlushTimeout)
	defer cancel()
	if id, perr := o.comp.Publisher.Publish(pubCtx, o.cfg.SummaryTopic, s); perr != nil {
		o.logger.Warn("publish run summary failed", zap.Error(perr))
	} else {
		o.logger.Debug("run summary published", zap.String("message_id", id))
	}
}

func (o *Orchestrator) transition(to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	from := o.summary.State
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		o.logger.Error("illegal state transition", zap.String("from", string(from)), zap.String("to", string(to)))
		return
	}
	o.summary.State = to
	o.logger.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
}

func (o *Orchestrator) emit(evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(o.runID)
	evt.TS = o.now()
	o.comp.Emitter.Emit(evt)
}

func (o *Orchestrator) now() time.Time {
	if o.comp.Clock != nil {
		return o.comp.Clock.Now()
	}
	return time.Now().UTC()
}
