// Package dispatcher fans the handoff queue out to a bounded pool of workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/readlater-migrate/internal/migrate"
	"github.com/JakeFAU/readlater-migrate/internal/worker"
)

// Queue is the handoff queue shared by the producer and the workers.
type Queue interface {
	worker.Dequeuer
	Enqueue(ctx context.Context, item migrate.QueueItem) error
	Close()
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every one of them has returned,
// which happens once the queue is closed and empty or ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item migrate.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Close stops intake; workers drain what is buffered and then exit.
func (d *Dispatcher) Close() {
	d.queue.Close()
}
