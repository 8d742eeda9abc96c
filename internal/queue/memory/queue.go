// Package memory provides the bounded handoff queue between the page producer
// and the record writers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/readlater-migrate/internal/metrics"
	"github.com/JakeFAU/readlater-migrate/internal/migrate"
)

// ErrClosed is returned by Dequeue once the queue is closed and empty, and by
// Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations. The
// producer owns Close and must not call it concurrently with Enqueue.
type Queue struct {
	ch      chan migrate.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity. A capacity
// below one is raised to one so that every handoff is observable.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan migrate.QueueItem, capacity),
	}
}

// Enqueue pushes an item, blocking while the queue is full.
func (q *Queue) Enqueue(ctx context.Context, item migrate.QueueItem) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		metrics.SetQueueDepth(len(q.ch))
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (migrate.QueueItem, error) {
	select {
	case <-ctx.Done():
		return migrate.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return migrate.QueueItem{}, ErrClosed
		}
		metrics.SetQueueDepth(len(q.ch))
		return item, nil
	}
}

// Drain removes and returns whatever is still buffered without blocking.
func (q *Queue) Drain() []migrate.QueueItem {
	var out []migrate.QueueItem
	for {
		select {
		case item, ok := <-q.ch:
			if !ok {
				return out
			}
			out = append(out, item)
		default:
			return out
		}
	}
}

// Len reports the number of buffered items.
func (q *Queue) Len() int { return len(q.ch) }

// Cap reports the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Close closes the underlying channel. Buffered items stay readable.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
