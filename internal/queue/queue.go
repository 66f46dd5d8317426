// Package queue provides the in-memory work queue feeding crawl workers.
package queue

import "sync"

// FIFO is a mutex-guarded first-in-first-out queue. Sync stages load it up
// front and workers drain it concurrently; an empty queue means the stage is
// out of work, so dequeue never blocks.
type FIFO[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewFIFO builds a queue pre-loaded with items, preserving order.
func NewFIFO[T any](items ...T) *FIFO[T] {
	q := &FIFO[T]{}
	q.items = append(q.items, items...)
	return q
}

// Enqueue appends one item.
func (q *FIFO[T]) Enqueue(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// TryDequeue pops the oldest item. The check and the pop share one critical
// section, so concurrent callers never race on the same item. The second
// return is false when the queue is empty.
func (q *FIFO[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Size reports how many items remain. The value is advisory under
// concurrency; progress reporting is its only consumer.
func (q *FIFO[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
