// Package buffer holds the in-memory queue that sits in front of the on-disk session files.
package buffer

import "sync"

// Queue is a mutex-guarded FIFO safe for many writers and one drainer.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewQueue returns an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

func (q *Queue[T]) Enqueue(item T) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item)
	return len(q.items)
}

func (q *Queue[T]) EnqueueAll(items []T) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, items...)
	return len(q.items)
}

// PushFront puts items back at the head, keeping their relative order.
// Used when a drained batch could not be persisted.
func (q *Queue[T]) PushFront(items []T) int {
	if len(items) == 0 {
		return q.Count()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	merged = append(merged, q.items...)
	q.items = merged
	return len(q.items)
}

// DequeueAll atomically removes and returns everything currently queued.
func (q *Queue[T]) DequeueAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// Dequeue removes and returns up to max items from the head.
func (q *Queue[T]) Dequeue(max int) []T {
	if max <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if max > len(q.items) {
		max = len(q.items)
	}

	items := make([]T, max)
	copy(items, q.items[:max])

	rest := make([]T, len(q.items)-max)
	copy(rest, q.items[max:])
	q.items = rest

	return items
}

func (q *Queue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

func (q *Queue[T]) IsEmpty() bool {
	return q.Count() == 0
}
