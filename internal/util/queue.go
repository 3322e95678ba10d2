package util

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrQueueClosed = errors.New("queue closed")
	ErrQueueEmpty  = errors.New("queue empty")
)

// Queue is a bounded FIFO queue safe for concurrent use. Pop blocks until an
// item arrives, the context is cancelled or the queue is closed.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
	max    int
	closed bool
}

// NewQueue creates a queue holding at most max items; zero means unbounded.
func NewQueue[T any](max int) *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		max:    max,
	}
}

// Push appends an item. When the queue is full the oldest item is dropped so
// the newest data always gets through.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if q.max > 0 && len(q.items) >= q.max {
		q.items = q.items[1:]
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// TryPop removes and returns the head without blocking.
func (q *Queue[T]) TryPop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.closed {
		return zero, ErrQueueClosed
	}
	if len(q.items) == 0 {
		return zero, ErrQueueEmpty
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

// Pop removes and returns the head, blocking until one is available.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		item, err := q.TryPop()
		if err == nil || errors.Is(err, ErrQueueClosed) {
			return item, err
		}

		select {
		case <-q.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Clear drops all pending items.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Len reports the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed; pending and future Pops fail with ErrQueueClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}
