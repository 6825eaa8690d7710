// Package queue provides an unbounded, thread-safe FIFO used as the channel
// between concurrent components (dataflow commands, worker feedback).
package queue

import (
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close has been called.
var ErrClosed = errors.New("queue closed")

// Unbounded is a thread-safe FIFO queue that never blocks producers.
//
// The queue is unbounded so that a producer (the dataflow worker, the
// coordinator) can always hand off a message without waiting on the
// consumer. Consumers either poll with TryPop/TryPopAll or select on Wait()
// for context-aware waiting.
//
// Thread-safety: all methods may be called from any goroutine.
type Unbounded[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

// New creates an empty queue.
func New[T any]() *Unbounded[T] {
	return &Unbounded[T]{
		items:  make([]T, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Push adds an item to the back of the queue.
// Returns ErrClosed if the queue has been closed.
func (q *Unbounded[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.items = append(q.items, item)

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return nil
}

// TryPop removes and returns the front item without blocking.
// Returns false if the queue is empty.
func (q *Unbounded[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	item := q.items[0]
	// Nil out the slot so the backing array does not retain the item.
	q.items[0] = zero

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return item, true
}

// TryPopAll removes and returns every queued item in arrival order.
// Returns nil if the queue is empty. Never blocks.
func (q *Unbounded[T]) TryPopAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	out := make([]T, len(q.items))
	copy(out, q.items)
	clear(q.items)
	q.items = q.items[:0]
	return out
}

// Wait returns a channel that signals when items may be available.
// The channel is closed once the queue is closed.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    items := q.TryPopAll()
//	}
func (q *Unbounded[T]) Wait() <-chan struct{} {
	return q.signal
}

// Closed reports whether Close has been called.
func (q *Unbounded[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more items will be pushed. Items already queued can
// still be popped. Wakes any waiters by closing the signal channel.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
