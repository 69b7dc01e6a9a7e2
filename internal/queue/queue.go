// Package queue provides the bounded FIFO that sits between the accept loops
// and the worker pool.
package queue

import (
	"errors"
	"sync"
)

var (
	ErrFull            = errors.New("queue is full")
	ErrClosed          = errors.New("queue is closed")
	ErrInvalidCapacity = errors.New("queue capacity must be greater than 0")
)

// Queue is a fixed-capacity ring buffer guarded by a single mutex.
// Pop waits on a condition variable that is signalled by TryPush and
// broadcast by Close.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []T
	head     int
	count    int
	closed   bool
}

func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	q := &Queue[T]{
		items: make([]T, capacity),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// TryPush appends v without blocking. It returns ErrFull when the queue
// holds Cap() items and ErrClosed after Close.
func (q *Queue[T]) TryPush(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.count == len(q.items) {
		return ErrFull
	}

	tail := (q.head + q.count) % len(q.items)
	q.items[tail] = v
	q.count++
	q.notEmpty.Signal()
	return nil
}

// Pop blocks until an item is available. Items pushed before Close are
// still delivered; once the queue is closed and empty Pop returns false.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// Drain removes every buffered item and returns them in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, q.count)
	for q.count > 0 {
		out = append(out, q.take())
	}
	return out
}

// Close is idempotent. It wakes every goroutine blocked in Pop.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

func (q *Queue[T]) Cap() int {
	return len(q.items)
}

// take must be called with q.mu held and q.count > 0.
func (q *Queue[T]) take() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	return v
}
