package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push after CloseWrite
var ErrQueueClosed = errors.New("queue closed for writing")

// Queue is a thread-safe growable FIFO. Push never blocks; Pop blocks until
// an item is available, the queue is closed and drained, or ctx is done.
// Memory is bounded only by what producers push before the consumer catches
// up.
type Queue[T any] struct {
	notify chan struct{}

	mu     sync.Mutex
	items  []T
	head   int
	closed bool
}

// NewQueue creates a queue with room for n items before it grows
func NewQueue[T any](n int) *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		items:  make([]T, 0, n),
	}
}

// Push appends an item to the tail of the queue
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.wake()
	return nil
}

// Pop removes the head of the queue. It returns ok=false once the queue is
// closed and empty, or with ctx's error if ctx ends first.
func (q *Queue[T]) Pop(ctx context.Context) (item T, ok bool, err error) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			item = q.items[q.head]
			var zero T
			q.items[q.head] = zero
			q.head++
			// Reclaim the consumed prefix once it dominates the slice
			if q.head > 64 && q.head*2 >= len(q.items) {
				n := copy(q.items, q.items[q.head:])
				q.items = q.items[:n]
				q.head = 0
			}
			q.mu.Unlock()
			return item, true, nil
		}
		if q.closed {
			q.mu.Unlock()
			return item, false, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return item, false, ctx.Err()
		}
	}
}

// CloseWrite stops further pushes. Items already queued can still be popped.
func (q *Queue[T]) CloseWrite() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of items waiting
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// IsClosed reports whether CloseWrite has been called
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
