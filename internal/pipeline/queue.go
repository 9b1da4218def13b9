package pipeline

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrQueueClosed = errors.New("pipeline: queue closed")

// Queue is a FIFO shared by producers and a single consumer. With a positive
// limit the queue is bounded and a push onto a full queue discards the oldest
// buffered item. A limit of zero or less makes it unbounded.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	limit  int
	closed bool

	ready   chan struct{}
	done    chan struct{}
	evicted atomic.Uint64
}

func NewQueue[T any](limit int) *Queue[T] {
	if limit < 0 {
		limit = 0
	}
	return &Queue[T]{
		limit: limit,
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends item and wakes the consumer. evicted is true when the oldest
// item was discarded to make room.
func (q *Queue[T]) Push(item T) (evicted bool, err error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false, ErrQueueClosed
	}
	if q.limit > 0 && len(q.items) >= q.limit {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		evicted = true
		q.evicted.Add(1)
	}
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted, nil
}

// TryPop removes the head item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		// release the backing array once drained
		q.items = nil
	}
	return item, true
}

// Wait blocks until an item is available, the queue is closed and empty, or
// timeout elapses. Buffered items are still returned after Close.
func (q *Queue[T]) Wait(timeout time.Duration) (T, bool) {
	if item, ok := q.TryPop(); ok {
		return item, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.ready:
		case <-q.done:
			return q.TryPop()
		case <-timer.C:
			return q.TryPop()
		}
		if item, ok := q.TryPop(); ok {
			return item, true
		}
	}
}

// Close rejects further pushes and wakes a blocked consumer. Idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Done is closed when the queue is closed.
func (q *Queue[T]) Done() <-chan struct{} {
	return q.done
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Limit() int {
	return q.limit
}

// Evicted returns the number of items discarded by the drop-oldest policy.
func (q *Queue[T]) Evicted() uint64 {
	return q.evicted.Load()
}

// Drain removes and returns every buffered item.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
