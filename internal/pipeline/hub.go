package pipeline

import (
	"sync"
	"time"
)

const DefaultSubscriberBuffer = 64

// backlogWait bounds how long a backlog forwarder sleeps between checks.
const backlogWait = time.Second

// Hub fans published events out to subscribers without blocking the
// publisher. A Subscribe channel whose buffer is full misses the event;
// a SubscribeBacklog subscriber never does.
type Hub[E any] struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]chan E
	backlog map[uint64]*Queue[E]
}

func NewHub[E any]() *Hub[E] {
	return &Hub[E]{
		subs:    make(map[uint64]chan E),
		backlog: make(map[uint64]*Queue[E]),
	}
}

// Subscribe registers a buffered channel. cancel unregisters and closes it;
// it is safe to call more than once.
func (h *Hub[E]) Subscribe(buffer int) (<-chan E, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan E, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; !ok {
			return
		}
		delete(h.subs, id)
		close(ch)
	}
}

// SubscribeBacklog registers a subscriber backed by an unbounded queue. A
// forwarder moves queued events onto the returned channel in publish order,
// so a slow reader delays events but never misses one. cancel unregisters,
// discards the backlog and closes the channel.
func (h *Hub[E]) SubscribeBacklog(buffer int) (<-chan E, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	q := NewQueue[E](0)
	out := make(chan E, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.backlog[id] = q
	h.mu.Unlock()

	go forward(q, out)

	return out, func() {
		h.mu.Lock()
		delete(h.backlog, id)
		h.mu.Unlock()
		q.Close()
	}
}

func forward[E any](q *Queue[E], out chan<- E) {
	defer close(out)
	for {
		e, ok := q.Wait(backlogWait)
		if q.Closed() {
			q.Drain()
			return
		}
		if !ok {
			continue
		}
		select {
		case out <- e:
		case <-q.Done():
			q.Drain()
			return
		}
	}
}

// Publish delivers e to every subscriber with room and returns how many
// subscribers missed it.
func (h *Hub[E]) Publish(e E) int {
	missed := 0
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			missed++
		}
	}
	for _, q := range h.backlog {
		if _, err := q.Push(e); err != nil {
			missed++
		}
	}
	return missed
}

func (h *Hub[E]) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs) + len(h.backlog)
}

// Close unregisters and closes every subscriber channel.
func (h *Hub[E]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	for id, q := range h.backlog {
		q.Close()
		delete(h.backlog, id)
	}
}
