package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/sched"
)

const (
	DefaultWaitTimeout  = 100 * time.Millisecond
	DefaultDrainTimeout = 3 * time.Second
)

var (
	ErrPoolRunning     = errors.New("pipeline: pool already running")
	ErrShutdownTimeout = errors.New("pipeline: shutdown timeout")
)

// Handler processes one dispatched item on the given worker.
type Handler[T any] func(worker int, item T)

type PoolConfig struct {
	Name    string
	Workers int
	// QueueLimit bounds each worker queue with drop-oldest; zero is unbounded.
	QueueLimit   int
	WaitTimeout  time.Duration
	DrainTimeout time.Duration
	Hints        sched.Hints
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}

// WorkerStats is a point-in-time view of one worker.
type WorkerStats struct {
	Worker  int    `json:"worker"`
	Handled uint64 `json:"handled"`
	Evicted uint64 `json:"evicted"`
	Pending int    `json:"pending"`
}

type worker[T any] struct {
	id      int
	queue   *Queue[T]
	handled atomic.Uint64
}

// generation is one Start..Stop lifetime. Workers that outlive a timed-out
// Stop keep observing their own stopping flag.
type generation[T any] struct {
	workers  []*worker[T]
	wg       sync.WaitGroup
	stopping atomic.Bool
}

// Pool owns a fixed set of workers, each consuming its own Queue, and
// distributes items across them in strict round-robin order.
type Pool[T any] struct {
	cfg     PoolConfig
	handler Handler[T]

	mu   sync.Mutex
	gen  *generation[T]
	next int

	abandoned atomic.Uint64
}

func NewPool[T any](cfg PoolConfig, handler Handler[T]) *Pool[T] {
	return &Pool[T]{
		cfg:     cfg.withDefaults(),
		handler: handler,
	}
}

// Start spins up the configured number of workers.
func (p *Pool[T]) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != nil {
		return ErrPoolRunning
	}
	gen := &generation[T]{workers: make([]*worker[T], p.cfg.Workers)}
	for i := range gen.workers {
		gen.workers[i] = &worker[T]{id: i, queue: NewQueue[T](p.cfg.QueueLimit)}
	}
	gen.wg.Add(len(gen.workers))
	for _, w := range gen.workers {
		go p.run(gen, w)
	}
	p.gen = gen
	p.next = 0
	log.Debug().
		Str("pool", p.cfg.Name).
		Int("workers", p.cfg.Workers).
		Int("queue_limit", p.cfg.QueueLimit).
		Msg("pool started")
	return nil
}

// Dispatch hands item to the next worker in round-robin order. ok is false
// when the pool is not running; evicted reports a drop-oldest discard.
func (p *Pool[T]) Dispatch(item T) (evicted bool, ok bool) {
	p.mu.Lock()
	if p.gen == nil {
		p.mu.Unlock()
		return false, false
	}
	w := p.gen.workers[p.next]
	p.next = (p.next + 1) % len(p.gen.workers)
	p.mu.Unlock()

	evicted, err := w.queue.Push(item)
	if err != nil {
		return false, false
	}
	return evicted, true
}

// Stop signals every worker, waits up to DrainTimeout for them to exit and
// tears the pool down regardless. Buffered items are discarded and counted
// in Abandoned. Stop on an idle pool is a no-op.
func (p *Pool[T]) Stop() error {
	p.mu.Lock()
	gen := p.gen
	p.gen = nil
	p.next = 0
	p.mu.Unlock()
	if gen == nil {
		return nil
	}

	gen.stopping.Store(true)
	for _, w := range gen.workers {
		w.queue.Close()
	}

	done := make(chan struct{})
	go func() {
		gen.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(p.cfg.DrainTimeout)
	defer timer.Stop()
	var err error
	select {
	case <-done:
	case <-timer.C:
		err = fmt.Errorf("%w: pool=%s after %s", ErrShutdownTimeout, p.cfg.Name, p.cfg.DrainTimeout)
	}
	for _, w := range gen.workers {
		p.abandoned.Add(uint64(len(w.queue.Drain())))
	}
	return err
}

// Abandoned returns the number of items discarded unhandled by Stop.
func (p *Pool[T]) Abandoned() uint64 {
	return p.abandoned.Load()
}

func (p *Pool[T]) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen != nil
}

// Size returns the number of live workers.
func (p *Pool[T]) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == nil {
		return 0
	}
	return len(p.gen.workers)
}

func (p *Pool[T]) Stats() []WorkerStats {
	p.mu.Lock()
	var workers []*worker[T]
	if p.gen != nil {
		workers = p.gen.workers
	}
	p.mu.Unlock()
	out := make([]WorkerStats, 0, len(workers))
	for _, w := range workers {
		out = append(out, WorkerStats{
			Worker:  w.id,
			Handled: w.handled.Load(),
			Evicted: w.queue.Evicted(),
			Pending: w.queue.Len(),
		})
	}
	return out
}

func (p *Pool[T]) run(gen *generation[T], w *worker[T]) {
	defer gen.wg.Done()
	release, err := p.cfg.Hints.Apply()
	if err != nil {
		log.Warn().Err(err).Str("pool", p.cfg.Name).Int("worker", w.id).Msg("scheduler hints not applied")
	}
	defer release()

	for !gen.stopping.Load() {
		item, ok := w.queue.Wait(p.cfg.WaitTimeout)
		if !ok {
			if w.queue.Closed() {
				return
			}
			continue
		}
		if gen.stopping.Load() {
			return
		}
		p.handle(w, item)
	}
}

func (p *Pool[T]) handle(w *worker[T], item T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("pool", p.cfg.Name).
				Int("worker", w.id).
				Interface("panic", r).
				Msg("worker handler panicked")
		}
	}()
	p.handler(w.id, item)
	w.handled.Add(1)
}
