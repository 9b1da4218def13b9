package manager

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/observability"
	"github.com/danmuck/cantelemetry/internal/pipeline"
	"github.com/danmuck/cantelemetry/internal/protocol/can"
	"github.com/danmuck/cantelemetry/internal/sched"
	"github.com/danmuck/cantelemetry/internal/telemetry"
)

// UDPQueueLimit is the per-worker bound used on the lossy datagram path when
// no other limit is configured.
const UDPQueueLimit = 50

type Config struct {
	// Name is the metrics and routing key, e.g. "udp".
	Name string
	// Label prefixes error messages, e.g. "UDP".
	Label   string
	Workers int
	// QueueLimit bounds each worker queue with drop-oldest; zero is unbounded.
	QueueLimit    int
	Debug         bool
	WaitTimeout   time.Duration
	DrainTimeout  time.Duration
	FlushInterval time.Duration
	WorkerHints   sched.Hints
}

// MaxWorkers is the upper clamp for worker counts.
func MaxWorkers() int {
	return 2 * runtime.GOMAXPROCS(0)
}

// DefaultWorkers sizes the pool to available parallelism.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// Status is a point-in-time view of a manager.
type Status struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	Session    string    `json:"session,omitempty"`
	Address    string    `json:"address,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Workers    int       `json:"workers"`
	QueueLimit int       `json:"queue_limit"`
	Debug      bool      `json:"debug"`
	Received   uint64    `json:"received"`
	// Processed counts frames fully handled: samples applied to the
	// snapshot plus log-only frames (0x071, 0x076).
	Processed uint64 `json:"processed"`
	// Dropped counts evicted, rejected and abandoned frames.
	Dropped uint64                 `json:"dropped"`
	Flushes uint64                 `json:"flushes"`
	Pool    []pipeline.WorkerStats `json:"pool,omitempty"`
}

// Manager wires a Receiver to a worker pool, a shared aggregate and a
// fixed-rate coalescer. Control-plane calls (Start, Stop) are serialized
// internally; frame delivery runs concurrently with them.
type Manager[A any] struct {
	cfg      Config
	receiver Receiver[A]
	logger   telemetry.DataLogger
	log      zerolog.Logger

	agg       *telemetry.Aggregate
	coalescer *telemetry.Coalescer
	changes   *pipeline.Hub[telemetry.Batch]
	errs      *pipeline.Hub[ErrorEvent]

	workers atomic.Int64
	debug   atomic.Bool

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64

	pool    atomic.Pointer[pipeline.Pool[[]byte]]
	session atomic.Pointer[string]

	// epoch guards gen. Sinks of a torn-down run carry an old gen and are
	// ignored, so workers abandoned by a timed-out drain cannot write into
	// the aggregate of a later run.
	epoch sync.RWMutex
	gen   uint64

	ctl         sync.Mutex
	initialized bool
	running     bool
	addr        A
	startedAt   time.Time
	stopFlush   context.CancelFunc
	flushDone   chan struct{}
}

// New builds a stopped manager. logger may be nil.
func New[A any](cfg Config, receiver Receiver[A], logger telemetry.DataLogger) *Manager[A] {
	if cfg.Name == "" {
		cfg.Name = "manager"
	}
	if cfg.Label == "" {
		cfg.Label = cfg.Name
	}
	m := &Manager[A]{
		cfg:      cfg,
		receiver: receiver,
		logger:   logger,
		log:      log.With().Str("transport", cfg.Name).Logger(),
		agg:      telemetry.NewAggregate(),
		changes:  pipeline.NewHub[telemetry.Batch](),
		errs:     pipeline.NewHub[ErrorEvent](),
	}
	m.coalescer = telemetry.NewCoalescer(m.agg, cfg.FlushInterval, m.emit)
	workers := cfg.Workers
	if workers < 1 || workers > MaxWorkers() {
		workers = DefaultWorkers()
	}
	m.workers.Store(int64(workers))
	m.debug.Store(cfg.Debug)
	empty := ""
	m.session.Store(&empty)
	return m
}

func (m *Manager[A]) Name() string {
	return m.cfg.Name
}

// Start stops any previous run, then starts a new pool and the receiver at
// addr. It reports whether the manager is running afterwards.
func (m *Manager[A]) Start(addr A) bool {
	m.ctl.Lock()
	defer m.ctl.Unlock()
	m.stopLocked()

	if !m.initialized {
		if err := m.receiver.Initialize(); err != nil {
			m.report(&TransportError{Err: err})
			return false
		}
		m.initialized = true
	}

	session := uuid.NewString()
	m.session.Store(&session)
	debug := m.debug.Load()
	m.epoch.RLock()
	gen := m.gen
	m.epoch.RUnlock()
	parser := telemetry.NewParser(telemetry.ParserConfig{Label: m.cfg.Label, Debug: debug}, sink[A]{m: m, gen: gen, session: session}, m.logger)
	pool := pipeline.NewPool[[]byte](pipeline.PoolConfig{
		Name:         m.cfg.Name,
		Workers:      int(m.workers.Load()),
		QueueLimit:   m.cfg.QueueLimit,
		WaitTimeout:  m.cfg.WaitTimeout,
		DrainTimeout: m.cfg.DrainTimeout,
		Hints:        m.cfg.WorkerHints,
	}, func(worker int, frame []byte) {
		start := time.Now()
		parser.Handle(worker, frame)
		observability.RecordFrameHandled(m.cfg.Name, time.Since(start))
	})
	if err := pool.Start(); err != nil {
		m.report(err)
		return false
	}
	m.pool.Store(pool)

	ctx, cancel := context.WithCancel(context.Background())
	m.stopFlush = cancel
	m.flushDone = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		m.coalescer.Run(ctx)
	}(m.flushDone)

	m.running = true
	if err := m.receiver.StartReceiving(addr, Handler{OnFrame: m.onFrame, OnError: m.onReceiverError}); err != nil {
		m.report(&TransportError{Err: err})
		m.stopLocked()
		return false
	}
	m.addr = addr
	m.startedAt = time.Now()

	m.log.Info().
		Str("session", session).
		Str("address", fmt.Sprint(addr)).
		Int("workers", pool.Size()).
		Int("queue_limit", m.cfg.QueueLimit).
		Bool("debug", debug).
		Msg("manager started")
	return true
}

// Stop halts the receiver, tears the pool down and resets the aggregate.
// Stop on a stopped manager is a no-op and returns true.
func (m *Manager[A]) Stop() bool {
	m.ctl.Lock()
	defer m.ctl.Unlock()
	return m.stopLocked()
}

func (m *Manager[A]) stopLocked() bool {
	if !m.running {
		return true
	}
	ok := true
	if err := m.receiver.StopReceiving(); err != nil {
		m.report(&TransportError{Err: err})
		ok = false
	}
	if pool := m.pool.Swap(nil); pool != nil {
		if err := pool.Stop(); err != nil {
			m.log.Warn().Err(err).Msg("pool did not drain before timeout")
		}
		if n := pool.Abandoned(); n > 0 {
			m.dropped.Add(n)
			observability.RecordFramesDropped(m.cfg.Name, "abandoned", n)
		}
	}
	m.stopFlush()
	<-m.flushDone
	m.stopFlush = nil
	m.flushDone = nil

	m.epoch.Lock()
	m.gen++
	m.agg.Reset()
	m.coalescer.Reset()
	m.epoch.Unlock()
	m.running = false
	var zero A
	m.addr = zero
	m.startedAt = time.Time{}
	m.log.Info().
		Str("session", *m.session.Load()).
		Uint64("processed", m.processed.Load()).
		Uint64("dropped", m.dropped.Load()).
		Msg("manager stopped")
	return ok
}

// SetWorkerCount applies to the next start. Values outside
// [1, MaxWorkers()] are ignored.
func (m *Manager[A]) SetWorkerCount(n int) bool {
	if n < 1 || n > MaxWorkers() {
		m.log.Warn().Int("requested", n).Int("max", MaxWorkers()).Msg("worker count out of range, ignored")
		return false
	}
	m.workers.Store(int64(n))
	return true
}

// SetDebugMode applies to the next start.
func (m *Manager[A]) SetDebugMode(enabled bool) {
	m.debug.Store(enabled)
}

func (m *Manager[A]) Running() bool {
	m.ctl.Lock()
	defer m.ctl.Unlock()
	return m.running
}

func (m *Manager[A]) Snapshot() telemetry.Snapshot {
	return m.agg.Snapshot()
}

func (m *Manager[A]) Processed() uint64 {
	return m.processed.Load()
}

func (m *Manager[A]) Dropped() uint64 {
	return m.dropped.Load()
}

func (m *Manager[A]) Status() Status {
	m.ctl.Lock()
	running, addr, startedAt := m.running, m.addr, m.startedAt
	m.ctl.Unlock()

	st := Status{
		Name:      m.cfg.Name,
		Running:   running,
		Workers:    int(m.workers.Load()),
		QueueLimit: m.cfg.QueueLimit,
		Debug:      m.debug.Load(),
		Received:   m.received.Load(),
		Processed:  m.processed.Load(),
		Dropped:    m.dropped.Load(),
		Flushes:    m.coalescer.Flushes(),
	}
	if running {
		st.Session = *m.session.Load()
		st.Address = fmt.Sprint(addr)
		st.StartedAt = startedAt
	}
	if pool := m.pool.Load(); pool != nil {
		st.Pool = pool.Stats()
	}
	return st
}

// SubscribeChanges returns coalesced snapshot batches, at most one per flush.
func (m *Manager[A]) SubscribeChanges(buffer int) (<-chan telemetry.Batch, func()) {
	return m.changes.Subscribe(buffer)
}

// SubscribeErrors returns every reported error, unmodified and in report
// order. Errors queue behind a slow reader instead of being dropped.
func (m *Manager[A]) SubscribeErrors(buffer int) (<-chan ErrorEvent, func()) {
	return m.errs.SubscribeBacklog(buffer)
}

// Flush forces a coalescer tick.
func (m *Manager[A]) Flush() bool {
	return m.coalescer.Flush()
}

func (m *Manager[A]) onFrame(frame []byte) {
	n := m.received.Add(1)
	observability.RecordFrameReceived(m.cfg.Name)
	pool := m.pool.Load()
	if pool == nil {
		m.drop("not_running")
		return
	}
	evicted, ok := pool.Dispatch(frame)
	if !ok {
		m.drop("not_running")
		return
	}
	if evicted {
		m.drop("evicted")
	}
	if m.debug.Load() && n%1000 == 0 {
		m.log.Debug().
			Uint64("received", n).
			Uint64("processed", m.processed.Load()).
			Uint64("dropped", m.dropped.Load()).
			Msg("frame counters")
	}
}

func (m *Manager[A]) onReceiverError(err error) {
	if err == nil {
		return
	}
	var te *TransportError
	if !errors.As(err, &te) {
		err = &TransportError{Err: err}
	}
	m.report(err)
}

func (m *Manager[A]) drop(reason string) {
	m.dropped.Add(1)
	observability.RecordFrameDropped(m.cfg.Name, reason)
}

func (m *Manager[A]) apply(gen uint64, sample can.Sample) {
	m.epoch.RLock()
	defer m.epoch.RUnlock()
	if gen != m.gen {
		m.log.Debug().Stringer("can_id", sample.Identifier()).Msg("stale sample discarded")
		return
	}
	if !m.agg.Apply(sample) {
		return
	}
	m.processed.Add(1)
	m.coalescer.Mark()
	observability.RecordFrameProcessed(m.cfg.Name, sample.Identifier().String())
}

// logged counts a log-only frame as processed.
func (m *Manager[A]) logged(gen uint64, id can.Identifier) {
	m.epoch.RLock()
	defer m.epoch.RUnlock()
	if gen != m.gen {
		return
	}
	m.processed.Add(1)
	observability.RecordFrameProcessed(m.cfg.Name, id.String())
}

func (m *Manager[A]) report(err error) {
	m.reportSession(*m.session.Load(), err)
}

func (m *Manager[A]) reportSession(session string, err error) {
	kind := Classify(err)
	switch kind {
	case KindFrameSize, KindUnknownID, KindDecodeFault:
		m.drop(kind)
	}
	observability.RecordPipelineError(m.cfg.Name, kind)
	m.log.Debug().Err(err).Str("kind", kind).Str("session", session).Msg("error reported")
	if missed := m.errs.Publish(ErrorEvent{
		At:        time.Now(),
		Transport: m.cfg.Name,
		Session:   session,
		Kind:      kind,
		Message:   err.Error(),
		Err:       err,
	}); missed > 0 {
		m.log.Warn().Err(err).Int("missed", missed).Msg("error event not delivered")
	}
}

func (m *Manager[A]) emit(b telemetry.Batch) {
	observability.RecordCoalescerFlush(m.cfg.Name)
	m.changes.Publish(b)
}

// sink binds one run of a Manager to telemetry.Sink. Errors from a stale
// run are still reported, tagged with the session that raised them.
type sink[A any] struct {
	m       *Manager[A]
	gen     uint64
	session string
}

func (s sink[A]) Apply(sample can.Sample)  { s.m.apply(s.gen, sample) }
func (s sink[A]) Logged(id can.Identifier) { s.m.logged(s.gen, id) }
func (s sink[A]) Report(err error)         { s.m.reportSession(s.session, err) }
