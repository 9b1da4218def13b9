package datalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/observability"
	"github.com/danmuck/cantelemetry/internal/pipeline"
)

var (
	ErrNotInitialized  = errors.New("datalog: logger not initialized")
	ErrUnknownChannel  = errors.New("datalog: unknown channel")
	ErrShutdownTimeout = errors.New("datalog: shutdown timeout")
)

const (
	defaultWaitTimeout     = 100 * time.Millisecond
	defaultShutdownTimeout = 3 * time.Second
)

type Options struct {
	Now             func() time.Time
	ShutdownTimeout time.Duration
}

// Logger is the process-wide CSV writer. Producers enqueue from any goroutine;
// one writer goroutine writes rows in arrival order and flushes each one.
type Logger struct {
	opts Options

	mu     sync.Mutex
	dir    string
	queue  *pipeline.Queue[Event]
	done   chan struct{}
	active bool
}

func New(opts Options) *Logger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Logger{opts: opts}
}

// Init creates dir, opens both files and starts the writer. Calling Init on
// a running logger is a no-op.
func (l *Logger) Init(dir string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("datalog: create %s: %w", dir, err)
	}

	w := newWriter(dir)
	for ch := range channelSpecs {
		if err := w.open(ch); err != nil {
			// retried lazily on first write
			log.Warn().Err(err).Str("channel", string(ch)).Msg("data log destination not opened")
		}
	}

	l.dir = dir
	l.queue = pipeline.NewQueue[Event](0)
	l.done = make(chan struct{})
	l.active = true
	go l.run(l.queue, l.done, w)

	log.Info().Str("dir", dir).Msg("data logger initialized")
	return nil
}

// Shutdown drains pending events, flushes and closes both files. Calling
// Shutdown on a stopped logger is a no-op.
func (l *Logger) Shutdown() error {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return nil
	}
	queue, done, dir := l.queue, l.done, l.dir
	l.active = false
	l.queue = nil
	l.mu.Unlock()

	queue.Close()
	timer := time.NewTimer(l.opts.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
		log.Info().Str("dir", dir).Msg("data logger shutdown complete")
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, l.opts.ShutdownTimeout)
	}
}

func (l *Logger) Initialized() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Logger) Dir() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dir
}

func (l *Logger) LogIMU(x, y, z int16) error {
	return l.Enqueue(imuEvent(l.opts.Now(), x, y, z))
}

func (l *Logger) LogSuspension(sus [4]uint16) error {
	return l.Enqueue(suspensionEvent(l.opts.Now(), sus))
}

// Enqueue hands ev to the writer goroutine.
func (l *Logger) Enqueue(ev Event) error {
	if _, ok := channelSpecs[ev.Channel]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ev.Channel)
	}
	l.mu.Lock()
	queue := l.queue
	l.mu.Unlock()
	if queue == nil {
		return ErrNotInitialized
	}
	if _, err := queue.Push(ev); err != nil {
		return ErrNotInitialized
	}
	return nil
}

func (l *Logger) run(queue *pipeline.Queue[Event], done chan struct{}, w *writer) {
	defer close(done)
	defer w.close()
	for {
		ev, ok := queue.Wait(defaultWaitTimeout)
		if !ok {
			if queue.Closed() {
				return
			}
			continue
		}
		if err := w.write(ev); err != nil {
			observability.RecordDatalogError(string(ev.Channel))
			log.Error().Err(err).Str("channel", string(ev.Channel)).Msg("data log write failed")
			continue
		}
		observability.RecordDatalogRow(string(ev.Channel))
	}
}

type destination struct {
	file *os.File
	csv  *csv.Writer
}

// writer is owned by the writer goroutine after Init returns.
type writer struct {
	dir   string
	dests map[Channel]*destination
}

func newWriter(dir string) *writer {
	return &writer{dir: dir, dests: make(map[Channel]*destination)}
}

func (w *writer) open(ch Channel) error {
	if _, ok := w.dests[ch]; ok {
		return nil
	}
	spec, ok := channelSpecs[ch]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	path := filepath.Join(w.dir, spec.file)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("datalog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("datalog: stat %s: %w", path, err)
	}
	d := &destination{file: f, csv: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := d.writeRow(spec.header); err != nil {
			f.Close()
			return fmt.Errorf("datalog: header %s: %w", path, err)
		}
	}
	w.dests[ch] = d
	return nil
}

func (w *writer) write(ev Event) error {
	if err := w.open(ev.Channel); err != nil {
		return err
	}
	return w.dests[ev.Channel].writeRow(ev.record())
}

func (w *writer) close() {
	for ch, d := range w.dests {
		d.csv.Flush()
		if err := d.file.Close(); err != nil {
			log.Warn().Err(err).Str("channel", string(ch)).Msg("data log close failed")
		}
		delete(w.dests, ch)
	}
}

func (d *destination) writeRow(row []string) error {
	if err := d.csv.Write(row); err != nil {
		return err
	}
	d.csv.Flush()
	return d.csv.Error()
}
