// Package serial receives CAN frames from a serial line carrying back-to-back
// 20-byte frames.
package serial

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	goserial "go.bug.st/serial"

	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/sched"
	"github.com/danmuck/cantelemetry/internal/transport/backoff"
)

const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100 * time.Millisecond
	readChunk          = 256
)

var ErrAlreadyReceiving = errors.New("serial: already receiving")

// Address selects a port and line speed.
type Address struct {
	Port string
	Baud int
}

func (a Address) String() string {
	return fmt.Sprintf("%s@%d", a.Port, a.Baud)
}

// Port is the subset of a serial handle the receiver uses. Read returns
// (0, nil) when the read timeout expires.
type Port interface {
	Read(p []byte) (int, error)
	Close() error
}

// Opener opens a port with the given read timeout.
type Opener func(addr Address, readTimeout time.Duration) (Port, error)

// OpenPort opens a real serial device in 8N1 mode.
func OpenPort(addr Address, readTimeout time.Duration) (Port, error) {
	baud := addr.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := goserial.Open(addr.Port, &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", addr, err)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial: set read timeout on %s: %w", addr.Port, err)
	}
	return p, nil
}

// Ports lists serial devices present on the host.
func Ports() ([]string, error) {
	return goserial.GetPortsList()
}

type Option func(*Receiver)

func WithOpener(open Opener) Option {
	return func(r *Receiver) {
		if open != nil {
			r.open = open
		}
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.readTimeout = d
		}
	}
}

func WithBackoff(cfg backoff.Config) Option {
	return func(r *Receiver) {
		r.backoff = cfg
	}
}

func WithHints(h sched.Hints) Option {
	return func(r *Receiver) {
		r.hints = h
	}
}

// Receiver reads a serial port, reframes the byte stream and reopens the
// port with backoff after a read failure.
type Receiver struct {
	open        Opener
	readTimeout time.Duration
	backoff     backoff.Config
	hints       sched.Hints

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ manager.Receiver[Address] = (*Receiver)(nil)

func NewReceiver(opts ...Option) *Receiver {
	r := &Receiver{
		open:        OpenPort,
		readTimeout: DefaultReadTimeout,
		backoff:     backoff.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Receiver) Initialize() error {
	return nil
}

// StartReceiving opens the port once synchronously so a bad address fails
// fast, then reads on its own goroutine.
func (r *Receiver) StartReceiving(addr Address, h manager.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyReceiving
	}
	port, err := r.open(addr, r.readTimeout)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done, addr, port, h)
	log.Info().Str("transport", "serial").Str("port", addr.Port).Int("baud", addr.Baud).Msg("receiving")
	return nil
}

// StopReceiving stops the read loop within one read timeout.
func (r *Receiver) StopReceiving() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (r *Receiver) run(ctx context.Context, done chan struct{}, addr Address, port Port, h manager.Handler) {
	defer close(done)
	release, err := r.hints.Apply()
	if err != nil {
		log.Warn().Err(err).Str("transport", "serial").Msg("scheduler hints not applied")
	}
	defer release()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		err := r.readLoop(ctx, port, h)
		port.Close()
		if ctx.Err() != nil {
			return
		}
		report(h, err)

		for {
			attempt++
			if backoff.Sleep(ctx, backoff.Next(r.backoff, attempt, rng)) != nil {
				return
			}
			port, err = r.open(addr, r.readTimeout)
			if err == nil {
				break
			}
			report(h, err)
		}
		attempt = 0
		log.Info().Str("transport", "serial").Str("port", addr.Port).Msg("port reopened")
	}
}

func (r *Receiver) readLoop(ctx context.Context, port Port, h manager.Handler) error {
	var framer Framer
	buf := make([]byte, readChunk)
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if n > 0 && h.OnFrame != nil {
			framer.Feed(buf[:n], h.OnFrame)
		}
		if err != nil {
			if partial := framer.Buffered(); partial > 0 {
				log.Warn().Str("transport", "serial").Int("bytes", partial).Msg("partial frame discarded on read failure")
				framer.Reset()
			}
			return fmt.Errorf("serial: read: %w", err)
		}
	}
	return nil
}

func report(h manager.Handler, err error) {
	if err != nil && h.OnError != nil {
		h.OnError(err)
	}
}
