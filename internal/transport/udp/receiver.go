// Package udp receives and sends CAN frames as single UDP datagrams.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/sched"
)

const defaultReadBuffer = 2048

var ErrAlreadyReceiving = errors.New("udp: already receiving")

type Option func(*Receiver)

// WithReadBuffer sets the per-datagram read buffer size.
func WithReadBuffer(n int) Option {
	return func(r *Receiver) {
		if n > 0 {
			r.readBuffer = n
		}
	}
}

// WithSocketBuffer sets the kernel receive buffer (SO_RCVBUF).
func WithSocketBuffer(n int) Option {
	return func(r *Receiver) {
		if n > 0 {
			r.socketBuffer = n
		}
	}
}

func WithHints(h sched.Hints) Option {
	return func(r *Receiver) {
		r.hints = h
	}
}

// Receiver listens on a UDP address and delivers every datagram as one frame.
// Size validation is left to the parser.
type Receiver struct {
	readBuffer   int
	socketBuffer int
	hints        sched.Hints

	mu   sync.Mutex
	conn net.PacketConn
	done chan struct{}
}

var _ manager.Receiver[string] = (*Receiver)(nil)

func NewReceiver(opts ...Option) *Receiver {
	r := &Receiver{readBuffer: defaultReadBuffer}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Receiver) Initialize() error {
	return nil
}

// StartReceiving binds addr ("host:port" or ":port") and starts the read loop.
func (r *Receiver) StartReceiving(addr string, h manager.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return ErrAlreadyReceiving
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("udp: listen %s: %w", addr, err)
	}
	if r.socketBuffer > 0 {
		if uc, ok := conn.(*net.UDPConn); ok {
			if err := uc.SetReadBuffer(r.socketBuffer); err != nil {
				log.Warn().Err(err).Int("bytes", r.socketBuffer).Msg("udp socket buffer not applied")
			}
		}
	}
	r.conn = conn
	r.done = make(chan struct{})
	go r.run(conn, r.done, h)
	log.Info().Str("transport", "udp").Str("addr", conn.LocalAddr().String()).Msg("receiving")
	return nil
}

// StopReceiving closes the socket and waits for the read loop to exit.
func (r *Receiver) StopReceiving() error {
	r.mu.Lock()
	conn, done := r.conn, r.done
	r.conn, r.done = nil, nil
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("udp: close: %w", err)
	}
	return nil
}

// LocalAddr returns the bound address, or nil when not receiving.
func (r *Receiver) LocalAddr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

func (r *Receiver) run(conn net.PacketConn, done chan struct{}, h manager.Handler) {
	defer close(done)
	release, err := r.hints.Apply()
	if err != nil {
		log.Warn().Err(err).Str("transport", "udp").Msg("scheduler hints not applied")
	}
	defer release()

	buf := make([]byte, r.readBuffer)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if h.OnError != nil {
				h.OnError(fmt.Errorf("udp: read: %w", err))
			}
			continue
		}
		if h.OnFrame != nil {
			h.OnFrame(append([]byte(nil), buf[:n]...))
		}
	}
}
