package serial

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/protocol/can"
	"github.com/danmuck/cantelemetry/internal/testutil/testlog"
	"github.com/danmuck/cantelemetry/internal/transport/backoff"
)

type scriptedPort struct {
	mu     sync.Mutex
	chunks [][]byte
	err    error
	closed bool
}

func (p *scriptedPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if len(p.chunks) > 0 {
		n := copy(b, p.chunks[0])
		p.chunks = p.chunks[1:]
		p.mu.Unlock()
		return n, nil
	}
	err := p.err
	p.err = nil
	p.mu.Unlock()
	if err != nil {
		return 0, err
	}
	time.Sleep(5 * time.Millisecond)
	return 0, nil
}

func (p *scriptedPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func TestFramerSplitsStream(t *testing.T) {
	a := can.Encode(can.IMUAngle{X: 1}, 1)
	b := can.Encode(can.GPS{Latitude: 2}, 2)
	stream := append(append([]byte(nil), a...), b...)

	var got [][]byte
	var f Framer
	f.Feed(stream[:7], func(fr []byte) { got = append(got, fr) })
	f.Feed(stream[7:33], func(fr []byte) { got = append(got, fr) })
	if len(got) != 1 || f.Buffered() != 13 {
		t.Fatalf("unexpected partial state: frames=%d buffered=%d", len(got), f.Buffered())
	}
	f.Feed(stream[33:], func(fr []byte) { got = append(got, fr) })
	if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Fatalf("unexpected frames: %x", got)
	}
	f.Feed([]byte{1, 2, 3}, func([]byte) {})
	f.Reset()
	if f.Buffered() != 0 {
		t.Fatalf("reset kept %d bytes", f.Buffered())
	}
}

func TestReceiverReframesAndReopens(t *testing.T) {
	testlog.Start(t)
	frame := can.Encode(can.ADC{AccelPedal: 9}, 0)
	first := &scriptedPort{
		chunks: [][]byte{frame[:5], frame[5:]},
		err:    errors.New("device unplugged"),
	}
	second := &scriptedPort{chunks: [][]byte{frame}}

	var mu sync.Mutex
	opens := 0
	opener := func(addr Address, _ time.Duration) (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		if opens == 1 {
			return first, nil
		}
		return second, nil
	}

	frames := make(chan []byte, 4)
	errs := make(chan error, 4)
	rx := NewReceiver(
		WithOpener(opener),
		WithReadTimeout(5*time.Millisecond),
		WithBackoff(backoff.Config{InitialDelay: time.Millisecond, Multiplier: 1}),
	)
	err := rx.StartReceiving(Address{Port: "/dev/fake", Baud: 9600}, manager.Handler{
		OnFrame: func(b []byte) { frames <- b },
		OnError: func(err error) { errs <- err },
	})
	if err != nil {
		t.Fatalf("start receiving: %v", err)
	}
	defer rx.StopReceiving()

	for i := 0; i < 2; i++ {
		select {
		case got := <-frames:
			if !bytes.Equal(got, frame) {
				t.Fatalf("frame %d mismatch: %x", i, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d not delivered", i)
		}
	}
	select {
	case err := <-errs:
		if err.Error() != "serial: read: device unplugged" {
			t.Fatalf("unexpected error: %v", err)
		}
	default:
		t.Fatalf("read failure was not reported")
	}
	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Fatalf("failed port was not closed")
	}
}

func TestReceiverDropsPartialFrameOnReadFailure(t *testing.T) {
	testlog.Start(t)
	frame := can.Encode(can.GPS{Longitude: 3, Latitude: 4}, 0)
	first := &scriptedPort{
		chunks: [][]byte{frame[:11]},
		err:    errors.New("framing error"),
	}
	second := &scriptedPort{chunks: [][]byte{frame}}

	var mu sync.Mutex
	opens := 0
	opener := func(Address, time.Duration) (Port, error) {
		mu.Lock()
		defer mu.Unlock()
		opens++
		if opens == 1 {
			return first, nil
		}
		return second, nil
	}

	frames := make(chan []byte, 4)
	rx := NewReceiver(
		WithOpener(opener),
		WithReadTimeout(5*time.Millisecond),
		WithBackoff(backoff.Config{InitialDelay: time.Millisecond, Multiplier: 1}),
	)
	if err := rx.StartReceiving(Address{Port: "/dev/fake"}, manager.Handler{
		OnFrame: func(b []byte) { frames <- b },
		OnError: func(error) {},
	}); err != nil {
		t.Fatalf("start receiving: %v", err)
	}
	defer rx.StopReceiving()

	select {
	case got := <-frames:
		if !bytes.Equal(got, frame) {
			t.Fatalf("partial bytes leaked into the reopened stream: %x", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("frame from reopened port not delivered")
	}
	select {
	case got := <-frames:
		t.Fatalf("unexpected extra frame: %x", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestReceiverStartFailsFast(t *testing.T) {
	testlog.Start(t)
	openErr := errors.New("no such device")
	rx := NewReceiver(WithOpener(func(Address, time.Duration) (Port, error) { return nil, openErr }))
	if err := rx.StartReceiving(Address{Port: "/dev/none"}, manager.Handler{}); !errors.Is(err, openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
	if err := rx.StopReceiving(); err != nil {
		t.Fatalf("stop after failed start: %v", err)
	}
}

func TestReceiverStopIsPrompt(t *testing.T) {
	testlog.Start(t)
	port := &scriptedPort{}
	rx := NewReceiver(
		WithOpener(func(Address, time.Duration) (Port, error) { return port, nil }),
	)
	if err := rx.StartReceiving(Address{Port: "/dev/fake"}, manager.Handler{}); err != nil {
		t.Fatalf("start receiving: %v", err)
	}
	if err := rx.StartReceiving(Address{Port: "/dev/fake"}, manager.Handler{}); !errors.Is(err, ErrAlreadyReceiving) {
		t.Fatalf("expected ErrAlreadyReceiving, got %v", err)
	}
	start := time.Now()
	if err := rx.StopReceiving(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("stop took %s", time.Since(start))
	}
	if err := rx.StopReceiving(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestAddressString(t *testing.T) {
	if got := (Address{Port: "/dev/ttyUSB0", Baud: 115200}).String(); got != "/dev/ttyUSB0@115200" {
		t.Fatalf("unexpected address string: %s", got)
	}
}
