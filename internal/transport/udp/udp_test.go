package udp

import (
	"bytes"
	"testing"
	"time"

	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/protocol/can"
	"github.com/danmuck/cantelemetry/internal/testutil/testlog"
)

func TestReceiverDeliversDatagrams(t *testing.T) {
	testlog.Start(t)
	frames := make(chan []byte, 4)
	rx := NewReceiver(WithReadBuffer(64))
	if err := rx.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	err := rx.StartReceiving("127.0.0.1:0", manager.Handler{
		OnFrame: func(b []byte) { frames <- b },
		OnError: func(err error) { t.Errorf("unexpected receiver error: %v", err) },
	})
	if err != nil {
		t.Fatalf("start receiving: %v", err)
	}
	defer rx.StopReceiving()

	pub, err := Dial(rx.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer pub.Close()

	want := can.Encode(can.GPS{Longitude: 1.5, Latitude: 2.5}, 9)
	if err := pub.Publish(want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-frames:
		if !bytes.Equal(got, want) {
			t.Fatalf("frame mismatch: %x", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no datagram delivered")
	}
}

func TestReceiverStopIsIdempotent(t *testing.T) {
	testlog.Start(t)
	rx := NewReceiver()
	if err := rx.StopReceiving(); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
	if err := rx.StartReceiving("127.0.0.1:0", manager.Handler{}); err != nil {
		t.Fatalf("start receiving: %v", err)
	}
	if err := rx.StartReceiving("127.0.0.1:0", manager.Handler{}); err != ErrAlreadyReceiving {
		t.Fatalf("expected ErrAlreadyReceiving, got %v", err)
	}
	if err := rx.StopReceiving(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := rx.StopReceiving(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if rx.LocalAddr() != nil {
		t.Fatalf("address still bound after stop")
	}
}

func TestManagerOverUDP(t *testing.T) {
	testlog.Start(t)
	rx := NewReceiver()
	m := manager.New[string](manager.Config{Name: "udp", Label: "UDP", Workers: 2, QueueLimit: manager.UDPQueueLimit}, rx, nil)
	changes, cancel := m.SubscribeChanges(4)
	defer cancel()
	if !m.Start("127.0.0.1:0") {
		t.Fatalf("manager start failed")
	}
	defer m.Stop()

	pub, err := Dial(rx.LocalAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer pub.Close()
	if err := pub.Publish(can.Encode(can.ADC{AccelPedal: 512, BrakePedal: 100}, 0)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case b := <-changes:
		if b.Snapshot.AccPedal != 512 || b.Snapshot.BrakePedal != 100 {
			t.Fatalf("unexpected snapshot: %+v", b.Snapshot)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no change batch over udp")
	}
}
