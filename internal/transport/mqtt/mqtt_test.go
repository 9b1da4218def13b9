package mqtt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/protocol/can"
	"github.com/danmuck/cantelemetry/internal/transport/backoff"
)

type fakeMessage struct {
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "car/can" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestBrokerURLDefaultsPortByScheme(t *testing.T) {
	cases := []struct {
		addr Address
		want string
	}{
		{Address{Broker: "localhost"}, "tcp://localhost:1883"},
		{Address{Broker: "broker.example", TLS: true}, "ssl://broker.example:8883"},
		{Address{Broker: "10.0.0.5", Port: 2883}, "tcp://10.0.0.5:2883"},
	}
	for _, tc := range cases {
		if got := BrokerURL(tc.addr); got != tc.want {
			t.Fatalf("BrokerURL(%+v) = %s want %s", tc.addr, got, tc.want)
		}
	}
}

func TestAddressStringOmitsCredentials(t *testing.T) {
	a := Address{Broker: "b", Username: "driver", Password: "secret", Topic: "car/can"}
	s := a.String()
	if strings.Contains(s, "secret") || strings.Contains(s, "driver") {
		t.Fatalf("credentials leaked into %q", s)
	}
	if s != "tcp://b:1883 topic=car/can" {
		t.Fatalf("unexpected address string: %q", s)
	}
}

func TestClientOptionsMapping(t *testing.T) {
	opts, err := ClientOptions(Address{
		Broker:   "broker.example",
		TLS:      true,
		Username: "u",
		Password: "p",
		Topic:    "t",
	}, backoff.Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second})
	if err != nil {
		t.Fatalf("client options: %v", err)
	}

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://broker.example:8883" {
		t.Fatalf("unexpected servers: %v", opts.Servers)
	}
	if !strings.HasPrefix(opts.ClientID, "cantelemetry-") {
		t.Fatalf("unexpected generated client id: %q", opts.ClientID)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("credentials not applied")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.ServerName != "broker.example" {
		t.Fatalf("tls config not applied: %+v", opts.TLSConfig)
	}
	if opts.MaxReconnectInterval != 10*time.Second || opts.ConnectRetryInterval != time.Second {
		t.Fatalf("backoff not mapped: max=%s retry=%s", opts.MaxReconnectInterval, opts.ConnectRetryInterval)
	}
}

func TestMessageHandlerCopiesPayload(t *testing.T) {
	var got []byte
	handler := messageHandler(manager.Handler{OnFrame: func(b []byte) { got = b }})
	payload := can.Encode(can.GPS{Longitude: 3}, 0)
	handler(nil, fakeMessage{payload: payload})
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %x", got)
	}
	payload[0] = 0xFF
	if got[0] == 0xFF {
		t.Fatalf("handler must copy the payload")
	}
}

func TestStartRequiresTopic(t *testing.T) {
	rx := NewReceiver()
	if err := rx.StartReceiving(Address{Broker: "localhost"}, manager.Handler{}); !errors.Is(err, ErrNoTopic) {
		t.Fatalf("expected ErrNoTopic, got %v", err)
	}
	if err := rx.StopReceiving(); err != nil {
		t.Fatalf("stop on idle receiver: %v", err)
	}
}
