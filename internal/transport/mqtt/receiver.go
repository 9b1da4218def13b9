// Package mqtt receives CAN frames published one per message on an MQTT topic.
package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/cantelemetry/internal/manager"
	"github.com/danmuck/cantelemetry/internal/transport/backoff"
)

const (
	DefaultPort    = 1883
	DefaultTLSPort = 8883

	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMS   = 250
)

var (
	ErrAlreadyReceiving = errors.New("mqtt: already receiving")
	ErrConnectTimeout   = errors.New("mqtt: connect timeout")
	ErrNoTopic          = errors.New("mqtt: topic is required")
)

// Address is the broker session and subscription a receiver uses.
type Address struct {
	Broker   string
	Port     int
	TLS      bool
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	// CAFile, CertFile and KeyFile are optional PEM paths used when TLS is set.
	CAFile   string
	CertFile string
	KeyFile  string
}

// String omits credentials.
func (a Address) String() string {
	return fmt.Sprintf("%s topic=%s", BrokerURL(a), a.Topic)
}

// BrokerURL builds the paho broker URI, defaulting the port by scheme.
func BrokerURL(a Address) string {
	scheme, port := "tcp", a.Port
	if a.TLS {
		scheme = "ssl"
	}
	if port <= 0 {
		port = DefaultPort
		if a.TLS {
			port = DefaultTLSPort
		}
	}
	return fmt.Sprintf("%s://%s:%d", scheme, a.Broker, port)
}

// ClientOptions maps a onto paho options. A blank client id gets a random one.
func ClientOptions(a Address, retry backoff.Config) (*paho.ClientOptions, error) {
	clientID := a.ClientID
	if clientID == "" {
		clientID = "cantelemetry-" + uuid.NewString()[:8]
	}
	opts := paho.NewClientOptions().
		AddBroker(BrokerURL(a)).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout)
	if retry.InitialDelay > 0 {
		opts.SetConnectRetryInterval(retry.InitialDelay)
	}
	if retry.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(retry.MaxDelay)
	}
	if a.Username != "" {
		opts.SetUsername(a.Username)
		opts.SetPassword(a.Password)
	}
	if a.TLS {
		tlsCfg, err := TLSConfig(a)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

type Option func(*Receiver)

func WithConnectTimeout(d time.Duration) Option {
	return func(r *Receiver) {
		if d > 0 {
			r.connectTimeout = d
		}
	}
}

func WithBackoff(cfg backoff.Config) Option {
	return func(r *Receiver) {
		r.backoff = cfg
	}
}

// Receiver subscribes to one topic and hands each message payload to the
// manager as a frame. Reconnects are left to the paho client and the
// subscription is restored on every connect.
type Receiver struct {
	connectTimeout time.Duration
	backoff        backoff.Config

	mu     sync.Mutex
	client paho.Client
	topic  string
}

var _ manager.Receiver[Address] = (*Receiver)(nil)

func NewReceiver(opts ...Option) *Receiver {
	r := &Receiver{
		connectTimeout: defaultConnectTimeout,
		backoff:        backoff.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Receiver) Initialize() error {
	return nil
}

func (r *Receiver) StartReceiving(addr Address, h manager.Handler) error {
	if addr.Topic == "" {
		return ErrNoTopic
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return ErrAlreadyReceiving
	}

	onMessage := messageHandler(h)
	opts, err := ClientOptions(addr, r.backoff)
	if err != nil {
		return err
	}
	opts.SetOnConnectHandler(func(c paho.Client) {
		tok := c.Subscribe(addr.Topic, addr.QoS, onMessage)
		if !tok.WaitTimeout(r.connectTimeout) {
			report(h, fmt.Errorf("mqtt: subscribe %s: timeout", addr.Topic))
			return
		}
		if err := tok.Error(); err != nil {
			report(h, fmt.Errorf("mqtt: subscribe %s: %w", addr.Topic, err))
			return
		}
		log.Info().Str("transport", "mqtt").Str("topic", addr.Topic).Msg("subscribed")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		report(h, fmt.Errorf("mqtt: connection lost: %w", err))
	})

	client := paho.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(r.connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: %s", ErrConnectTimeout, BrokerURL(addr))
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", BrokerURL(addr), err)
	}
	r.client = client
	r.topic = addr.Topic
	log.Info().Str("transport", "mqtt").Str("broker", BrokerURL(addr)).Msg("connected")
	return nil
}

func (r *Receiver) StopReceiving() error {
	r.mu.Lock()
	client, topic := r.client, r.topic
	r.client, r.topic = nil, ""
	r.mu.Unlock()
	if client == nil {
		return nil
	}
	var err error
	if client.IsConnectionOpen() {
		tok := client.Unsubscribe(topic)
		if tok.WaitTimeout(r.connectTimeout) && tok.Error() != nil {
			err = fmt.Errorf("mqtt: unsubscribe %s: %w", topic, tok.Error())
		}
	}
	client.Disconnect(disconnectQuiesceMS)
	return err
}

func messageHandler(h manager.Handler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if h.OnFrame == nil {
			return
		}
		h.OnFrame(append([]byte(nil), msg.Payload()...))
	}
}

func report(h manager.Handler, err error) {
	if err != nil && h.OnError != nil {
		h.OnError(err)
	}
}
