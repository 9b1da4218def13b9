package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/danmuck/cantelemetry/internal/transport/backoff"
)

// Publisher sends one frame per message to a topic.
type Publisher struct {
	client  paho.Client
	topic   string
	qos     byte
	timeout time.Duration
}

func Connect(addr Address, timeout time.Duration) (*Publisher, error) {
	if addr.Topic == "" {
		return nil, ErrNoTopic
	}
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts, err := ClientOptions(addr, backoff.DefaultConfig())
	if err != nil {
		return nil, err
	}
	client := paho.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, BrokerURL(addr))
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", BrokerURL(addr), err)
	}
	return &Publisher{client: client, topic: addr.Topic, qos: addr.QoS, timeout: timeout}, nil
}

func (p *Publisher) Publish(frame []byte) error {
	tok := p.client.Publish(p.topic, p.qos, false, frame)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt: publish %s: timeout", p.topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.client.Disconnect(disconnectQuiesceMS)
	return nil
}
