package udp

import (
	"fmt"
	"net"
)

// Publisher sends frames to a fixed UDP destination.
type Publisher struct {
	conn net.Conn
}

func Dial(addr string) (*Publisher, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", addr, err)
	}
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) Publish(frame []byte) error {
	if _, err := p.conn.Write(frame); err != nil {
		return fmt.Errorf("udp: write: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.conn.Close()
}
