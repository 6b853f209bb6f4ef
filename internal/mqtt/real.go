package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// PahoDialer connects to a real broker. Reconnection is left to the
// session, so paho's own retry logic is disabled.
type PahoDialer struct {
	Broker  string
	Timeout time.Duration
}

// NewPahoDialer creates a dialer for broker, e.g. wss://broker.hivemq.com:8884/mqtt.
func NewPahoDialer(broker string, timeout time.Duration) *PahoDialer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PahoDialer{Broker: broker, Timeout: timeout}
}

// Dial connects and waits for the broker to accept the session.
func (d *PahoDialer) Dial(ctx context.Context, clientID string, onLost func(error)) (Conn, error) {
	opts := paho.NewClientOptions().
		AddBroker(d.Broker).
		SetClientID(clientID).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(d.Timeout).
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			if onLost != nil {
				onLost(err)
			}
		})

	client := paho.NewClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-time.After(d.Timeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &pahoConn{client: client, timeout: d.Timeout}, nil
}

type pahoConn struct {
	client  paho.Client
	timeout time.Duration
}

func (c *pahoConn) Subscribe(topic string, handler Handler) error {
	token := c.client.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(c.timeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *pahoConn) Publish(topic string, payload []byte) error {
	// QoS 0 (at-most-once), not retained
	token := c.client.Publish(topic, 0, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

func (c *pahoConn) Close() {
	c.client.Disconnect(250)
}
