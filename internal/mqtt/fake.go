package mqtt

import (
	"context"
	"sync"
)

// Published is one message sent through a FakeConn.
type Published struct {
	Topic   string
	Payload string
}

// FakeDialer hands out FakeConns and records dial attempts for tests.
type FakeDialer struct {
	mu sync.Mutex

	// Errors is consumed one per Dial; a nil entry or an exhausted slice
	// means success.
	Errors []error

	// ClientIDs records the client id of every attempt.
	ClientIDs []string

	// Conns records every connection handed out.
	Conns []*FakeConn

	// SubscribeError, if set, is returned by Subscribe on new connections.
	SubscribeError error

	attempts chan struct{}
}

// NewFakeDialer creates a FakeDialer.
func NewFakeDialer(errs ...error) *FakeDialer {
	return &FakeDialer{Errors: errs, attempts: make(chan struct{}, 64)}
}

// Dial records the attempt and either fails or returns a new FakeConn.
func (d *FakeDialer) Dial(_ context.Context, clientID string, onLost func(error)) (Conn, error) {
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		select {
		case d.attempts <- struct{}{}:
		default:
		}
	}()

	d.ClientIDs = append(d.ClientIDs, clientID)
	if len(d.Errors) > 0 {
		err := d.Errors[0]
		d.Errors = d.Errors[1:]
		if err != nil {
			return nil, err
		}
	}
	c := NewFakeConn()
	c.onLost = onLost
	c.SubscribeError = d.SubscribeError
	d.Conns = append(d.Conns, c)
	return c, nil
}

// FailNext queues errors for the next Dial calls.
func (d *FakeDialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Errors = append(d.Errors, errs...)
}

// Attempts returns a channel that receives once per completed Dial.
func (d *FakeDialer) Attempts() <-chan struct{} {
	return d.attempts
}

// Dials returns the number of Dial calls so far.
func (d *FakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ClientIDs)
}

// Last returns the most recent connection handed out, or nil.
func (d *FakeDialer) Last() *FakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Conns) == 0 {
		return nil
	}
	return d.Conns[len(d.Conns)-1]
}

// FakeConn records subscriptions and publishes.
type FakeConn struct {
	mu       sync.Mutex
	onLost   func(error)
	handlers map[string]Handler
	topics   []string
	sent     []Published
	closed   bool

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// SubscribeError, if set, will be returned by Subscribe.
	SubscribeError error
}

// NewFakeConn creates an open FakeConn.
func NewFakeConn() *FakeConn {
	return &FakeConn{handlers: make(map[string]Handler)}
}

// SetOnLost sets the callback Drop invokes.
func (c *FakeConn) SetOnLost(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLost = fn
}

// Subscribe records the handler.
func (c *FakeConn) Subscribe(topic string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SubscribeError != nil {
		return c.SubscribeError
	}
	c.handlers[topic] = handler
	c.topics = append(c.topics, topic)
	return nil
}

// Publish records the message.
func (c *FakeConn) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishError != nil {
		return c.PublishError
	}
	c.sent = append(c.sent, Published{Topic: topic, Payload: string(payload)})
	return nil
}

// Close marks the connection closed.
func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Deliver simulates an inbound message. It reports false when nothing is
// subscribed to topic.
func (c *FakeConn) Deliver(topic, payload string) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(topic, []byte(payload))
	return true
}

// Drop simulates losing the connection.
func (c *FakeConn) Drop(err error) {
	c.mu.Lock()
	onLost := c.onLost
	c.mu.Unlock()
	if onLost != nil {
		onLost(err)
	}
}

// Topics returns the subscribed topics in order.
func (c *FakeConn) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.topics...)
}

// Sent returns the published messages in order.
func (c *FakeConn) Sent() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.sent...)
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
