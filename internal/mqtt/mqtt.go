// Package mqtt owns the broker session: connecting, reconnecting, routing
// inbound messages into the state store and publishing device commands.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
)

// Errors returned by the command functions. The failure has already been
// logged when one of these is returned.
var (
	ErrNotConnected = errors.New("not connected to broker")
	ErrInvalidState = errors.New("invalid state for device")
	ErrAutoMode     = errors.New("device is in automatic mode")
)

// Handler receives one inbound message.
type Handler func(topic string, payload []byte)

// Conn is one established broker connection.
type Conn interface {
	// Subscribe registers handler for messages on topic.
	Subscribe(topic string, handler Handler) error

	// Publish sends payload to topic with QoS 0, not retained, without
	// waiting for any acknowledgement.
	Publish(topic string, payload []byte) error

	// Close disconnects from the broker.
	Close()
}

// Dialer opens broker connections.
type Dialer interface {
	// Dial connects with the given client id. onLost is called at most once
	// if the connection later drops.
	Dial(ctx context.Context, clientID string, onLost func(error)) (Conn, error)
}

// ConnectionStatus is what UI consumers see of the session.
type ConnectionStatus struct {
	IsConnected bool `json:"isConnected"`
	HasData     bool `json:"hasData"`
}

// NewClientID returns prefix followed by a random number in [0, 9999].
func NewClientID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, rand.Intn(10000))
}
