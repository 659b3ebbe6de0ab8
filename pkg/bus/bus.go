// Package bus carries command lifecycle events between the engine and its
// stream consumers. It is publish/subscribe only: the engine publishes
// started/step/completed events best-effort, and the API layer fans them out
// to SSE and websocket clients. The default driver is in-memory; NATS backs
// multi-process deployments.
package bus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned when operating on a closed bus or subscription.
var ErrClosed = errors.New("bus or subscription closed")

// Bus is the event transport. Implementations must be safe for concurrent
// use, and Publish must not block on slow subscribers.
type Bus interface {
	// Publish sends a message to all subscribers whose pattern matches the
	// subject. It returns once the message is handed off, not delivered.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject
	// pattern. The handler runs on the subscription's own goroutine, one
	// message at a time. Patterns support "*" for one token and ">" for
	// the rest: "parlance.command.*" matches "parlance.command.step".
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes one incoming message.
type MessageHandler func(msg *Message)

// Message is an event delivered from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops delivery and releases resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription was made with.
	Subject() string
}

// Config selects and tunes a bus driver.
type Config struct {
	// Driver is "memory" or "nats". Empty means memory.
	Driver string

	// URL is the NATS server URL. Ignored by the memory driver.
	URL string

	// Name identifies this client to the NATS server.
	Name string

	// Timeout bounds connection setup.
	Timeout time.Duration
}

// DefaultConfig returns the in-memory driver with NATS defaults filled in
// for when the driver is switched.
func DefaultConfig() Config {
	return Config{
		Driver:  "memory",
		URL:     "nats://localhost:4222",
		Name:    "parlance",
		Timeout: 30 * time.Second,
	}
}

// New builds the bus named by cfg.Driver.
func New(cfg Config) (Bus, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryBus(), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}
