package storage

import (
	"time"
)

// EventType represents the type of storage event emitted.
type EventType string

// Storage event type constants.
const (
	EventCommandLogged  EventType = "command.logged"
	EventPostCreated    EventType = "post.created"
	EventPostUpdated    EventType = "post.updated"
	EventProductCreated EventType = "product.created"
)

// Event represents a change inside the storage layer that other subsystems
// can react to.
type Event struct {
	Type      EventType `json:"type"`
	EntityID  string    `json:"entityId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer reacts to storage events.
type Observer interface {
	HandleStorageEvent(Event)
}

// ObserverFunc is a helper to turn a function into an Observer.
type ObserverFunc func(Event)

// HandleStorageEvent calls the wrapped function.
func (f ObserverFunc) HandleStorageEvent(event Event) {
	f(event)
}
