// Package events publishes gateway lifecycle and notification events to
// downstream subsystems over NATS. Publishing is best-effort: the
// connection path never blocks on, or fails because of, the broker.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Kind classifies a gateway event.
type Kind string

const (
	KindConnected    Kind = "connected"
	KindDisconnected Kind = "disconnected"
	KindNotification Kind = "notification"
)

// Event is one gateway occurrence worth telling other subsystems about.
type Event struct {
	Kind         Kind            `json:"kind"`
	OwnerID      string          `json:"owner_id"`
	ConnectionID string          `json:"connection_id"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	At           time.Time       `json:"at"`
}

// Publisher delivers gateway events to interested subsystems.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NoopPublisher discards every event. Used when no broker is configured.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, *Event) error { return nil }
