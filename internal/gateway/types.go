package gateway

import (
	"encoding/json"
	"time"
)

// Channel is the write side of one duplex transport. The registry entry
// owns the handle exclusively; nothing else writes to the underlying
// socket directly.
type Channel interface {
	// Send writes one discrete message to the remote peer.
	Send(data []byte) error

	// Close tears down the underlying transport.
	Close() error
}

// ConnStatus is the liveness state of a registered connection.
type ConnStatus string

const (
	StatusActive       ConnStatus = "active"
	StatusIdle         ConnStatus = "idle"
	StatusDisconnected ConnStatus = "disconnected"
)

// Connection identifies one duplex channel and its owner.
type Connection struct {
	ID           string     `json:"connection_id"`
	OwnerID      string     `json:"owner_id"`
	Channel      Channel    `json:"-"`
	ConnectedAt  time.Time  `json:"connected_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	Status       ConnStatus `json:"status"`
}

// MessageType classifies inbound traffic.
type MessageType string

const (
	TypeStatus          MessageType = "status"
	TypeLog             MessageType = "log"
	TypeNotification    MessageType = "notification"
	TypeCommandResponse MessageType = "command-response"
)

// Envelope is the wire shape of every message crossing the transport
// boundary, in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CommandID string          `json:"commandId,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// InboundMessage is one decoded message received on a known connection.
type InboundMessage struct {
	Type       MessageType
	Payload    json.RawMessage
	CommandID  string
	ReceivedAt time.Time
}

// Command is an outbound request that expects exactly one response.
// CommandID must be unique among currently pending commands; the facade
// assigns one when the caller leaves it empty.
type Command struct {
	CommandID string
	Type      string
	Params    any
	Timeout   time.Duration // zero means the gateway default
}

// Response correlates back to exactly one outstanding Command.
type Response struct {
	CommandID string          `json:"commandId"`
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// responsePayload is the payload of a command-response envelope.
type responsePayload struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Message is a non-correlated outbound message for targeted or broadcast
// fan-out. Delivery stamps the timestamp.
type Message struct {
	Type    string
	Payload any
}

// Handler reacts to one inbound message. Handlers receive a snapshot of
// the connection and the raw payload; a handler must log and swallow
// malformed payloads rather than panic.
type Handler func(conn Connection, payload json.RawMessage)
