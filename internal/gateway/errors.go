package gateway

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrMissingOwner rejects admission of a channel that carries no owner
	// identity. The caller must close the channel.
	ErrMissingOwner = errors.New("missing owner identity")

	// ErrNoActiveConnection means the addressed owner has no live
	// connections. Surfaced immediately, never retried.
	ErrNoActiveConnection = errors.New("no active connection for owner")

	// ErrDuplicateCommand means the command id collides with a command
	// that is still pending. Surfaced before any network effect.
	ErrDuplicateCommand = errors.New("duplicate command id")

	// ErrCommandTimeout means no response arrived within the deadline.
	// The underlying channel is left open.
	ErrCommandTimeout = errors.New("command timeout")

	// ErrConnectionLost means the target channel closed while the command
	// was pending.
	ErrConnectionLost = errors.New("connection lost")

	// ErrMalformedMessage classifies inbound frames that cannot be decoded.
	// Logged and swallowed, never propagated to callers.
	ErrMalformedMessage = errors.New("malformed message")
)

// CommandFailedError carries the remote error of an unsuccessful response.
type CommandFailedError struct {
	CommandID string
	Reason    string
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command %s failed: %s", e.CommandID, e.Reason)
}
