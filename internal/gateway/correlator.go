package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// pendingCommand is one outstanding command awaiting its response.
// Created on send, destroyed on resolution, rejection, or timeout —
// whichever occurs first. Exactly one terminal event fires per command:
// every terminal path deletes the entry from the pending table under the
// correlator lock before settling the result channel, so the losers of
// any race see a missing entry and no-op.
type pendingCommand struct {
	commandID string
	connID    string
	createdAt time.Time
	timer     *time.Timer
	result    chan commandResult // buffered, capacity 1
}

type commandResult struct {
	resp *Response
	err  error
}

// Correlator issues commands over registered channels and matches
// out-of-band responses back to the original caller by command id.
type Correlator struct {
	registry       *Registry
	logger         *slog.Logger
	defaultTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingCommand
}

// NewCorrelator creates a correlator over the given registry.
func NewCorrelator(registry *Registry, defaultTimeout time.Duration, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}

	return &Correlator{
		registry:       registry,
		logger:         logger.With("component", "correlator"),
		defaultTimeout: defaultTimeout,
		pending:        make(map[string]*pendingCommand),
	}
}

// Send writes a command to the owner's first-admitted connection and
// blocks until the response arrives, the deadline elapses, the target
// connection closes, or ctx is done.
//
// Commands are per-connection: a multi-connection owner gets the first
// connection in admission order, because a command expects exactly one
// response. Fan-out to all owner connections is a Delivery concern.
func (c *Correlator) Send(ctx context.Context, ownerID string, cmd Command) (*Response, error) {
	if cmd.CommandID == "" {
		return nil, fmt.Errorf("send to %q: command id required", ownerID)
	}

	conns := c.registry.ListByOwner(ownerID)
	if len(conns) == 0 {
		return nil, fmt.Errorf("send to %q: %w", ownerID, ErrNoActiveConnection)
	}
	target := conns[0]

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	data, err := json.Marshal(commandEnvelope(cmd))
	if err != nil {
		return nil, fmt.Errorf("encode command %s: %w", cmd.CommandID, err)
	}

	entry := &pendingCommand{
		commandID: cmd.CommandID,
		connID:    target.ID,
		createdAt: time.Now(),
		result:    make(chan commandResult, 1),
	}

	c.mu.Lock()
	if _, exists := c.pending[cmd.CommandID]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("send to %q: %w: %s", ownerID, ErrDuplicateCommand, cmd.CommandID)
	}
	c.pending[cmd.CommandID] = entry
	entry.timer = time.AfterFunc(timeout, func() { c.expire(entry) })
	c.mu.Unlock()

	// Write outside the lock; the socket write may block on its deadline.
	if err := target.Channel.Send(data); err != nil {
		c.discard(entry)
		return nil, fmt.Errorf("write command %s to %s: %w", cmd.CommandID, target.ID, err)
	}

	c.logger.Debug("command sent",
		"command_id", cmd.CommandID,
		"type", cmd.Type,
		"owner", ownerID,
		"conn_id", target.ID,
		"timeout", timeout,
	)

	select {
	case res := <-entry.result:
		return res.resp, res.err
	case <-ctx.Done():
		c.discard(entry)
		return nil, ctx.Err()
	}
}

// Complete resolves a pending command with its response. An unknown id —
// already timed out, already completed, or never sent — is ignored: a
// slow response racing a timeout is expected, not an error.
func (c *Correlator) Complete(resp Response) {
	c.mu.Lock()
	entry, ok := c.pending[resp.CommandID]
	if ok {
		delete(c.pending, resp.CommandID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("response for unknown command ignored", "command_id", resp.CommandID)
		return
	}

	entry.timer.Stop()

	if resp.Success {
		r := resp
		entry.result <- commandResult{resp: &r}
	} else {
		entry.result <- commandResult{err: &CommandFailedError{
			CommandID: resp.CommandID,
			Reason:    resp.Error,
		}}
	}
}

// CancelForConnection rejects every pending command targeted at the
// closed connection with ErrConnectionLost. Runs in the same teardown
// pass as registry eviction, so no pending command outlives its
// connection. Commands on other connections are untouched.
func (c *Correlator) CancelForConnection(connID string) int {
	c.mu.Lock()
	var lost []*pendingCommand
	for id, entry := range c.pending {
		if entry.connID == connID {
			delete(c.pending, id)
			lost = append(lost, entry)
		}
	}
	c.mu.Unlock()

	for _, entry := range lost {
		entry.timer.Stop()
		entry.result <- commandResult{err: fmt.Errorf("command %s: %w", entry.commandID, ErrConnectionLost)}
	}

	if len(lost) > 0 {
		c.logger.Info("cancelled pending commands for closed connection",
			"conn_id", connID,
			"count", len(lost),
		)
	}

	return len(lost)
}

// PendingCount returns the number of outstanding commands.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// expire fires when a deadline timer elapses. The entry is compared by
// reference, not by id: a command id may be reused after completion, and
// a stale timer must never reject a newer pending entry of the same id.
func (c *Correlator) expire(entry *pendingCommand) {
	c.mu.Lock()
	current, ok := c.pending[entry.commandID]
	if !ok || current != entry {
		c.mu.Unlock()
		return
	}
	delete(c.pending, entry.commandID)
	c.mu.Unlock()

	c.logger.Warn("command timed out",
		"command_id", entry.commandID,
		"conn_id", entry.connID,
		"age", time.Since(entry.createdAt),
	)

	entry.result <- commandResult{err: fmt.Errorf("command %s: %w", entry.commandID, ErrCommandTimeout)}
}

// discard removes an entry without settling it, used when the caller
// itself gives up (write failure or context cancellation).
func (c *Correlator) discard(entry *pendingCommand) {
	c.mu.Lock()
	if current, ok := c.pending[entry.commandID]; ok && current == entry {
		delete(c.pending, entry.commandID)
	}
	c.mu.Unlock()
	entry.timer.Stop()
}

// commandEnvelope builds the wire envelope for an outbound command.
func commandEnvelope(cmd Command) Envelope {
	var payload json.RawMessage
	if cmd.Params != nil {
		payload, _ = json.Marshal(cmd.Params)
	}

	return Envelope{
		Type:      cmd.Type,
		Payload:   payload,
		CommandID: cmd.CommandID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}
