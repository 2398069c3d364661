package gateway

import (
	"encoding/json"
	"log/slog"
)

// Router turns a raw inbound message on a known connection into a side
// effect, updating liveness as it does so. It holds no state of its own:
// dispatch is a lookup table from message type to handler, so adding a
// type is a table edit.
type Router struct {
	registry   *Registry
	correlator *Correlator
	logger     *slog.Logger
	handlers   map[MessageType]Handler
}

// NewRouter creates a router over the given registry and correlator.
func NewRouter(registry *Registry, correlator *Correlator, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry:   registry,
		correlator: correlator,
		logger:     logger.With("component", "router"),
		handlers:   make(map[MessageType]Handler),
	}
}

// Handle installs (or replaces) the handler for a message type. Not safe
// to call after routing has started; register everything up front.
func (r *Router) Handle(t MessageType, h Handler) {
	r.handlers[t] = h
}

// Route dispatches one inbound message. Unknown connections are presumed
// closing and dropped with a warning. Command responses bypass ordinary
// handler dispatch and go straight to the correlator, since a response is
// not itself a notifiable event. Unknown types are logged and dropped,
// never fatal.
func (r *Router) Route(connID string, msg InboundMessage) {
	conn, ok := r.registry.Touch(connID)
	if !ok {
		r.logger.Warn("message on unknown connection dropped", "conn_id", connID, "type", msg.Type)
		return
	}

	if msg.Type == TypeCommandResponse {
		r.routeResponse(conn, msg)
		return
	}

	handler, ok := r.handlers[msg.Type]
	if !ok {
		r.logger.Warn("unknown message type dropped",
			"conn_id", connID,
			"owner", conn.OwnerID,
			"type", msg.Type,
		)
		return
	}

	handler(conn, msg.Payload)
}

// routeResponse decodes a command-response payload and completes the
// pending command.
func (r *Router) routeResponse(conn Connection, msg InboundMessage) {
	if msg.CommandID == "" {
		r.logger.Warn("command response without command id dropped", "conn_id", conn.ID)
		return
	}

	var payload responsePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			r.logger.Warn("command response payload dropped",
				"conn_id", conn.ID,
				"command_id", msg.CommandID,
				"error", err,
			)
			return
		}
	}

	r.correlator.Complete(Response{
		CommandID: msg.CommandID,
		Success:   payload.Success,
		Data:      payload.Data,
		Error:     payload.Error,
	})
}
