package gateway

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Delivery fans out non-correlated messages. Both operations are
// read-only against the registry and keep no correlation bookkeeping;
// this channel has no acknowledgment, so write failures are logged and
// absorbed.
type Delivery struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDelivery creates a delivery service over the given registry.
func NewDelivery(registry *Registry, logger *slog.Logger) *Delivery {
	if logger == nil {
		logger = slog.Default()
	}

	return &Delivery{
		registry: registry,
		logger:   logger.With("component", "delivery"),
	}
}

// SendToOwner writes the message, stamped with a delivery timestamp, to
// every one of the owner's connections. Returns false only when the
// owner has no connections; individual write failures do not flip the
// result.
func (d *Delivery) SendToOwner(ownerID string, msg Message) bool {
	conns := d.registry.ListByOwner(ownerID)
	if len(conns) == 0 {
		return false
	}

	data, err := d.encode(msg)
	if err != nil {
		d.logger.Warn("message encode failed", "owner", ownerID, "type", msg.Type, "error", err)
		return false
	}

	for _, conn := range conns {
		if err := conn.Channel.Send(data); err != nil {
			d.logger.Warn("delivery write failed",
				"conn_id", conn.ID,
				"owner", ownerID,
				"type", msg.Type,
				"error", err,
			)
		}
	}

	return true
}

// Broadcast writes the message to every registered connection.
func (d *Delivery) Broadcast(msg Message) {
	data, err := d.encode(msg)
	if err != nil {
		d.logger.Warn("broadcast encode failed", "type", msg.Type, "error", err)
		return
	}

	for _, conn := range d.registry.ListAll() {
		if err := conn.Channel.Send(data); err != nil {
			d.logger.Warn("broadcast write failed",
				"conn_id", conn.ID,
				"owner", conn.OwnerID,
				"type", msg.Type,
				"error", err,
			)
		}
	}
}

func (d *Delivery) encode(msg Message) ([]byte, error) {
	var payload json.RawMessage
	if msg.Payload != nil {
		var err error
		payload, err = json.Marshal(msg.Payload)
		if err != nil {
			return nil, err
		}
	}

	return json.Marshal(Envelope{
		Type:      msg.Type,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}
