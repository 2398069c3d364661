package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opsdesk/deskgate/internal/events"
)

// Options configures a Gateway. Zero values use defaults.
type Options struct {
	// DefaultCommandTimeout applies to commands sent without an explicit
	// deadline. Default 30s.
	DefaultCommandTimeout time.Duration

	// IdleAfter marks connections idle in status snapshots after this
	// much inbound silence. Zero disables the check.
	IdleAfter time.Duration

	Logger *slog.Logger

	// Events receives connection lifecycle and notification events.
	// Nil means no publishing.
	Events events.Publisher
}

// Gateway is the explicit handle every collaborator works through; there
// is no package-level instance, so independent gateways can coexist in
// one process.
type Gateway struct {
	logger *slog.Logger
	events events.Publisher

	registry   *Registry
	router     *Router
	correlator *Correlator
	delivery   *Delivery
}

// New constructs a gateway with default handlers for status, log, and
// notification messages installed. Override them with Handle before
// attaching a transport.
func New(opts Options) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pub := opts.Events
	if pub == nil {
		pub = events.NoopPublisher{}
	}

	registry := NewRegistry(opts.IdleAfter, logger)
	correlator := NewCorrelator(registry, opts.DefaultCommandTimeout, logger)
	router := NewRouter(registry, correlator, logger)
	delivery := NewDelivery(registry, logger)

	g := &Gateway{
		logger:     logger.With("component", "gateway"),
		events:     pub,
		registry:   registry,
		router:     router,
		correlator: correlator,
		delivery:   delivery,
	}

	router.Handle(TypeStatus, g.handleStatus)
	router.Handle(TypeLog, g.handleLog)
	router.Handle(TypeNotification, g.handleNotification)

	return g
}

// Handle installs an application handler for a message type. Register
// everything before the transport starts delivering messages.
func (g *Gateway) Handle(t MessageType, h Handler) {
	g.router.Handle(t, h)
}

// HandleOpen is the admission hook, invoked once per newly established
// channel. On error the caller must close the channel; it was never
// registered.
func (g *Gateway) HandleOpen(ch Channel, ownerID string) (Connection, error) {
	conn, err := g.registry.Admit(ch, ownerID)
	if err != nil {
		g.logger.Warn("admission rejected", "owner", ownerID, "error", err)
		return Connection{}, err
	}

	g.publish(events.KindConnected, conn.OwnerID, conn.ID, nil)
	return conn, nil
}

// HandleMessage is the inbound event hook, invoked per discrete message
// received on a channel. Undecodable frames are logged and dropped.
func (g *Gateway) HandleMessage(connID string, raw []byte, receivedAt time.Time) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		g.logger.Warn("inbound frame dropped",
			"conn_id", connID,
			"error", ErrMalformedMessage,
			"cause", err,
		)
		return
	}

	g.router.Route(connID, InboundMessage{
		Type:       MessageType(env.Type),
		Payload:    env.Payload,
		CommandID:  env.CommandID,
		ReceivedAt: receivedAt,
	})
}

// HandleClose is the closure hook, invoked when a channel closes for any
// reason. Registry eviction and correlator cleanup run in the same pass,
// exactly once per channel; a second call for the same id is a no-op.
func (g *Gateway) HandleClose(connID string) {
	conn, ok := g.registry.Remove(connID)
	if !ok {
		return
	}

	g.correlator.CancelForConnection(connID)
	g.publish(events.KindDisconnected, conn.OwnerID, conn.ID, nil)
}

// SendCommand issues a command to the owner's first-admitted connection
// and blocks for the correlated response. An empty CommandID gets a
// generated one.
func (g *Gateway) SendCommand(ctx context.Context, ownerID string, cmd Command) (*Response, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = uuid.NewString()
	}
	return g.correlator.Send(ctx, ownerID, cmd)
}

// SendMessage fans a message out to every connection of the owner.
func (g *Gateway) SendMessage(ownerID string, msg Message) bool {
	return g.delivery.SendToOwner(ownerID, msg)
}

// Broadcast writes a message to every registered connection.
func (g *Gateway) Broadcast(msg Message) {
	g.delivery.Broadcast(msg)
}

// Status lists connections for one owner, or all when ownerID is empty.
func (g *Gateway) Status(ownerID string) []Connection {
	if ownerID == "" {
		return g.registry.ListAll()
	}
	return g.registry.ListByOwner(ownerID)
}

// ActiveCount returns the number of registered connections.
func (g *Gateway) ActiveCount() int {
	return g.registry.Count()
}

// PendingCommands returns the number of commands awaiting a response.
func (g *Gateway) PendingCommands() int {
	return g.correlator.PendingCount()
}

func (g *Gateway) handleStatus(conn Connection, payload json.RawMessage) {
	g.logger.Debug("status report",
		"conn_id", conn.ID,
		"owner", conn.OwnerID,
		"payload", string(payload),
	)
}

func (g *Gateway) handleLog(conn Connection, payload json.RawMessage) {
	g.logger.Info("client log",
		"conn_id", conn.ID,
		"owner", conn.OwnerID,
		"payload", string(payload),
	)
}

func (g *Gateway) handleNotification(conn Connection, payload json.RawMessage) {
	g.publish(events.KindNotification, conn.OwnerID, conn.ID, payload)
}

// publish forwards an event best-effort; failures are logged, never
// surfaced to the connection path.
func (g *Gateway) publish(kind events.Kind, ownerID, connID string, payload json.RawMessage) {
	err := g.events.Publish(context.Background(), &events.Event{
		Kind:         kind,
		OwnerID:      ownerID,
		ConnectionID: connID,
		Payload:      payload,
		At:           time.Now().UTC(),
	})
	if err != nil {
		g.logger.Warn("event publish failed", "kind", kind, "owner", ownerID, "error", err)
	}
}
