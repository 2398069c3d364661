package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opsdesk/deskgate/internal/auth"
	"github.com/opsdesk/deskgate/internal/gateway"
)

// Config holds transport settings for upgraded sockets.
type Config struct {
	WriteTimeout time.Duration // per-message write deadline
	PingInterval time.Duration // keepalive ping cadence
	PongTimeout  time.Duration // read deadline extended on pong or data
	ReadLimit    int64         // max inbound frame size in bytes
}

// DefaultConfig returns transport defaults.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 5 * time.Second,
		PingInterval: 15 * time.Second,
		PongTimeout:  60 * time.Second,
		ReadLimit:    1 << 20,
	}
}

// Handler upgrades HTTP requests and binds each resulting socket to the
// gateway's hooks for the lifetime of the connection.
type Handler struct {
	gateway  *gateway.Gateway
	auth     *auth.Extractor
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates the transport handler. Zero config fields take
// defaults.
func NewHandler(gw *gateway.Gateway, extractor *auth.Extractor, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = def.ReadLimit
	}

	return &Handler{
		gateway: gw,
		auth:    extractor,
		cfg:     cfg,
		logger:  logger.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP handles one channel from upgrade to closure. The closure
// hook fires exactly once, whatever ends the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, authErr := h.auth.OwnerID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ch := newChannel(conn, h.cfg.WriteTimeout)

	if authErr != nil {
		h.logger.Warn("handshake identity rejected", "remote", r.RemoteAddr, "error", authErr)
		ch.closeWith(websocket.ClosePolicyViolation, "owner identity required")
		return
	}

	reg, err := h.gateway.HandleOpen(ch, ownerID)
	if err != nil {
		ch.closeWith(websocket.ClosePolicyViolation, err.Error())
		return
	}

	conn.SetReadLimit(h.cfg.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	done := make(chan struct{})
	go h.pingLoop(conn, done)

	h.readLoop(conn, reg.ID)

	close(done)
	h.gateway.HandleClose(reg.ID)
	ch.Close()
}

// readLoop delivers discrete messages to the inbound hook in the order
// received until the socket errors or closes.
func (h *Handler) readLoop(conn *websocket.Conn, connID string) {
	for {
		msgType, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("read failed", "conn_id", connID, "error", err)
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		h.gateway.HandleMessage(connID, data, receivedAt)
	}
}

// pingLoop keeps the connection alive; a peer that stops answering trips
// the read deadline and ends the read loop.
func (h *Handler) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				h.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}
