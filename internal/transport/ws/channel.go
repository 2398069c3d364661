package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned by Send after the channel is torn down.
var ErrChannelClosed = errors.New("channel closed")

// channel wraps one upgraded socket as a gateway Channel. Writes are
// serialized behind a mutex and bounded by a write deadline.
type channel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func newChannel(conn *websocket.Conn, writeTimeout time.Duration) *channel {
	return &channel{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send writes one discrete text message to the peer.
func (c *channel) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the socket, sending a close frame first. Idempotent.
func (c *channel) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *channel) closeWith(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
