package session

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeGracePeriod = time.Second

// WebSocketConn presents a WebSocket connection as a byte stream. Each
// inbound data message is read as a chunk and may hold any part of a frame;
// each Write is sent as one text message.
type WebSocketConn struct {
	conn   *websocket.Conn
	reader io.Reader

	mu       sync.Mutex
	deadline time.Time
}

// NewWebSocketConn wraps conn. A positive readLimit caps inbound messages.
func NewWebSocketConn(conn *websocket.Conn, readLimit int64) *WebSocketConn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &WebSocketConn{conn: conn}
}

// Read implements io.Reader across message boundaries.
func (c *WebSocketConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.conn.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

// Write sends p as a single text message.
func (c *WebSocketConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	deadline := c.deadline
	c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetWriteDeadline applies t to the next Write and to any write already
// blocked on the underlying connection. It may be called concurrently with
// Write.
func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.deadline = t
	c.mu.Unlock()
	return c.conn.NetConn().SetWriteDeadline(t)
}

// Close sends a normal closure and closes the connection.
func (c *WebSocketConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}
