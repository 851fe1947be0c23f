package session

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

var (
	// ErrTransportClosed wraps I/O failures on the underlying stream.
	ErrTransportClosed = errors.New("session: transport closed")
	// ErrSessionClosed is returned by writes after Close.
	ErrSessionClosed = errors.New("session: closed")
	// ErrSendQueueFull is returned by Deliver when the peer is not draining.
	ErrSendQueueFull = errors.New("session: send queue full")
)

// isExpectedCloseError reports whether err is the ordinary result of either
// side closing the connection.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
