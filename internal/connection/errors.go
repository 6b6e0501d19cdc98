package connection

import (
	"errors"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

// ErrPeerDisconnected reports that the remote side is gone, either by an
// orderly close or an I/O failure. It is terminal for the connection.
var ErrPeerDisconnected = errors.New("peer disconnected")

// IsExpectedCloseError checks if an error is expected during connection closure.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
