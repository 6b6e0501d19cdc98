package client

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/Tyrowin/chatroom/internal/connection"
	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/gorilla/websocket"
)

const defaultDialTimeout = 5 * time.Second

// Options configures a Session created by Dial or DialWebSocket.
type Options struct {
	Prompter Prompter
	Observer Observer

	// DialTimeout bounds connection establishment, including the WebSocket
	// upgrade. Zero means five seconds.
	DialTimeout time.Duration
	// Header is sent with the WebSocket upgrade request, typically to set
	// an Origin the relay accepts.
	Header http.Header
}

func (o Options) dialTimeout() time.Duration {
	if o.DialTimeout > 0 {
		return o.DialTimeout
	}
	return defaultDialTimeout
}

// Dial connects to the relay's TCP listener at addr. The returned session
// has not started; call Start to run the handshake.
func Dial(ctx context.Context, addr string, opts Options) (*Session, error) {
	dialer := net.Dialer{Timeout: opts.dialTimeout()}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	log.Printf("Connected to %s", conn.RemoteAddr())
	return NewSession(connection.NewStreamTransport(conn), opts.Prompter, opts.Observer), nil
}

// DialWebSocket connects to the relay's WebSocket endpoint, for example
// "ws://localhost:8080/ws".
func DialWebSocket(ctx context.Context, url string, opts Options) (*Session, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.dialTimeout(),
	}

	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Printf("Connected to %s", url)
	return NewSession(connection.NewWebSocketTransport(conn, protocol.MaxMessageSize), opts.Prompter, opts.Observer), nil
}
