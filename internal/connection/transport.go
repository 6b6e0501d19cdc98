// Package connection provides frame transports for TCP streams and WebSocket
// connections. Both carry the same fixed-size protocol frames.
package connection

import (
	"bufio"
	"io"
	"log"
	"net"
	"time"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/gorilla/websocket"
)

// Transport moves whole frames over one bidirectional link.
type Transport interface {
	// ReadFrame blocks until one frame is available.
	ReadFrame() ([]byte, error)
	// WriteFrame writes and flushes one frame. Callers serialise writes.
	WriteFrame(frame []byte) error
	// Close shuts the link down in both directions and releases it.
	Close() error
	RemoteAddr() string
}

type streamTransport struct {
	conn net.Conn
	w    *bufio.Writer
}

// NewStreamTransport frames a byte stream into fixed-size blocks of
// protocol.MaxMessageSize bytes.
func NewStreamTransport(conn net.Conn) Transport {
	return &streamTransport{
		conn: conn,
		w:    bufio.NewWriterSize(conn, protocol.MaxMessageSize),
	}
}

func (t *streamTransport) ReadFrame() ([]byte, error) {
	buf := make([]byte, protocol.MaxMessageSize)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *streamTransport) WriteFrame(frame []byte) error {
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	return t.w.Flush()
}

func (t *streamTransport) Close() error {
	if tcp, ok := t.conn.(*net.TCPConn); ok {
		_ = tcp.CloseRead()
		_ = tcp.CloseWrite()
	}
	return t.conn.Close()
}

func (t *streamTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

type webSocketTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport carries one frame per binary WebSocket message.
// Messages larger than readLimit bytes terminate the connection; smaller
// messages of the wrong size are left for the codec to reject.
func NewWebSocketTransport(conn *websocket.Conn, readLimit int64) Transport {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &webSocketTransport{conn: conn}
}

func (t *webSocketTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, io.EOF
	}
	return data, nil
}

func (t *webSocketTransport) WriteFrame(frame []byte) error {
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *webSocketTransport) Close() error {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := t.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !IsExpectedCloseError(err) {
		log.Printf("Error writing close message to %s: %v", t.RemoteAddr(), err)
	}
	return t.conn.Close()
}

func (t *webSocketTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
