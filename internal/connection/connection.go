// Package connection wraps one transport to a remote peer with frame
// encoding, a single read loop and idempotent teardown.
package connection

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/google/uuid"
)

// Connection is one bidirectional channel to a remote peer. Any number of
// goroutines may Send; exactly one should run Listen.
type Connection struct {
	id        string
	transport Transport
	codec     *protocol.Codec

	writeMu   sync.Mutex
	active    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New wraps transport. The connection starts active.
func New(transport Transport, codec *protocol.Codec) *Connection {
	c := &Connection{
		id:        uuid.NewString(),
		transport: transport,
		codec:     codec,
		done:      make(chan struct{}),
	}
	c.active.Store(true)
	return c
}

// ID is a random identifier used to correlate log lines.
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr returns the peer's address as reported by the transport.
func (c *Connection) RemoteAddr() string {
	return c.transport.RemoteAddr()
}

// Active reports whether Disconnect has not been called yet.
func (c *Connection) Active() bool {
	return c.active.Load()
}

// Done is closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Send encodes m and writes it as one frame. Encoding problems are returned
// as is; any write failure is reported as ErrPeerDisconnected.
func (c *Connection) Send(m protocol.Message) error {
	frame, err := c.codec.Encode(m)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.Active() {
		return fmt.Errorf("%w: connection %s already closed", ErrPeerDisconnected, c.shortID())
	}
	if err := c.transport.WriteFrame(frame); err != nil {
		return fmt.Errorf("%w: write to %s: %v", ErrPeerDisconnected, c.RemoteAddr(), err)
	}
	return nil
}

// SendBatch holds the write lock while prepare runs and while the messages
// it returns are written, so no concurrent Send lands before or between
// them. An error from prepare is returned as is and nothing is written.
// prepare must not call Send on c.
func (c *Connection) SendBatch(prepare func() ([]protocol.Message, error)) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	batch, err := prepare()
	if err != nil {
		return err
	}

	for _, m := range batch {
		frame, err := c.codec.Encode(m)
		if err != nil {
			return err
		}
		if !c.Active() {
			return fmt.Errorf("%w: connection %s already closed", ErrPeerDisconnected, c.shortID())
		}
		if err := c.transport.WriteFrame(frame); err != nil {
			return fmt.Errorf("%w: write to %s: %v", ErrPeerDisconnected, c.RemoteAddr(), err)
		}
	}
	return nil
}

// Receive blocks for exactly one frame. A failed or empty read tears the
// connection down and yields ErrPeerDisconnected. A frame that does not
// decode yields protocol.ErrMalformedFrame and leaves the connection up.
func (c *Connection) Receive() (protocol.Message, error) {
	if !c.Active() {
		return protocol.Message{}, fmt.Errorf("%w: connection %s already closed", ErrPeerDisconnected, c.shortID())
	}

	frame, err := c.transport.ReadFrame()
	if err == nil && len(frame) == 0 {
		err = errors.New("empty read")
	}
	if err != nil {
		c.Disconnect()
		return protocol.Message{}, fmt.Errorf("%w: read from %s: %v", ErrPeerDisconnected, c.RemoteAddr(), err)
	}

	return c.codec.Decode(frame)
}

// Listen is the connection's read loop. Decoded messages go to onMessage;
// malformed frames go to onMalformed (which may be nil) and are otherwise
// skipped. It returns nil if the connection was already inactive and
// ErrPeerDisconnected once the link goes away, whichever side closed it.
func (c *Connection) Listen(onMessage func(protocol.Message), onMalformed func(error)) error {
	for c.Active() {
		msg, err := c.Receive()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				if onMalformed != nil {
					onMalformed(err)
				}
				continue
			}
			return err
		}
		onMessage(msg)
	}
	return nil
}

// Disconnect tears the connection down. It is safe to call repeatedly and
// concurrently with Listen.
func (c *Connection) Disconnect() {
	c.closeOnce.Do(func() {
		c.active.Store(false)
		if err := c.transport.Close(); err != nil && !IsExpectedCloseError(err) {
			log.Printf("Error closing connection to %s: %v", c.RemoteAddr(), err)
		}
		close(c.done)
	})
}

func (c *Connection) String() string {
	return fmt.Sprintf("%s (%s)", c.RemoteAddr(), c.shortID())
}

func (c *Connection) shortID() string {
	if len(c.id) > 8 {
		return c.id[:8]
	}
	return c.id
}
