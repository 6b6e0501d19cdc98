package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/chatroom/internal/connection"
	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

// startTestServer runs a relay on a loopback port with HTTP disabled.
func startTestServer(t *testing.T, configure func(*Config)) *Server {
	t.Helper()

	cfg := NewConfig()
	cfg.Port = "127.0.0.1:0"
	cfg.HTTPPort = ""
	if configure != nil {
		configure(cfg)
	}

	s := NewServer(cfg)
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s
}

// peer speaks raw frames to the relay, the way a minimal client would.
type peer struct {
	t     *testing.T
	conn  net.Conn
	codec *protocol.Codec
	id    int32
}

func dialPeer(t *testing.T, s *Server) *peer {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr().String(), testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{t: t, conn: conn, codec: protocol.NewCodec(nil)}
}

func (p *peer) read() protocol.Message {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	frame := make([]byte, protocol.MaxMessageSize)
	_, err := io.ReadFull(p.conn, frame)
	require.NoError(p.t, err)
	m, err := p.codec.Decode(frame)
	require.NoError(p.t, err)
	return m
}

// readClosed asserts that the relay closed the connection.
func (p *peer) readClosed() {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(testTimeout)))
	frame := make([]byte, protocol.MaxMessageSize)
	_, err := io.ReadFull(p.conn, frame)
	require.Error(p.t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		require.False(p.t, netErr.Timeout(), "connection still open")
	}
}

func (p *peer) send(recipient, sender int32, kind protocol.Kind, body string) {
	p.t.Helper()
	m := protocol.NewMessage(protocol.NewIdentity(recipient, ""), protocol.NewIdentity(sender, ""), kind, body)
	frame, err := p.codec.Encode(m)
	require.NoError(p.t, err)
	_, err = p.conn.Write(frame)
	require.NoError(p.t, err)
}

func (p *peer) say(recipient int32, body string) {
	p.t.Helper()
	p.send(recipient, p.id, protocol.KindChatMessage, body)
}

// prompt reads the CHOOSE instruction and records the assigned id.
func (p *peer) prompt() {
	p.t.Helper()
	m := p.read()
	require.Equal(p.t, protocol.KindInstruction, m.Kind)
	require.Equal(p.t, protocol.ChooseInstruction, m.Body)
	require.Equal(p.t, protocol.ServerID, m.Sender.ID)
	p.id = m.Recipient.ID
}

func (p *peer) reply(nickname string) {
	p.t.Helper()
	p.send(protocol.ServerID, p.id, protocol.KindReply, nickname)
}

// join completes the handshake and returns the Present updates that came
// before the peer's own Joined announcement.
func (p *peer) join(nickname string) []protocol.Message {
	p.t.Helper()
	p.prompt()
	p.reply(nickname)
	return p.awaitJoined(nickname)
}

func (p *peer) awaitJoined(nickname string) []protocol.Message {
	p.t.Helper()
	var present []protocol.Message
	for {
		m := p.read()
		require.Equal(p.t, protocol.KindUpdate, m.Kind, "unexpected %v", m)
		if m.Update.Kind == protocol.UpdateJoined && m.Update.Subject.ID == p.id {
			require.Equal(p.t, nickname, m.Update.Subject.Nickname())
			return present
		}
		require.Equal(p.t, protocol.UpdatePresent, m.Update.Kind, "unexpected %v", m)
		present = append(present, m)
	}
}

// expectUpdate reads the next frame and checks it is the given update.
func (p *peer) expectUpdate(kind protocol.UpdateKind, nickname string) protocol.Message {
	p.t.Helper()
	m := p.read()
	require.Equal(p.t, protocol.KindUpdate, m.Kind, "unexpected %v", m)
	require.Equal(p.t, kind, m.Update.Kind)
	require.Equal(p.t, nickname, m.Update.Subject.Nickname())
	return m
}

func (p *peer) expectChat(sender int32, body string) protocol.Message {
	p.t.Helper()
	m := p.read()
	require.Equal(p.t, protocol.KindChatMessage, m.Kind, "unexpected %v", m)
	require.Equal(p.t, sender, m.Sender.ID)
	require.Equal(p.t, body, m.Body)
	return m
}

func waitForCount(t *testing.T, r *Router, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return r.Count() == n }, testTimeout, 10*time.Millisecond)
}

// recordingTransport keeps every written frame. With fail set every write
// errors. Reads block until Close.
type recordingTransport struct {
	fail bool

	mu     sync.Mutex
	frames [][]byte
	closed chan struct{}
	once   sync.Once
}

func newRecordingTransport(fail bool) *recordingTransport {
	return &recordingTransport{fail: fail, closed: make(chan struct{})}
}

func (rt *recordingTransport) ReadFrame() ([]byte, error) {
	<-rt.closed
	return nil, io.EOF
}

func (rt *recordingTransport) WriteFrame(frame []byte) error {
	if rt.fail {
		return errors.New("broken pipe")
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.frames = append(rt.frames, append([]byte(nil), frame...))
	return nil
}

func (rt *recordingTransport) Close() error {
	rt.once.Do(func() { close(rt.closed) })
	return nil
}

func (rt *recordingTransport) RemoteAddr() string {
	return "test"
}

// chats decodes the recorded chat message bodies in order.
func (rt *recordingTransport) chats(t *testing.T) []string {
	t.Helper()
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var bodies []string
	codec := protocol.NewCodec(nil)
	for _, frame := range rt.frames {
		m, err := codec.Decode(frame)
		require.NoError(t, err)
		if m.Kind == protocol.KindChatMessage {
			bodies = append(bodies, m.Body)
		}
	}
	return bodies
}

func registerRecorder(t *testing.T, r *Router, id int32, nickname string, fail bool) (*protocol.Identity, *connection.Connection, *recordingTransport) {
	t.Helper()
	rt := newRecordingTransport(fail)
	conn := connection.New(rt, r.codec)
	t.Cleanup(conn.Disconnect)
	identity := protocol.NewIdentity(id, nickname)
	require.NoError(t, r.Register(identity, conn))
	return identity, conn, rt
}
