package integration

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Tyrowin/chatroom/internal/connection"
	"github.com/Tyrowin/chatroom/test/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGracefulShutdownWithClients verifies that every participant is
// disconnected and told so when the relay stops.
func TestGracefulShutdownWithClients(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)

	const numClients = 5
	participants := joinMany(t, relay, numClients)
	ws := testhelpers.JoinWebSocket(t, relay, "ws")
	participants = append(participants, ws)

	require.NoError(t, relay.Stop())

	for i, p := range participants {
		select {
		case <-p.Session.Done():
		case <-time.After(testhelpers.DefaultTimeout):
			t.Fatalf("Client %d still connected after shutdown", i)
		}
		disconnects := p.Observed.Disconnects()
		require.Len(t, disconnects, 1, "client %d", i)
		assert.True(t, errors.Is(disconnects[0], connection.ErrPeerDisconnected), "client %d: %v", i, disconnects[0])
	}
	assert.Zero(t, relay.Server.Router().Count())
}

// TestNoClientsShutdown verifies a relay with nobody connected stops
// promptly and releases its port.
func TestNoClientsShutdown(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	addr := relay.TCPAddr()

	start := time.Now()
	require.NoError(t, relay.Stop())
	assert.Less(t, time.Since(start), 2*time.Second)

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err, "port should be free after shutdown")
	_ = ln.Close()
}

// TestConcurrentShutdown verifies Stop is safe to call from several
// goroutines at once.
func TestConcurrentShutdown(t *testing.T) {
	relay := testhelpers.StartRelay(t, nil)
	joinMany(t, relay, 3)

	errs := make(chan error, 3)
	for range 3 {
		go func() {
			errs <- relay.Stop()
		}()
	}
	for range 3 {
		assert.NoError(t, <-errs)
	}
}
