// Package testhelpers provides common utilities for end-to-end tests of the
// chat room relay.
//
// It starts relays on loopback ports, joins client sessions over TCP or
// WebSocket, and records what each session observes so tests can wait for
// specific transcript lines instead of sleeping.
package testhelpers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/chatroom/internal/client"
	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/server"
)

// DefaultTimeout bounds every wait in these helpers.
const DefaultTimeout = 3 * time.Second

// TestOrigin is the Origin header sent with WebSocket upgrades.
const TestOrigin = "http://localhost:8080"

// Relay is a running server plus the means to stop it.
type Relay struct {
	Server *server.Server

	cancel context.CancelFunc
	errCh  chan error
	once   sync.Once
	err    error
}

// StartRelay runs a relay with TCP and HTTP listeners on loopback ports.
// configure may adjust the config before the relay starts. The relay is
// stopped when the test ends if the test did not stop it.
func StartRelay(t *testing.T, configure func(*server.Config)) *Relay {
	t.Helper()

	cfg := server.NewConfig()
	cfg.Port = "127.0.0.1:0"
	cfg.HTTPPort = "127.0.0.1:0"
	if configure != nil {
		configure(cfg)
	}

	s := server.NewServer(cfg)
	if err := s.Listen(); err != nil {
		t.Fatalf("Failed to start relay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{Server: s, cancel: cancel, errCh: make(chan error, 1)}
	go func() {
		r.errCh <- s.Run(ctx)
	}()

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("Relay stopped with error: %v", err)
		}
	})
	return r
}

// Stop cancels the relay and waits for Run to return.
func (r *Relay) Stop() error {
	r.once.Do(func() {
		r.cancel()
		select {
		case r.err = <-r.errCh:
		case <-time.After(10 * time.Second):
			r.err = fmt.Errorf("relay did not stop")
		}
	})
	return r.err
}

// TCPAddr returns the relay's frame listener address.
func (r *Relay) TCPAddr() string {
	return r.Server.Addr().String()
}

// WebSocketURL returns the relay's WebSocket endpoint.
func (r *Relay) WebSocketURL() string {
	return "ws://" + r.Server.HTTPAddr().String() + "/ws"
}

// Collector is an Observer that keeps everything a session reports.
type Collector struct {
	mu           sync.Mutex
	history      []protocol.Message
	roster       []string
	disconnected []error
}

// RosterChanged implements client.Observer.
func (c *Collector) RosterChanged(users []*protocol.Identity) {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Nickname())
	}
	c.mu.Lock()
	c.roster = names
	c.mu.Unlock()
}

// HistoryAppended implements client.Observer.
func (c *Collector) HistoryAppended(m protocol.Message) {
	c.mu.Lock()
	c.history = append(c.history, m)
	c.mu.Unlock()
}

// Disconnected implements client.Observer.
func (c *Collector) Disconnected(err error) {
	c.mu.Lock()
	c.disconnected = append(c.disconnected, err)
	c.mu.Unlock()
}

// Bodies returns the transcript bodies in order.
func (c *Collector) Bodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	bodies := make([]string, 0, len(c.history))
	for _, m := range c.history {
		bodies = append(bodies, m.Body)
	}
	return bodies
}

// Roster returns the nicknames from the latest roster event.
func (c *Collector) Roster() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.roster...)
}

// Disconnects returns the errors reported through Disconnected.
func (c *Collector) Disconnects() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.disconnected...)
}

// Count returns how many transcript entries have the given body.
func (c *Collector) Count(body string) int {
	n := 0
	for _, b := range c.Bodies() {
		if b == body {
			n++
		}
	}
	return n
}

// Participant is a joined session and its collector.
type Participant struct {
	Session  *client.Session
	Observed *Collector
}

// JoinTCP connects over TCP and completes the handshake as nickname.
func JoinTCP(t *testing.T, r *Relay, nickname string) *Participant {
	t.Helper()
	obs := &Collector{}
	s, err := client.Dial(context.Background(), r.TCPAddr(), options(nickname, obs))
	if err != nil {
		t.Fatalf("Failed to dial relay: %v", err)
	}
	return start(t, s, obs)
}

// JoinWebSocket connects over WebSocket and completes the handshake.
func JoinWebSocket(t *testing.T, r *Relay, nickname string) *Participant {
	t.Helper()
	obs := &Collector{}
	opts := options(nickname, obs)
	opts.Header = http.Header{}
	opts.Header.Set("Origin", TestOrigin)
	s, err := client.DialWebSocket(context.Background(), r.WebSocketURL(), opts)
	if err != nil {
		t.Fatalf("Failed to dial relay: %v", err)
	}
	return start(t, s, obs)
}

func options(nickname string, obs *Collector) client.Options {
	return client.Options{
		Prompter: client.PrompterFunc(func(retry bool) (string, error) {
			if retry {
				return "", fmt.Errorf("nickname %q refused", nickname)
			}
			return nickname, nil
		}),
		Observer: obs,
	}
}

func start(t *testing.T, s *client.Session, obs *Collector) *Participant {
	t.Helper()
	t.Cleanup(s.Stop)
	if err := s.Start(); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	return &Participant{Session: s, Observed: obs}
}

// WaitFor polls cond until it holds or the default timeout passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// WaitForBody waits until p's transcript holds body at least n times.
func WaitForBody(t *testing.T, p *Participant, body string, n int) {
	t.Helper()
	WaitFor(t, fmt.Sprintf("%q x%d in %s's transcript", body, n, p.Session.Self()), func() bool {
		return p.Observed.Count(body) >= n
	})
}

// WaitForUsers waits until the relay has exactly n participants.
func WaitForUsers(t *testing.T, r *Relay, n int) {
	t.Helper()
	WaitFor(t, fmt.Sprintf("%d participants", n), func() bool {
		return r.Server.Router().Count() == n
	})
}
