// Package server coordinates participant registration, message routing, and
// connection cleanup for the chat room via the Router type.
package server

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/chatroom/internal/connection"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

var (
	errNicknameTaken = errors.New("nickname already in use")
	errRouterStopped = errors.New("router is shutting down")
	errAlreadyListed = errors.New("identity already registered")
)

// member is the server-side record of an admitted participant: its identity
// and its connection, created together and dropped together.
type member struct {
	identity *protocol.Identity
	conn     *connection.Connection
	limiter  *tokenBucket
}

// Router owns the live roster and the connection registry. A single RWMutex
// guards every read and write of roster, registry and reserved ids; deliveries
// happen on snapshots taken under it.
type Router struct {
	mu       sync.RWMutex
	roster   protocol.Roster
	byID     map[int32]*member
	byConn   map[*connection.Connection]*member
	reserved map[int32]struct{}
	live     map[*connection.Connection]struct{}
	rng      *rand.Rand
	stopped  bool

	codec     *protocol.Codec
	rateLimit RateLimitConfig
	wg        sync.WaitGroup
}

// NewRouter creates an empty chat room.
func NewRouter(rateLimit RateLimitConfig) *Router {
	r := &Router{
		byID:      make(map[int32]*member),
		byConn:    make(map[*connection.Connection]*member),
		reserved:  make(map[int32]struct{}),
		live:      make(map[*connection.Connection]struct{}),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		rateLimit: rateLimit,
	}
	r.codec = protocol.NewCodec(r)
	return r
}

// Lookup implements protocol.Directory over the registered participants.
func (r *Router) Lookup(id int32) (*protocol.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster.Lookup(id)
}

// Users returns the roster in registration order.
func (r *Router) Users() []*protocol.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster.Snapshot()
}

// Count returns the number of registered participants.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.roster.Len()
}

// AddConnection hands an accepted socket to the router. Handshake,
// registration and the read loop run on their own goroutine.
func (r *Router) AddConnection(conn net.Conn) {
	r.AddTransport(connection.NewStreamTransport(conn))
}

// AddTransport is AddConnection for any frame transport.
func (r *Router) AddTransport(t connection.Transport) {
	c := connection.New(t, r.codec)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		log.Printf("Rejecting connection from %s: %v", c.RemoteAddr(), errRouterStopped)
		c.Disconnect()
		return
	}
	r.live[c] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.forget(c)
		r.serve(c)
	}()
}

func (r *Router) forget(c *connection.Connection) {
	r.mu.Lock()
	delete(r.live, c)
	r.mu.Unlock()
}

// Register adds identity to the roster under conn and announces it to
// everyone, the new participant included.
func (r *Router) Register(identity *protocol.Identity, conn *connection.Connection) error {
	if _, _, err := r.admit(identity, identity.Nickname(), conn); err != nil {
		return err
	}
	r.Dispatch(protocol.NewRosterUpdate(protocol.UpdateJoined, identity))
	return nil
}

// admit atomically checks that nickname is free, names identity, and adds
// it to roster and registry. It returns the roster as it was before along
// with the new registry record.
func (r *Router) admit(identity *protocol.Identity, nickname string, conn *connection.Connection) ([]*protocol.Identity, *member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil, nil, errRouterStopped
	}
	if _, taken := r.roster.LookupNickname(nickname); taken {
		return nil, nil, errNicknameTaken
	}
	if _, taken := r.byID[identity.ID]; taken {
		return nil, nil, errAlreadyListed
	}

	previous := r.roster.Snapshot()
	identity.SetNickname(nickname)
	m := &member{identity: identity, conn: conn, limiter: newTokenBucket(r.rateLimit)}
	r.roster.Add(identity)
	r.byID[identity.ID] = m
	r.byConn[conn] = m
	delete(r.reserved, identity.ID)
	clientCount := r.roster.Len()

	log.Printf("Client %s registered from %s. Total clients: %d", identity, conn.RemoteAddr(), clientCount)
	return previous, m, nil
}

// Unregister removes conn's participant and announces the departure. It is
// a no-op for connections that are not registered.
func (r *Router) Unregister(conn *connection.Connection) {
	m, ok := r.remove(conn)
	if !ok {
		return
	}
	conn.Disconnect()
	r.Dispatch(protocol.NewRosterUpdate(protocol.UpdateLeft, m.identity))
}

func (r *Router) remove(conn *connection.Connection) (*member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byConn[conn]
	if !ok {
		return nil, false
	}
	delete(r.byConn, conn)
	delete(r.byID, m.identity.ID)
	r.roster.Remove(m.identity)
	log.Printf("Client %s unregistered. Total clients: %d", m.identity, r.roster.Len())
	return m, true
}

// Dispatch delivers m. Messages to ALL go to every registered connection;
// private messages go to the recipient and are echoed to the sender unless
// the sender is the server. A failed send is logged and never stops
// delivery to the others. Unknown recipients are logged and dropped.
func (r *Router) Dispatch(m protocol.Message) {
	if m.Recipient == nil || m.Sender == nil {
		log.Printf("Dropping message without recipient or sender: %v", m)
		return
	}

	if m.Recipient.ID == protocol.AllID {
		targets := r.broadcastTargets()
		failed := 0
		for _, target := range targets {
			if !r.deliver(target, m) {
				failed++
			}
		}
		logDispatch(m, true)
		if failed > 0 {
			log.Printf("Broadcast reached %d of %d clients", len(targets)-failed, len(targets))
		}
		return
	}

	recipient, sender := r.privateTargets(m)
	if recipient == nil {
		log.Printf("Recipient %v not found", m.Recipient)
		logDispatch(m, false)
		return
	}
	r.deliver(recipient, m)
	if sender != nil && sender != recipient {
		r.deliver(sender, m)
	}
	logDispatch(m, true)
}

func (r *Router) broadcastTargets() []*member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]*member, 0, r.roster.Len())
	for _, u := range r.roster.Snapshot() {
		targets = append(targets, r.byID[u.ID])
	}
	return targets
}

func (r *Router) privateTargets(m protocol.Message) (recipient, sender *member) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recipient = r.byID[m.Recipient.ID]
	if m.Sender.ID != protocol.ServerID {
		sender = r.byID[m.Sender.ID]
	}
	return recipient, sender
}

func (r *Router) deliver(target *member, m protocol.Message) bool {
	if err := target.conn.Send(m); err != nil {
		log.Printf("Error sending %s message to %s: %v", m.Kind, target.identity, err)
		return false
	}
	return true
}

// handleInbound processes one frame read from a registered participant.
func (r *Router) handleInbound(from *member, m protocol.Message) {
	// drop forged sender fields
	if m.Sender != from.identity {
		log.Printf("Discarding message from %s claiming to be %v", from.identity, m.Sender)
		return
	}

	if !from.limiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message",
			from.identity, r.rateLimit.Burst, r.rateLimit.RefillInterval)
		return
	}

	if m.Recipient.ID != protocol.ServerID {
		r.Dispatch(m)
	}
}

// allocateID picks a random id that is neither reserved, live, nor held by
// another handshake in progress. The id stays held until release or admit.
func (r *Router) allocateID() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		id := r.rng.Int32()
		// 0 is what an all-zero frame carries
		if id == 0 || protocol.IsReservedID(id) {
			continue
		}
		if _, taken := r.byID[id]; taken {
			continue
		}
		if _, taken := r.reserved[id]; taken {
			continue
		}
		r.reserved[id] = struct{}{}
		return id
	}
}

func (r *Router) releaseID(id int32) {
	r.mu.Lock()
	delete(r.reserved, id)
	r.mu.Unlock()
}

// Shutdown disconnects every connection, registered or still handshaking,
// and waits for their goroutines to finish or the timeout to pass.
func (r *Router) Shutdown(timeout time.Duration) error {
	log.Println("Shutting down all client connections...")

	r.mu.Lock()
	r.stopped = true
	conns := make([]*connection.Connection, 0, len(r.live))
	for c := range r.live {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
	log.Printf("Closed %d client connections", len(conns))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Router shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Router shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

func logDispatch(m protocol.Message, successful bool) {
	switch {
	case !successful:
		log.Printf("Failed to deliver %s from %v to %v: %q", m.Kind, m.Sender, m.Recipient, m.Body)
	case m.Recipient.ID == protocol.AllID:
		log.Printf("%v to all: %s", m.Sender, m.Body)
	default:
		log.Printf("%v to %v: %s", m.Sender, m.Recipient, m.Body)
	}
}
