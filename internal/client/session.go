package client

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/Tyrowin/chatroom/internal/connection"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

// Session owns one connection to the relay. It mirrors the relay's roster
// from the updates the relay sends and keeps the transcript of everything
// shown to the participant.
type Session struct {
	conn     *connection.Connection
	prompter Prompter
	observer Observer

	mu      sync.RWMutex
	self    *protocol.Identity
	roster  protocol.Roster
	history []protocol.Message
	err     error

	started   atomic.Bool
	stopping  atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession wraps transport. Either collaborator may be nil: without an
// observer events are dropped, and without a prompter the handshake fails
// with ErrNoNickname.
func NewSession(transport connection.Transport, prompter Prompter, observer Observer) *Session {
	if observer == nil {
		observer = nopObserver{}
	}
	s := &Session{
		prompter: prompter,
		observer: observer,
		done:     make(chan struct{}),
	}
	codec := protocol.NewCodec(s)
	codec.RenameSubjects = true
	s.conn = connection.New(transport, codec)
	return s
}

// Lookup implements protocol.Directory over the mirrored roster and the
// local participant.
func (s *Session) Lookup(id int32) (*protocol.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.roster.Lookup(id); ok {
		return u, true
	}
	if s.self != nil && s.self.ID == id {
		return s.self, true
	}
	return nil, false
}

// Start runs the nickname handshake and then the read loop in the
// background. It returns once the relay has accepted a nickname.
func (s *Session) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("session already started")
	}

	pending, err := s.handshake()
	if err != nil {
		s.conn.Disconnect()
		s.finish(err)
		return err
	}

	log.Printf("Joined as %s", s.Self())
	go s.readLoop(pending)
	return nil
}

func (s *Session) readLoop(pending *protocol.Message) {
	if pending != nil {
		s.handle(*pending)
	}
	err := s.conn.Listen(s.handle, func(err error) {
		log.Printf("Invalid message from relay: %v", err)
	})
	s.finish(err)
}

func (s *Session) finish(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		if s.stopping.Load() {
			log.Println("Session stopped")
		} else {
			log.Printf("Disconnected from relay: %v", err)
			s.observer.Disconnected(err)
		}
		close(s.done)
	})
}

// handle applies one inbound message. Only the relay may change the roster;
// chat from other participants goes to the transcript; anything else is
// ignored.
func (s *Session) handle(m protocol.Message) {
	if m.Sender == nil {
		return
	}

	if m.Sender.ID != protocol.ServerID {
		if m.Kind == protocol.KindChatMessage {
			s.appendHistory(m)
		}
		return
	}

	if m.Kind != protocol.KindUpdate || m.Update == nil {
		return
	}
	if users, changed := s.applyUpdate(*m.Update); changed {
		s.observer.RosterChanged(users)
	}
	s.appendHistory(m)
}

func (s *Session) applyUpdate(u protocol.RosterUpdate) ([]*protocol.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed bool
	switch u.Kind {
	case protocol.UpdatePresent, protocol.UpdateJoined:
		changed = s.roster.Add(u.Subject)
	case protocol.UpdateLeft:
		changed = s.roster.Remove(u.Subject)
	}
	if !changed {
		return nil, false
	}
	return s.roster.Snapshot(), true
}

func (s *Session) appendHistory(m protocol.Message) {
	s.mu.Lock()
	s.history = append(s.history, m)
	s.mu.Unlock()
	s.observer.HistoryAppended(m)
}

// Send forwards m to the relay as is.
func (s *Session) Send(m protocol.Message) error {
	return s.conn.Send(m)
}

// SendMessage sends body to target, which is protocol.All or a participant
// from Users.
func (s *Session) SendMessage(target *protocol.Identity, body string) error {
	self := s.Self()
	if self == nil {
		return fmt.Errorf("%w: session has not joined", connection.ErrPeerDisconnected)
	}
	return s.Send(protocol.NewMessage(target, self, protocol.KindChatMessage, body))
}

// Self returns the local participant, nil until the relay has assigned an id.
func (s *Session) Self() *protocol.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// Users returns the mirrored roster in the order participants appeared.
func (s *Session) Users() []*protocol.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.Snapshot()
}

// FindUser looks a participant up by nickname.
func (s *Session) FindUser(nickname string) (*protocol.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roster.LookupNickname(nickname)
}

// History returns a copy of the transcript.
func (s *Session) History() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Stop disconnects from the relay. It does not wait for the read loop; use
// Done for that.
func (s *Session) Stop() {
	s.stopping.Store(true)
	s.conn.Disconnect()
	if s.started.CompareAndSwap(false, true) {
		s.finish(nil)
	}
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, nil while it is running or after Stop
// on a session that never started.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}
