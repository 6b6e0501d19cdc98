package client

import (
	"errors"
	"fmt"
	"log"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

// handshake learns the local id from the first frame and, if the relay
// asks for one, negotiates a nickname. It returns the first message that is
// not part of the negotiation so the read loop can apply it.
func (s *Session) handshake() (*protocol.Message, error) {
	first, err := s.receive()
	if err != nil {
		return nil, err
	}

	self := protocol.NewIdentity(first.Recipient.ID, "")
	s.mu.Lock()
	s.self = self
	s.mu.Unlock()

	if first.Body != protocol.ChooseInstruction {
		return &first, nil
	}
	if s.prompter == nil {
		return nil, ErrNoNickname
	}

	retry := false
	for {
		candidate, err := s.prompter.PromptNickname(retry)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoNickname, err)
		}
		retry = true

		err = s.conn.Send(protocol.NewMessage(protocol.Server, self, protocol.KindReply, candidate))
		if errors.Is(err, protocol.ErrBodyTooLong) {
			log.Printf("Nickname %q is too long", candidate)
			continue
		}
		if err != nil {
			return nil, err
		}

		// a malformed response counts as no response
		resp, err := s.conn.Receive()
		if errors.Is(err, protocol.ErrMalformedFrame) {
			log.Printf("Invalid handshake response: %v", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		if resp.Body == protocol.ChooseInstruction {
			log.Printf("Nickname %q was refused", candidate)
			continue
		}

		self.SetNickname(candidate)
		return &resp, nil
	}
}

// receive returns the next well-formed message.
func (s *Session) receive() (protocol.Message, error) {
	for {
		m, err := s.conn.Receive()
		if errors.Is(err, protocol.ErrMalformedFrame) {
			log.Printf("Invalid message from relay: %v", err)
			continue
		}
		return m, err
	}
}
