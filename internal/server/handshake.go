package server

import (
	"errors"
	"log"

	"github.com/Tyrowin/chatroom/internal/connection"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

// handshake runs nickname negotiation on a fresh connection:
// allocate an id, prompt with CHOOSE, wait for a reply, repeat until the
// nickname is acceptable, then admit the participant and send it the current
// roster. Nothing is announced if the peer goes away before admission.
func (r *Router) handshake(c *connection.Connection) (*member, error) {
	identity := protocol.NewIdentity(r.allocateID(), "")
	admitted := false
	defer func() {
		if !admitted {
			r.releaseID(identity.ID)
		}
	}()

	prompt := protocol.NewMessage(identity, protocol.Server, protocol.KindInstruction, protocol.ChooseInstruction)
	for {
		if err := c.Send(prompt); err != nil {
			return nil, err
		}

		nickname, err := awaitReply(c)
		if err != nil {
			return nil, err
		}

		if err := protocol.ValidateNickname(nickname); err != nil {
			log.Printf("Rejected nickname %q from %s: %v", nickname, c, err)
			continue
		}

		// The roster goes out under the newcomer's write lock so that no
		// broadcast issued after admission can overtake it.
		var m *member
		err = c.SendBatch(func() ([]protocol.Message, error) {
			previous, admittedMember, err := r.admit(identity, nickname, c)
			if err != nil {
				return nil, err
			}
			m, admitted = admittedMember, true
			return rosterUpdates(previous), nil
		})
		if errors.Is(err, errNicknameTaken) {
			log.Printf("Rejected nickname %q from %s: %v", nickname, c, err)
			continue
		}
		if err != nil {
			if admitted {
				r.remove(c)
			}
			return nil, err
		}
		return m, nil
	}
}

// awaitReply returns the body of the next well-formed frame. Malformed
// frames are skipped without prompting again.
func awaitReply(c *connection.Connection) (string, error) {
	for {
		reply, err := c.Receive()
		if errors.Is(err, protocol.ErrMalformedFrame) {
			log.Printf("Invalid message from %s during handshake: %v", c, err)
			continue
		}
		if err != nil {
			return "", err
		}
		return reply.Body, nil
	}
}

// rosterUpdates tells a newly admitted participant who was already present.
func rosterUpdates(present []*protocol.Identity) []protocol.Message {
	updates := make([]protocol.Message, 0, len(present))
	for _, u := range present {
		updates = append(updates, protocol.NewRosterUpdate(protocol.UpdatePresent, u))
	}
	return updates
}
