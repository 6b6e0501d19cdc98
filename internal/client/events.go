// Package client is the participant side of the chat room: one Session per
// connection to the relay, mirroring its roster and keeping a transcript.
package client

import (
	"errors"

	"github.com/Tyrowin/chatroom/internal/protocol"
)

// ErrNoNickname is returned by Start when the relay asks for a nickname and
// no Prompter can supply one.
var ErrNoNickname = errors.New("no nickname available")

// Observer receives session events. Callbacks run on the session's read
// loop, one at a time, and must not block for long.
type Observer interface {
	// RosterChanged delivers the roster after every insertion or removal.
	RosterChanged(users []*protocol.Identity)
	// HistoryAppended delivers each message added to the transcript.
	HistoryAppended(m protocol.Message)
	// Disconnected reports that the relay went away. It is not called when
	// the session is stopped locally.
	Disconnected(err error)
}

// Prompter supplies candidate nicknames during the handshake. retry is true
// when the previous candidate was refused.
type Prompter interface {
	PromptNickname(retry bool) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(retry bool) (string, error)

// PromptNickname calls f.
func (f PrompterFunc) PromptNickname(retry bool) (string, error) {
	return f(retry)
}

type nopObserver struct{}

func (nopObserver) RosterChanged([]*protocol.Identity) {}
func (nopObserver) HistoryAppended(protocol.Message)   {}
func (nopObserver) Disconnected(error)                 {}
