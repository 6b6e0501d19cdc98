// Package protocol defines the identities that name chat participants,
// including the reserved ALL and SERVER pseudo-users.
package protocol

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

const (
	// AllID is the reserved id addressing every connected participant.
	AllID int32 = 1
	// ServerID is the reserved id of the relay itself.
	ServerID int32 = 2
)

// Identity is the (id, nickname) pair naming a participant. Identities are
// shared by pointer so that a roster update can rename the same value that
// the roster and the transcript hold.
type Identity struct {
	ID int32

	mu       sync.RWMutex
	nickname string
	unknown  bool
}

var (
	// All is the broadcast target. It is never bound to a connection.
	All = &Identity{ID: AllID, nickname: "ALL"}
	// Server is the relay acting as a sender.
	Server = &Identity{ID: ServerID, nickname: "SERVER"}
)

// NewIdentity creates a named identity. A blank nickname leaves it unnamed.
func NewIdentity(id int32, nickname string) *Identity {
	u := &Identity{ID: id}
	if strings.TrimSpace(nickname) != "" {
		u.nickname = nickname
	}
	return u
}

// NewUnknown creates the placeholder identity used for ids that do not
// resolve against a directory.
func NewUnknown(id int32) *Identity {
	return &Identity{ID: id, unknown: true}
}

// Nickname returns the current nickname, empty if none was chosen yet.
func (u *Identity) Nickname() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.nickname
}

// SetNickname renames the identity in place. A named identity is no longer
// considered unknown.
func (u *Identity) SetNickname(nickname string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.nickname = nickname
	if nickname != "" {
		u.unknown = false
	}
}

// Unknown reports whether the identity is a placeholder synthesized for an
// unresolved id.
func (u *Identity) Unknown() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.unknown
}

// Reserved reports whether the identity is ALL or SERVER.
func (u *Identity) Reserved() bool {
	return IsReservedID(u.ID)
}

// IsReservedID reports whether id belongs to a pseudo-user.
func IsReservedID(id int32) bool {
	return id == AllID || id == ServerID
}

func (u *Identity) String() string {
	if u == nil {
		return "<nil>"
	}
	nick := u.Nickname()
	if nick == "" {
		return fmt.Sprintf("unknown (%d)", u.ID)
	}
	return fmt.Sprintf("%s (%d)", nick, u.ID)
}

// raw renders the identity as "<id>\0<nickname>" for roster updates.
func (u *Identity) raw() string {
	return fmt.Sprintf("%d\x00%s", u.ID, u.Nickname())
}

// ValidateNickname checks the shape of a candidate nickname. Uniqueness is
// the caller's concern since it depends on who is currently connected.
func ValidateNickname(nickname string) error {
	if strings.TrimSpace(nickname) == "" {
		return fmt.Errorf("nickname is blank")
	}
	if len(nickname) > MaxNicknameLength {
		return fmt.Errorf("nickname exceeds %d bytes", MaxNicknameLength)
	}
	if !utf8.ValidString(nickname) {
		return fmt.Errorf("nickname is not valid UTF-8")
	}
	for _, r := range nickname {
		if unicode.IsControl(r) {
			return fmt.Errorf("nickname contains control characters")
		}
	}
	return nil
}
