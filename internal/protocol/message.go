package protocol

import "fmt"

const (
	// MaxMessageSize is the exact encoded size of every frame.
	MaxMessageSize = 76
	// HeaderSize covers the recipient, sender and kind fields.
	HeaderSize = 3 * 4
	// MaxBodySize is the room left for the UTF-8 body.
	MaxBodySize = MaxMessageSize - HeaderSize
	// MaxNicknameLength bounds nicknames in bytes. A roster update spends 4
	// bytes on its kind and up to 11 on "<id>\0", leaving 49 for the name.
	MaxNicknameLength = MaxBodySize - 4 - 11

	// ChooseInstruction is the instruction body asking a client to pick a
	// nickname.
	ChooseInstruction = "CHOOSE"
)

// Kind discriminates the payload of a Message.
type Kind int32

const (
	KindInstruction Kind = iota
	KindReply
	KindUpdate
	KindChatMessage
)

func (k Kind) valid() bool {
	return k >= KindInstruction && k <= KindChatMessage
}

func (k Kind) String() string {
	switch k {
	case KindInstruction:
		return "Instruction"
	case KindReply:
		return "Reply"
	case KindUpdate:
		return "Update"
	case KindChatMessage:
		return "ChatMessage"
	default:
		return fmt.Sprintf("Kind(%d)", int32(k))
	}
}

// UpdateKind says what happened to the subject of a roster update.
type UpdateKind int32

const (
	// UpdatePresent describes a participant already in the room.
	UpdatePresent UpdateKind = iota
	// UpdateJoined announces a participant that completed the handshake.
	UpdateJoined
	// UpdateLeft announces a participant whose connection went away.
	UpdateLeft
)

func (k UpdateKind) valid() bool {
	return k >= UpdatePresent && k <= UpdateLeft
}

func (k UpdateKind) String() string {
	switch k {
	case UpdatePresent:
		return "Present"
	case UpdateJoined:
		return "Joined"
	case UpdateLeft:
		return "Left"
	default:
		return fmt.Sprintf("UpdateKind(%d)", int32(k))
	}
}

// Message is one unit of chat traffic. Update is set exactly when Kind is
// KindUpdate; for every other kind Body is the payload.
type Message struct {
	Recipient *Identity
	Sender    *Identity
	Kind      Kind
	Body      string
	Update    *RosterUpdate
}

// RosterUpdate is the authoritative part of an update message. The body of
// the enclosing Message is only a human readable rendering of it.
type RosterUpdate struct {
	Kind    UpdateKind
	Subject *Identity
}

// NewMessage builds a non-update message.
func NewMessage(recipient, sender *Identity, kind Kind, body string) Message {
	return Message{Recipient: recipient, Sender: sender, Kind: kind, Body: body}
}

// NewRosterUpdate builds the server-originated broadcast announcing a change
// to subject.
func NewRosterUpdate(kind UpdateKind, subject *Identity) Message {
	return Message{
		Recipient: All,
		Sender:    Server,
		Kind:      KindUpdate,
		Body:      describeUpdate(kind, subject),
		Update:    &RosterUpdate{Kind: kind, Subject: subject},
	}
}

// IsPrivate reports whether the message targets a single participant.
func (m Message) IsPrivate() bool {
	return m.Recipient != nil && m.Recipient.ID != AllID
}

// FormattedBody renders the body as a transcript line would show it.
func (m Message) FormattedBody() string {
	if m.IsPrivate() {
		return fmt.Sprintf("(to %s) %s", m.Recipient.Nickname(), m.Body)
	}
	return m.Body
}

func (m Message) String() string {
	return fmt.Sprintf("%s %v -> %v: %q", m.Kind, m.Sender, m.Recipient, m.Body)
}

func describeUpdate(kind UpdateKind, subject *Identity) string {
	nick := ""
	if subject != nil {
		nick = subject.Nickname()
	}
	switch kind {
	case UpdatePresent:
		return fmt.Sprintf("%s is here.", nick)
	case UpdateJoined:
		return fmt.Sprintf("%s joined the chat room.", nick)
	case UpdateLeft:
		return fmt.Sprintf("%s left the chat room.", nick)
	default:
		return ""
	}
}
