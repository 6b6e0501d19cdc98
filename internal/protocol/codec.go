package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const updateHeaderSize = HeaderSize + 4

// Codec translates between Messages and frames. Ids found in a frame are
// resolved through Directory.
type Codec struct {
	Directory Directory

	// RenameSubjects lets a decoded roster update rename the live identity it
	// refers to. Clients set it so their roster follows the server; the
	// server leaves it off so peers cannot rename each other.
	RenameSubjects bool
}

// NewCodec returns a codec resolving ids through dir.
func NewCodec(dir Directory) *Codec {
	return &Codec{Directory: dir}
}

// Encode renders m as a frame of exactly MaxMessageSize bytes.
func (c *Codec) Encode(m Message) ([]byte, error) {
	if m.Recipient == nil || m.Sender == nil {
		return nil, errors.New("message needs a recipient and a sender")
	}
	if !m.Kind.valid() {
		return nil, fmt.Errorf("unknown message kind %d", int32(m.Kind))
	}

	frame := make([]byte, MaxMessageSize)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(m.Recipient.ID))
	binary.LittleEndian.PutUint32(frame[4:8], uint32(m.Sender.ID))
	binary.LittleEndian.PutUint32(frame[8:12], uint32(m.Kind))

	if m.Kind == KindUpdate {
		if m.Update == nil || m.Update.Subject == nil {
			return nil, errors.New("update message has no subject")
		}
		raw := m.Update.Subject.raw()
		if len(raw) > MaxMessageSize-updateHeaderSize {
			return nil, fmt.Errorf("%w: update subject takes %d bytes", ErrBodyTooLong, len(raw))
		}
		binary.LittleEndian.PutUint32(frame[12:16], uint32(m.Update.Kind))
		copy(frame[updateHeaderSize:], raw)
		return frame, nil
	}

	if len(m.Body) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrBodyTooLong, len(m.Body), MaxBodySize)
	}
	copy(frame[HeaderSize:], m.Body)
	return frame, nil
}

// Decode parses a frame. Length, kind and update subject problems are
// reported as ErrMalformedFrame; unresolvable ids are not errors.
func (c *Codec) Decode(data []byte) (Message, error) {
	if len(data) < HeaderSize || len(data) > MaxMessageSize {
		return Message{}, fmt.Errorf("%w: length %d outside [%d, %d]", ErrMalformedFrame, len(data), HeaderSize, MaxMessageSize)
	}

	kind := Kind(int32(binary.LittleEndian.Uint32(data[8:12])))
	if !kind.valid() {
		return Message{}, fmt.Errorf("%w: unknown kind %d", ErrMalformedFrame, int32(kind))
	}

	m := Message{
		Recipient: Resolve(c.Directory, int32(binary.LittleEndian.Uint32(data[0:4]))),
		Sender:    Resolve(c.Directory, int32(binary.LittleEndian.Uint32(data[4:8]))),
		Kind:      kind,
	}
	if kind != KindUpdate {
		m.Body = strings.TrimRight(string(data[HeaderSize:]), "\x00")
		return m, nil
	}

	update, err := c.decodeUpdate(data)
	if err != nil {
		return Message{}, err
	}
	m.Update = update
	m.Body = describeUpdate(update.Kind, update.Subject)
	return m, nil
}

// decodeUpdate is the second pass over an update frame, reading the update
// kind and the "<id>\0<nickname>" subject that follow the header.
func (c *Codec) decodeUpdate(data []byte) (*RosterUpdate, error) {
	if len(data) < updateHeaderSize {
		return nil, fmt.Errorf("%w: update frame of %d bytes", ErrMalformedFrame, len(data))
	}
	kind := UpdateKind(int32(binary.LittleEndian.Uint32(data[12:16])))
	if !kind.valid() {
		return nil, fmt.Errorf("%w: unknown update kind %d", ErrMalformedFrame, int32(kind))
	}

	raw := strings.TrimRight(string(data[updateHeaderSize:]), "\x00")
	idText, nickname, _ := strings.Cut(raw, "\x00")
	id, err := strconv.ParseInt(idText, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: update subject %q: %v", ErrMalformedFrame, idText, err)
	}

	if c.Directory != nil {
		if live, ok := c.Directory.Lookup(int32(id)); ok {
			if c.RenameSubjects && strings.TrimSpace(nickname) != "" {
				live.SetNickname(nickname)
			}
			return &RosterUpdate{Kind: kind, Subject: live}, nil
		}
	}
	return &RosterUpdate{Kind: kind, Subject: NewIdentity(int32(id), nickname)}, nil
}
