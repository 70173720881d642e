package packet

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxChatBytes caps a SOCIAL/SAY payload.
const MaxChatBytes = 256

// Message is one decoded frame: who sent it, what kind of event it is, and
// the raw payload whose length is implied by the transport frame.
type Message struct {
	Sender  uint16
	Domain  Domain
	Sub     uint8
	Payload []byte
}

func (m Message) Name() string { return EventName(m.Domain, m.Sub) }

func (m Message) Is(d Domain, sub uint8) bool { return m.Domain == d && m.Sub == sub }

// Encode renders the server→client frame.
func (m Message) Encode() []byte {
	b := make([]byte, HeaderSize, HeaderSize+len(m.Payload))
	binary.LittleEndian.PutUint16(b, m.Sender)
	b[2] = byte(m.Domain)
	b[3] = m.Sub
	return append(b, m.Payload...)
}

// DecodeMessage parses a server→client frame. The payload aliases frame.
func DecodeMessage(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return Message{}, fmt.Errorf("frame header: %d bytes: %w", len(frame), ErrMalformedRecord)
	}
	return Message{
		Sender:  binary.LittleEndian.Uint16(frame),
		Domain:  Domain(frame[2]),
		Sub:     frame[3],
		Payload: frame[HeaderSize:],
	}, nil
}

// Stamp prefixes a client→server frame with the sender's wire id, producing
// a server→client frame with a known origin.
func Stamp(sender uint16, req []byte) []byte {
	b := make([]byte, 2, 2+len(req))
	binary.LittleEndian.PutUint16(b, sender)
	return append(b, req...)
}

// EncodeRequest renders a client→server frame.
func EncodeRequest(d Domain, sub uint8, payload []byte) []byte {
	b := make([]byte, RequestHeaderSize, RequestHeaderSize+len(payload))
	b[0] = byte(d)
	b[1] = sub
	return append(b, payload...)
}

// Validate checks that the sub-event is known for its domain and that the
// payload has the shape that event requires.
func Validate(m Message) error {
	n := len(m.Payload)
	switch m.Domain {
	case DomainPlayer:
		switch m.Sub {
		case PlayerList:
			if n%SnapshotChunkSize != 0 {
				return fmt.Errorf("%s: %d bytes: %w", m.Name(), n, ErrTruncatedPayload)
			}
		case PlayerLeft:
			if n != 0 {
				return fmt.Errorf("%s: unexpected payload of %d bytes: %w", m.Name(), n, ErrMalformedRecord)
			}
		case PlayerJoined, PlayerUpdate, PlayerRequest:
			if n != 0 && n != EntityRecordSize {
				return fmt.Errorf("%s: %d bytes: %w", m.Name(), n, ErrMalformedRecord)
			}
			if n == EntityRecordSize {
				return validateRecordEnums(m.Payload)
			}
		default:
			return fmt.Errorf("%s: %w", m.Name(), ErrUnknownEvent)
		}
	case DomainMove:
		st := MovementState(m.Sub)
		switch {
		case !st.Valid():
			return fmt.Errorf("%s: %w", m.Name(), ErrUnknownEvent)
		case st == MovePort && n != PositionSize:
			return fmt.Errorf("%s: %d bytes: %w", m.Name(), n, ErrMalformedRecord)
		case n != 0 && n != PositionSize:
			return fmt.Errorf("%s: %d bytes: %w", m.Name(), n, ErrMalformedRecord)
		}
	case DomainSocial:
		switch m.Sub {
		case SocialSay:
			if n > MaxChatBytes || !utf8.Valid(m.Payload) {
				return fmt.Errorf("%s: invalid text (%d bytes): %w", m.Name(), n, ErrMalformedRecord)
			}
		case SocialEmote:
			if n > EmoteSize {
				return fmt.Errorf("%s: %d bytes: %w", m.Name(), n, ErrMalformedRecord)
			}
		default:
			return fmt.Errorf("%s: %w", m.Name(), ErrUnknownEvent)
		}
	default:
		return fmt.Errorf("%s: %w", m.Name(), ErrUnknownEvent)
	}
	return nil
}

func validateRecordEnums(b []byte) error {
	rec, err := DecodeEntityRecord(b)
	if err != nil {
		return err
	}
	if !rec.InstanceState.Valid() || !rec.MovementState.Valid() || !rec.VehicleState.Valid() {
		return fmt.Errorf("entity record enums %d/%d/%d: %w",
			rec.InstanceState, rec.MovementState, rec.VehicleState, ErrMalformedRecord)
	}
	return nil
}

// Position decodes a 12-byte position payload. ok is false when the payload
// carries no position.
func (m Message) Position() (pos mgl32.Vec3, ok bool) {
	if len(m.Payload) != PositionSize {
		return mgl32.Vec3{}, false
	}
	return NewReader(m.Payload).ReadVec3(), true
}

// Record decodes the optional Entity Record payload of JOINED/UPDATE/REQUEST.
func (m Message) Record() (EntityRecord, bool) {
	if len(m.Payload) != EntityRecordSize {
		return EntityRecord{}, false
	}
	rec, err := DecodeEntityRecord(m.Payload)
	if err != nil {
		return EntityRecord{}, false
	}
	return rec, true
}

// ── Frame builders ──

func positionPayload(pos mgl32.Vec3) []byte {
	w := &Writer{buf: make([]byte, 0, PositionSize)}
	w.WriteVec3(pos)
	return w.Bytes()
}

// Joined announces a new entity. rec may be nil when the requester sent no
// initial state.
func Joined(id uint16, rec *EntityRecord) Message {
	m := Message{Sender: id, Domain: DomainPlayer, Sub: PlayerJoined}
	if rec != nil {
		r := *rec
		r.ID = id
		m.Payload = r.Encode()
	}
	return m
}

func Left(id uint16) Message {
	return Message{Sender: id, Domain: DomainPlayer, Sub: PlayerLeft}
}

// List addresses a snapshot to its recipient: Sender is the recipient's own id.
func List(recipient uint16, chunks []SnapshotChunk) Message {
	return Message{Sender: recipient, Domain: DomainPlayer, Sub: PlayerList, Payload: EncodeSnapshot(chunks)}
}

// MoveRequest builds a client→server movement change. pos may be nil.
func MoveRequest(st MovementState, pos *mgl32.Vec3) []byte {
	if pos == nil {
		return EncodeRequest(DomainMove, uint8(st), nil)
	}
	return EncodeRequest(DomainMove, uint8(st), positionPayload(*pos))
}

func PortRequest(pos mgl32.Vec3) []byte {
	return EncodeRequest(DomainMove, uint8(MovePort), positionPayload(pos))
}

func SayRequest(text string) []byte {
	return EncodeRequest(DomainSocial, SocialSay, []byte(text))
}

func EmoteRequest(code byte) []byte {
	return EncodeRequest(DomainSocial, SocialEmote, []byte{code})
}

// JoinRequest is the first frame a client sends. rec may be nil.
func JoinRequest(rec *EntityRecord) []byte {
	if rec == nil {
		return EncodeRequest(DomainPlayer, PlayerRequest, nil)
	}
	return EncodeRequest(DomainPlayer, PlayerRequest, rec.Encode())
}

func UpdateRequest(rec EntityRecord) []byte {
	return EncodeRequest(DomainPlayer, PlayerUpdate, rec.Encode())
}
