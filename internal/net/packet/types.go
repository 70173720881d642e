package packet

import (
	"errors"
	"fmt"
)

// Wire sizes in bytes.
const (
	HeaderSize        = 4  // senderId:u16 domain:u8 subEvent:u8
	RequestHeaderSize = 2  // domain:u8 subEvent:u8 (client→server, no sender)
	EntityRecordSize  = 19 // id:u16 pos:3×f32 instanceId:u16 instanceState:u8 movementState:u8 vehicleState:u8
	SnapshotChunkSize = 14 // presence:u8 movementState:u8 pos:3×f32
	PositionSize      = 12
	EmoteSize         = 1 // code:u8; an empty EMOTE means code 0

	// MaxFrameSize is bounded by the u16 length prefix of the TCP framing.
	MaxFrameSize = 65533
)

var (
	ErrMalformedRecord  = errors.New("malformed record")
	ErrTruncatedPayload = errors.New("truncated payload")
	ErrUnknownEvent     = errors.New("unknown domain or sub-event")
)

// Domain is the top-level event family of a frame.
type Domain uint8

const (
	DomainPlayer Domain = 0
	DomainMove   Domain = 1
	DomainSocial Domain = 2
)

func (d Domain) String() string {
	switch d {
	case DomainPlayer:
		return "PLAYER"
	case DomainMove:
		return "MOVE"
	case DomainSocial:
		return "SOCIAL"
	default:
		return fmt.Sprintf("Domain(%d)", uint8(d))
	}
}

// PLAYER sub-events.
const (
	PlayerList    uint8 = 0
	PlayerJoined  uint8 = 1
	PlayerLeft    uint8 = 2
	PlayerUpdate  uint8 = 3
	PlayerRequest uint8 = 4 // client→server only
)

// MovementState is the discrete locomotion state of an entity. The values
// double as the MOVE domain sub-events on the wire.
type MovementState uint8

const (
	MoveNorth   MovementState = 0
	MoveSouth   MovementState = 1
	MoveEast    MovementState = 2
	MoveWest    MovementState = 3
	MoveStopped MovementState = 4
	MovePort    MovementState = 5
)

func (m MovementState) Valid() bool { return m <= MovePort }

func (m MovementState) String() string {
	switch m {
	case MoveNorth:
		return "NORTH"
	case MoveSouth:
		return "SOUTH"
	case MoveEast:
		return "EAST"
	case MoveWest:
		return "WEST"
	case MoveStopped:
		return "STOPPED"
	case MovePort:
		return "PORT"
	default:
		return fmt.Sprintf("MovementState(%d)", uint8(m))
	}
}

// SOCIAL sub-events.
const (
	SocialSay   uint8 = 0
	SocialEmote uint8 = 1
)

// InstanceState says which kind of sub-world an entity occupies.
type InstanceState uint8

const (
	InstanceWorld     InstanceState = 0
	InstanceApartment InstanceState = 1
	InstancePOI       InstanceState = 2
)

func (s InstanceState) Valid() bool { return s <= InstancePOI }

// VehicleState is what an entity is riding, if anything.
type VehicleState uint8

const (
	VehicleUnmounted  VehicleState = 0
	VehicleCar        VehicleState = 1
	VehicleHovercar   VehicleState = 2
	VehicleHelicopter VehicleState = 3
)

func (v VehicleState) Valid() bool { return v <= VehicleHelicopter }

func (v VehicleState) String() string {
	switch v {
	case VehicleUnmounted:
		return "UNMOUNTED"
	case VehicleCar:
		return "CAR"
	case VehicleHovercar:
		return "HOVERCAR"
	case VehicleHelicopter:
		return "HELICOPTER"
	default:
		return fmt.Sprintf("VehicleState(%d)", uint8(v))
	}
}

// EventName renders a (domain, subEvent) pair for logs.
func EventName(d Domain, sub uint8) string {
	switch d {
	case DomainPlayer:
		switch sub {
		case PlayerList:
			return "PLAYER/LIST"
		case PlayerJoined:
			return "PLAYER/JOINED"
		case PlayerLeft:
			return "PLAYER/LEFT"
		case PlayerUpdate:
			return "PLAYER/UPDATE"
		case PlayerRequest:
			return "PLAYER/REQUEST"
		}
	case DomainMove:
		if MovementState(sub).Valid() {
			return "MOVE/" + MovementState(sub).String()
		}
	case DomainSocial:
		switch sub {
		case SocialSay:
			return "SOCIAL/SAY"
		case SocialEmote:
			return "SOCIAL/EMOTE"
		}
	}
	return fmt.Sprintf("%s/%d", d, sub)
}
