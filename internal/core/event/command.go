package event

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net/packet"
)

// Kind tags which variant a Command carries.
type Kind uint8

const (
	Spawn       Kind = iota // Record
	Remove                  // Ref only
	SetMovement             // State, optional Position
	Teleport                // Position
	Chat                    // Text
	Emote                   // Code
	Update                  // Record
	ReplaceList             // Chunks and Refs; Ref is the recipient's own identity
)

func (k Kind) String() string {
	switch k {
	case Spawn:
		return "spawn"
	case Remove:
		return "remove"
	case SetMovement:
		return "set-movement"
	case Teleport:
		return "teleport"
	case Chat:
		return "chat"
	case Emote:
		return "emote"
	case Update:
		return "update"
	case ReplaceList:
		return "replace-list"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Command is one deferred world mutation. Only the fields of its Kind are
// meaningful.
type Command struct {
	Kind        Kind
	Ref         ident.Ref
	State       packet.MovementState
	Position    mgl32.Vec3
	HasPosition bool
	Record      packet.EntityRecord
	Text        string
	Code        byte
	Chunks      []packet.SnapshotChunk
	Refs        []ident.Ref // per chunk, ReplaceList only
}
