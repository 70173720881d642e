package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net/packet"
)

// Entity is one networked actor as seen by the local world.
type Entity struct {
	Ref           ident.Ref
	Position      mgl32.Vec3
	Orientation   mgl32.Quat
	InstanceID    uint16
	InstanceState packet.InstanceState
	Movement      packet.MovementState
	Vehicle       packet.VehicleState
}

func (e *Entity) ID() uint16 { return e.Ref.ID() }

// Record renders the entity as a wire Entity Record.
func (e *Entity) Record() packet.EntityRecord {
	return packet.EntityRecord{
		ID:            e.ID(),
		Position:      e.Position,
		InstanceID:    e.InstanceID,
		InstanceState: e.InstanceState,
		MovementState: e.Movement,
		VehicleState:  e.Vehicle,
	}
}

// ApplyRecord copies every field of rec except the id.
func (e *Entity) ApplyRecord(rec packet.EntityRecord) {
	e.Position = rec.Position
	e.InstanceID = rec.InstanceID
	e.InstanceState = rec.InstanceState
	e.Vehicle = rec.VehicleState
	e.SetMovement(rec.MovementState)
}

// SetMovement changes the discrete movement state. PORT is not a continuous
// state: it leaves the entity standing where it lands.
func (e *Entity) SetMovement(st packet.MovementState) {
	if st == packet.MovePort {
		st = packet.MoveStopped
	}
	e.Movement = st
	if q, ok := Heading(st); ok {
		e.Orientation = ModifierFor(e.Vehicle).ModifyRotation(q)
	}
}

// Chunk renders the compact snapshot form.
func (e *Entity) Chunk() packet.SnapshotChunk {
	return packet.SnapshotChunk{Present: true, MovementState: e.Movement, Position: e.Position}
}
