package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldsync/server/internal/net/packet"
)

// Descriptor describes the map tile under a position.
type Descriptor struct {
	Name          string
	Kind          string
	InstanceID    uint16
	InstanceState packet.InstanceState
}

// TileLookup resolves the tile at a world position. Building generation and
// teleport targeting consume it; nothing else in the world does.
type TileLookup interface {
	GetEntityAt(pos mgl32.Vec3) (Descriptor, bool)
}

// Teleport moves e to pos instantly and leaves it standing. When tiles knows
// the destination, the entity enters that tile's instance.
func (e *Entity) Teleport(pos mgl32.Vec3, tiles TileLookup) {
	e.Position = pos
	e.Movement = packet.MoveStopped
	if tiles == nil {
		return
	}
	if d, ok := tiles.GetEntityAt(pos); ok {
		e.InstanceID = d.InstanceID
		e.InstanceState = d.InstanceState
		return
	}
	e.InstanceID = 0
	e.InstanceState = packet.InstanceWorld
}
