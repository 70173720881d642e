package world

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldsync/server/internal/net/packet"
)

// Modifier adjusts how an entity moves while mounted on a vehicle.
type Modifier interface {
	ModifyMovement(v mgl32.Vec3) mgl32.Vec3
	ModifyRotation(q mgl32.Quat) mgl32.Quat
}

// Airborne is implemented by modifiers whose vehicle ignores gravity.
type Airborne interface {
	Airborne() bool
}

type onFoot struct{}

func (onFoot) ModifyMovement(v mgl32.Vec3) mgl32.Vec3 { return v }
func (onFoot) ModifyRotation(q mgl32.Quat) mgl32.Quat { return q }

// ground vehicles scale speed and keep the heading as is.
type groundVehicle struct {
	speed float32
	pitch float32 // radians, nose up
}

func (g groundVehicle) ModifyMovement(v mgl32.Vec3) mgl32.Vec3 { return v.Mul(g.speed) }

func (g groundVehicle) ModifyRotation(q mgl32.Quat) mgl32.Quat {
	if g.pitch == 0 {
		return q
	}
	return q.Mul(mgl32.QuatRotate(-g.pitch, mgl32.Vec3{1, 0, 0})).Normalize()
}

type helicopter struct {
	groundVehicle
}

func (helicopter) Airborne() bool { return true }

var modifiers = [...]Modifier{
	packet.VehicleUnmounted:  onFoot{},
	packet.VehicleCar:        groundVehicle{speed: 3},
	packet.VehicleHovercar:   groundVehicle{speed: 4, pitch: mgl32.DegToRad(5)},
	packet.VehicleHelicopter: helicopter{groundVehicle{speed: 5, pitch: mgl32.DegToRad(-10)}},
}

// ModifierFor returns the movement modifier for a vehicle state. Unknown
// states move on foot.
func ModifierFor(v packet.VehicleState) Modifier {
	if int(v) < len(modifiers) {
		return modifiers[v]
	}
	return onFoot{}
}

func ignoresGravity(m Modifier) bool {
	a, ok := m.(Airborne)
	return ok && a.Airborne()
}
