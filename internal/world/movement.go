package world

import (
	"context"
	"math"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/worldsync/server/internal/net/packet"
)

// MovementConfig holds the integrator's tuning.
type MovementConfig struct {
	Speed       float32 // units per second on foot
	Gravity     float32 // units per second of fall above GroundLevel
	GroundLevel float32
	Workers     int // 0 = GOMAXPROCS
}

var up = mgl32.Vec3{0, 1, 0}

// Direction returns the unit vector of travel for a movement state. Forward
// is +Z and right is +X.
func Direction(st packet.MovementState) (mgl32.Vec3, bool) {
	switch st {
	case packet.MoveNorth:
		return mgl32.Vec3{0, 0, 1}, true
	case packet.MoveSouth:
		return mgl32.Vec3{0, 0, -1}, true
	case packet.MoveEast:
		return mgl32.Vec3{1, 0, 0}, true
	case packet.MoveWest:
		return mgl32.Vec3{-1, 0, 0}, true
	}
	return mgl32.Vec3{}, false
}

// Heading returns the orientation facing the direction of travel.
func Heading(st packet.MovementState) (mgl32.Quat, bool) {
	switch st {
	case packet.MoveNorth:
		return mgl32.QuatIdent(), true
	case packet.MoveSouth:
		return mgl32.QuatRotate(math.Pi, up), true
	case packet.MoveEast:
		return mgl32.QuatRotate(math.Pi/2, up), true
	case packet.MoveWest:
		return mgl32.QuatRotate(-math.Pi/2, up), true
	}
	return mgl32.Quat{}, false
}

// Displacement is the horizontal offset an entity covers in dt. STOPPED and
// PORT never move.
func Displacement(st packet.MovementState, v packet.VehicleState, dt time.Duration, speed float32) mgl32.Vec3 {
	dir, ok := Direction(st)
	if !ok {
		return mgl32.Vec3{}
	}
	return ModifierFor(v).ModifyMovement(dir.Mul(speed * float32(dt.Seconds())))
}

// Step advances a single entity by dt.
func Step(e *Entity, dt time.Duration, cfg MovementConfig) {
	mod := ModifierFor(e.Vehicle)
	if _, ok := Direction(e.Movement); ok {
		e.Position = e.Position.Add(Displacement(e.Movement, e.Vehicle, dt, cfg.Speed))
	}
	if e.Position.Y() > cfg.GroundLevel && !ignoresGravity(mod) {
		y := e.Position.Y() - cfg.Gravity*float32(dt.Seconds())
		if y < cfg.GroundLevel {
			y = cfg.GroundLevel
		}
		e.Position[1] = y
	}
}

const minBatch = 64

// Integrate steps every entity in s in parallel. Each worker owns a disjoint
// range of the dense slice, so no entity is touched twice.
func Integrate(ctx context.Context, s *State, dt time.Duration, cfg MovementConfig) error {
	ents := s.entities
	if len(ents) == 0 || dt <= 0 {
		return nil
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batch := (len(ents) + workers - 1) / workers
	if batch < minBatch {
		batch = minBatch
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(ents); lo += batch {
		part := ents[lo:min(lo+batch, len(ents))]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, e := range part {
				if e != nil {
					Step(e, dt, cfg)
				}
			}
			return nil
		})
	}
	return g.Wait()
}
