package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net/packet"
)

// State holds every tracked entity in a dense slice indexed by wire id, with
// nil gaps for ids that are not live. Owned by the tick goroutine; the
// integrator may read and write entities in parallel only while nothing
// else touches the State.
type State struct {
	entities []*Entity
	count    int
}

func NewState() *State {
	return &State{entities: make([]*Entity, 0, 256)}
}

// Spawn creates (or replaces) the entity for ref's id.
func (s *State) Spawn(ref ident.Ref, rec packet.EntityRecord) *Entity {
	id := int(ref.ID())
	for len(s.entities) <= id {
		s.entities = append(s.entities, nil)
	}
	if s.entities[id] == nil {
		s.count++
	}
	e := &Entity{Ref: ref, Orientation: mgl32.QuatIdent()}
	e.ApplyRecord(rec)
	s.entities[id] = e
	return e
}

// Resolve returns the entity ref names, or ErrStaleIdentity when the id is
// empty or now owned by a different generation.
func (s *State) Resolve(ref ident.Ref) (*Entity, error) {
	e := s.Get(ref.ID())
	if e == nil || e.Ref != ref {
		return nil, fmt.Errorf("entity %d gen %d: %w", ref.ID(), ref.Generation(), ident.ErrStaleIdentity)
	}
	return e, nil
}

// Get returns the entity with the given wire id, or nil.
func (s *State) Get(id uint16) *Entity {
	if int(id) >= len(s.entities) {
		return nil
	}
	return s.entities[id]
}

// Remove deletes the entity ref names.
func (s *State) Remove(ref ident.Ref) (*Entity, error) {
	e, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	s.entities[ref.ID()] = nil
	s.count--
	s.trim()
	return e, nil
}

func (s *State) trim() {
	n := len(s.entities)
	for n > 0 && s.entities[n-1] == nil {
		n--
	}
	clear(s.entities[n:])
	s.entities = s.entities[:n]
}

// Clear removes every entity.
func (s *State) Clear() {
	clear(s.entities)
	s.entities = s.entities[:0]
	s.count = 0
}

// Each visits entities in id order.
func (s *State) Each(fn func(*Entity)) {
	for _, e := range s.entities {
		if e != nil {
			fn(e)
		}
	}
}

// Len returns the number of live entities.
func (s *State) Len() int {
	return s.count
}

// Snapshot renders chunks for ids 0..highest live id other than exclude.
// Gaps, and exclude itself when it falls inside the range, are encoded as
// absent placeholders so list position equals wire id.
func (s *State) Snapshot(exclude uint16) []packet.SnapshotChunk {
	n := len(s.entities)
	for n > 0 && (s.entities[n-1] == nil || uint16(n-1) == exclude) {
		n--
	}
	chunks := make([]packet.SnapshotChunk, n)
	for i := 0; i < n; i++ {
		if e := s.entities[i]; e != nil && uint16(i) != exclude {
			chunks[i] = e.Chunk()
		}
	}
	return chunks
}

// ReplaceAll discards every entity and rebuilds the world from a snapshot.
// refs[i] is the identity for chunk i; absent chunks are skipped.
func (s *State) ReplaceAll(chunks []packet.SnapshotChunk, refs []ident.Ref) {
	s.Clear()
	for i, c := range chunks {
		if !c.Present || i >= len(refs) {
			continue
		}
		s.Spawn(refs[i], packet.EntityRecord{
			ID:            uint16(i),
			Position:      c.Position,
			MovementState: c.MovementState,
		})
	}
}
