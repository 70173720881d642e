package world

import (
	"errors"
	"fmt"

	"github.com/worldsync/server/internal/core/event"
)

var errUnknownCommand = errors.New("unknown command")

// Apply runs one command against the world. Together with the integrator it
// is the only code that mutates entities, and it must run on the tick
// goroutine. The returned entity is nil for removals of unknown ids and for
// list replacement.
func (s *State) Apply(cmd event.Command, tiles TileLookup) (*Entity, error) {
	switch cmd.Kind {
	case event.Spawn:
		return s.Spawn(cmd.Ref, cmd.Record), nil
	case event.Remove:
		return s.Remove(cmd.Ref)
	case event.ReplaceList:
		s.ReplaceAll(cmd.Chunks, cmd.Refs)
		return nil, nil
	}

	e, err := s.Resolve(cmd.Ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd.Kind, err)
	}
	switch cmd.Kind {
	case event.SetMovement:
		if cmd.HasPosition {
			e.Position = cmd.Position
		}
		e.SetMovement(cmd.State)
	case event.Teleport:
		e.Teleport(cmd.Position, tiles)
	case event.Update:
		e.ApplyRecord(cmd.Record)
	case event.Chat, event.Emote:
	default:
		return nil, fmt.Errorf("%s: %w", cmd.Kind, errUnknownCommand)
	}
	return e, nil
}
