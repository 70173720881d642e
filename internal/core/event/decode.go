package event

import (
	"fmt"

	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net/packet"
)

// FromMessage converts a validated message into the command that applies it.
// ref is the sender's identity as known to the caller. ok is false for
// messages that carry no world mutation (PLAYER/REQUEST).
func FromMessage(m packet.Message, ref ident.Ref) (cmd Command, ok bool, err error) {
	cmd.Ref = ref
	switch m.Domain {
	case packet.DomainPlayer:
		switch m.Sub {
		case packet.PlayerJoined:
			cmd.Kind = Spawn
			cmd.Record = recordOrDefault(m)
		case packet.PlayerLeft:
			cmd.Kind = Remove
		case packet.PlayerUpdate:
			cmd.Kind = Update
			cmd.Record = recordOrDefault(m)
		case packet.PlayerList:
			cmd.Kind = ReplaceList
			if cmd.Chunks, err = packet.DecodeSnapshot(m.Payload); err != nil {
				return Command{}, false, err
			}
		case packet.PlayerRequest:
			return Command{}, false, nil
		default:
			return Command{}, false, fmt.Errorf("%s: %w", m.Name(), packet.ErrUnknownEvent)
		}

	case packet.DomainMove:
		st := packet.MovementState(m.Sub)
		switch {
		case st == packet.MovePort:
			pos, has := m.Position()
			if !has {
				return Command{}, false, fmt.Errorf("%s without position: %w", m.Name(), packet.ErrMalformedRecord)
			}
			cmd.Kind = Teleport
			cmd.Position, cmd.HasPosition = pos, true
		case st.Valid():
			cmd.Kind = SetMovement
			cmd.State = st
			cmd.Position, cmd.HasPosition = m.Position()
		default:
			return Command{}, false, fmt.Errorf("%s: %w", m.Name(), packet.ErrUnknownEvent)
		}

	case packet.DomainSocial:
		switch m.Sub {
		case packet.SocialSay:
			cmd.Kind = Chat
			cmd.Text = string(m.Payload)
		case packet.SocialEmote:
			if len(m.Payload) > packet.EmoteSize {
				return Command{}, false, fmt.Errorf("%s: %w", m.Name(), packet.ErrMalformedRecord)
			}
			cmd.Kind = Emote
			if len(m.Payload) == packet.EmoteSize {
				cmd.Code = m.Payload[0]
			}
		default:
			return Command{}, false, fmt.Errorf("%s: %w", m.Name(), packet.ErrUnknownEvent)
		}

	default:
		return Command{}, false, fmt.Errorf("%s: %w", m.Name(), packet.ErrUnknownEvent)
	}
	return cmd, true, nil
}

// recordOrDefault returns the message's record with the id forced to the
// sender, or a standing entity at the origin when none was sent.
func recordOrDefault(m packet.Message) packet.EntityRecord {
	rec, ok := m.Record()
	if !ok {
		rec.MovementState = packet.MoveStopped
	}
	rec.ID = m.Sender
	return rec
}
