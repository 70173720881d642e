package client

import (
	"fmt"

	"github.com/worldsync/server/internal/core/event"
	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net/packet"
)

// Decoder turns server frames into commands, tagging each with the
// generation of the entity it refers to as of decode time. A generation
// advances every time an id is (re)introduced by JOINED or LIST, so commands
// decoded for a previous owner of an id never match its next owner.
// Receive goroutine only.
type Decoder struct {
	gens [1 << 16]uint16
	live [1 << 16]bool
}

func (d *Decoder) current(id uint16) ident.Ref {
	return ident.NewRef(id, d.gens[id])
}

func (d *Decoder) introduce(id uint16) ident.Ref {
	d.gens[id]++
	d.live[id] = true
	return d.current(id)
}

// Decode parses and validates one frame. ok is false when the frame carries
// nothing to apply. Events from an id that no JOINED or LIST introduced, or
// that has since LEFT, fail with ident.ErrStaleIdentity.
func (d *Decoder) Decode(frame []byte) (cmd event.Command, ok bool, err error) {
	m, err := packet.DecodeMessage(frame)
	if err != nil {
		return event.Command{}, false, err
	}
	if err := packet.Validate(m); err != nil {
		return event.Command{}, false, err
	}

	var ref ident.Ref
	switch {
	case m.Is(packet.DomainPlayer, packet.PlayerJoined):
		ref = d.introduce(m.Sender)
	case m.Is(packet.DomainPlayer, packet.PlayerList):
		ref = d.current(m.Sender)
	case !d.live[m.Sender]:
		return event.Command{}, false, fmt.Errorf("%s from %d: %w", m.Name(), m.Sender, ident.ErrStaleIdentity)
	case m.Is(packet.DomainPlayer, packet.PlayerLeft):
		ref = d.current(m.Sender)
		d.live[m.Sender] = false
	default:
		ref = d.current(m.Sender)
	}

	cmd, ok, err = event.FromMessage(m, ref)
	if err != nil || !ok {
		return cmd, ok, err
	}
	if cmd.Kind == event.ReplaceList {
		d.assignList(&cmd, m.Sender)
	}
	return cmd, true, nil
}

// assignList reintroduces every id of a snapshot. The frame's sender is the
// recipient itself; its Ref becomes the local player's identity.
func (d *Decoder) assignList(cmd *event.Command, self uint16) {
	clear(d.live[:])
	cmd.Refs = make([]ident.Ref, len(cmd.Chunks))
	for i, c := range cmd.Chunks {
		if c.Present && uint16(i) != self {
			cmd.Refs[i] = d.introduce(uint16(i))
		}
	}
	cmd.Ref = d.introduce(self)
}
