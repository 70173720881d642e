package client

import (
	"errors"

	"github.com/worldsync/server/internal/core/event"
	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/world"
	"go.uber.org/zap"
)

// dispatch applies one command to the world and notifies collaborators.
func (c *Client) dispatch(cmd event.Command) {
	switch cmd.Kind {
	case event.ReplaceList:
		if self := c.Local(); self != nil {
			c.selfRecord = self.Record()
		}
		c.world.Each(c.scene.Detach)
	case event.Spawn:
		if old := c.world.Get(cmd.Ref.ID()); old != nil {
			c.scene.Detach(old)
		}
	}

	e, err := c.world.Apply(cmd, c.tiles)
	if err != nil {
		if errors.Is(err, ident.ErrStaleIdentity) {
			c.log.Debug("stale command dropped",
				zap.Uint16("id", cmd.Ref.ID()),
				zap.String("kind", cmd.Kind.String()),
			)
			return
		}
		c.log.Warn("command failed", zap.String("kind", cmd.Kind.String()), zap.Error(err))
		return
	}

	switch cmd.Kind {
	case event.Spawn:
		c.scene.Attach(e)
	case event.Remove:
		c.scene.Detach(e)
	case event.SetMovement, event.Teleport, event.Update:
		c.scene.Moved(e)
	case event.Chat:
		c.chat.Say(e.ID(), cmd.Text)
	case event.Emote:
		c.chat.Emote(e.ID(), cmd.Code)
	case event.ReplaceList:
		rec := c.selfRecord
		rec.ID = cmd.Ref.ID()
		c.world.Spawn(cmd.Ref, rec)
		c.localRef, c.hasLocal = cmd.Ref, true
		c.world.Each(c.scene.Attach)
		c.log.Info("world snapshot applied",
			zap.Uint16("self", cmd.Ref.ID()),
			zap.Int("entities", c.world.Len()),
		)
	}
}

// Local returns the local player's entity, or nil before joining.
func (c *Client) Local() *world.Entity {
	if !c.hasLocal {
		return nil
	}
	e, err := c.world.Resolve(c.localRef)
	if err != nil {
		return nil
	}
	return e
}
