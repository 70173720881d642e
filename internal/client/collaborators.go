package client

import "github.com/worldsync/server/internal/world"

// Scene is the attach point for visual representations. It is called only
// from the apply step, with decoded and validated state.
type Scene interface {
	Attach(e *world.Entity)
	Detach(e *world.Entity)
	Moved(e *world.Entity)
}

// ChatSink receives chat lines and emotes in apply order.
type ChatSink interface {
	Say(id uint16, text string)
	Emote(id uint16, code byte)
}

type nopScene struct{}

func (nopScene) Attach(*world.Entity) {}
func (nopScene) Detach(*world.Entity) {}
func (nopScene) Moved(*world.Entity)  {}

type nopChat struct{}

func (nopChat) Say(uint16, string) {}
func (nopChat) Emote(uint16, byte) {}
