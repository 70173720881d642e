// Package client is the receiving side of the world sync protocol. A
// network goroutine decodes frames into commands; the owner's tick applies
// them and integrates movement, on one goroutine.
package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldsync/server/internal/core/event"
	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/net/packet"
	"github.com/worldsync/server/internal/world"
	"go.uber.org/zap"
)

var (
	ErrChatTooLong  = errors.New("chat line too long")
	ErrDisconnected = errors.New("disconnected from server")
)

// DefaultAddr is where a client connects when none is configured.
const DefaultAddr = "127.0.0.1:7777"

// Options configures a Client.
type Options struct {
	Addr     string
	Session  net.SessionConfig
	Movement world.MovementConfig
}

// Collaborators receive applied state. nil fields get no-op
// implementations.
type Collaborators struct {
	Scene Scene
	Chat  ChatSink
	Tiles world.TileLookup
}

// Client is one connection to a world server and its local copy of the
// world. Except for Self, Done and Received, methods must be called from
// the goroutine that calls Tick.
type Client struct {
	sess    *net.Session
	queue   *event.Queue
	decoder *Decoder
	world   *world.State

	scene Scene
	chat  ChatSink
	tiles world.TileLookup

	movement world.MovementConfig

	self   atomic.Uint32 // ident.Ref, valid once joined
	joined atomic.Bool
	// tick goroutine only
	selfRecord packet.EntityRecord
	localRef   ident.Ref
	hasLocal   bool

	received atomic.Int64
	dropped  atomic.Int64

	log *zap.Logger
}

// Dial connects to opts.Addr and starts the receive goroutine.
func Dial(ctx context.Context, opts Options, collab Collaborators, log *zap.Logger) (*Client, error) {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	sess, err := net.Dial(ctx, opts.Addr, opts.Session, log)
	if err != nil {
		return nil, err
	}
	return New(sess, opts, collab, log), nil
}

// New wraps a started session.
func New(sess *net.Session, opts Options, collab Collaborators, log *zap.Logger) *Client {
	c := &Client{
		sess:     sess,
		queue:    event.NewQueue(),
		decoder:  &Decoder{},
		world:    world.NewState(),
		scene:    collab.Scene,
		chat:     collab.Chat,
		tiles:    collab.Tiles,
		movement: opts.Movement,
		log:      log,
	}
	if c.scene == nil {
		c.scene = nopScene{}
	}
	if c.chat == nil {
		c.chat = nopChat{}
	}
	go c.receiveLoop()
	return c
}

func (c *Client) receiveLoop() {
	for {
		select {
		case frame := <-c.sess.InQueue:
			c.received.Add(1)
			cmd, ok, err := c.decoder.Decode(frame)
			if err != nil {
				c.dropped.Add(1)
				c.log.Debug("frame dropped", zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			if cmd.Kind == event.ReplaceList {
				c.self.Store(uint32(cmd.Ref))
				c.joined.Store(true)
			}
			c.queue.Push(cmd)
		case <-c.sess.Done():
			return
		}
	}
}

// Self returns the local player's wire id once the server has assigned it.
func (c *Client) Self() (uint16, bool) {
	if !c.joined.Load() {
		return 0, false
	}
	return c.selfRef().ID(), true
}

func (c *Client) selfRef() ident.Ref { return ident.Ref(c.self.Load()) }

// World is the local world. Tick goroutine only.
func (c *Client) World() *world.State { return c.world }

// Done is closed when the connection drops.
func (c *Client) Done() <-chan struct{} { return c.sess.Done() }

// Received counts frames read from the server.
func (c *Client) Received() int64 { return c.received.Load() }

func (c *Client) Close() { c.sess.Close() }

func (c *Client) send(frame []byte) {
	c.sess.Send(frame)
	c.sess.FlushOutput()
}

// local queues a command for the local player, applied on the next tick.
func (c *Client) local(cmd event.Command) {
	if !c.joined.Load() {
		return
	}
	cmd.Ref = c.selfRef()
	c.queue.Push(cmd)
}

// Join announces the local player. rec may be nil.
func (c *Client) Join(rec *packet.EntityRecord) {
	c.selfRecord = packet.EntityRecord{MovementState: packet.MoveStopped}
	if rec != nil {
		c.selfRecord = *rec
	}
	c.send(packet.JoinRequest(rec))
}

func (c *Client) Move(st packet.MovementState, pos *mgl32.Vec3) {
	c.send(packet.MoveRequest(st, pos))
	cmd := event.Command{Kind: event.SetMovement, State: st}
	if pos != nil {
		cmd.Position, cmd.HasPosition = *pos, true
	}
	c.local(cmd)
}

func (c *Client) Port(pos mgl32.Vec3) {
	c.send(packet.PortRequest(pos))
	c.local(event.Command{Kind: event.Teleport, Position: pos})
}

// Say sends a chat line. Text longer than the wire limit is refused.
func (c *Client) Say(text string) error {
	if len(text) > packet.MaxChatBytes {
		return ErrChatTooLong
	}
	c.send(packet.SayRequest(text))
	c.local(event.Command{Kind: event.Chat, Text: text})
	return nil
}

func (c *Client) Emote(code byte) {
	c.send(packet.EmoteRequest(code))
	c.local(event.Command{Kind: event.Emote, Code: code})
}

func (c *Client) Update(rec packet.EntityRecord) {
	c.send(packet.UpdateRequest(rec))
	c.local(event.Command{Kind: event.Update, Record: rec})
}

// Tick applies everything decoded since the last tick, then advances
// movement.
func (c *Client) Tick(ctx context.Context, dt time.Duration) error {
	for _, cmd := range c.queue.Drain() {
		c.dispatch(cmd)
	}
	return world.Integrate(ctx, c.world, dt, c.movement)
}

// Run ticks at the given rate until ctx is cancelled or the connection drops.
func (c *Client) Run(ctx context.Context, rate time.Duration) error {
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.sess.Done():
			return ErrDisconnected
		case now := <-ticker.C:
			if err := c.Tick(ctx, now.Sub(last)); err != nil {
				return err
			}
			last = now
		}
	}
}
