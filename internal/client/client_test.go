package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldsync/server/internal/core/event"
	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/net/packet"
	"github.com/worldsync/server/internal/server"
	"github.com/worldsync/server/internal/world"
)

var errClosed = errors.New("closed")

type memConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newMemConn() *memConn {
	return &memConn{in: make(chan []byte, 64), out: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *memConn) ReadFrame() ([]byte, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *memConn) WriteFrame(f []byte) error {
	select {
	case c.out <- f:
		return nil
	case <-c.closed:
		return errClosed
	}
}

func (c *memConn) SetReadDeadline(time.Time) error  { return nil }
func (c *memConn) SetWriteDeadline(time.Time) error { return nil }
func (c *memConn) RemoteAddr() string               { return "mem" }
func (c *memConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type recordingScene struct {
	attached map[uint16]int
	moved    []uint16
}

func (s *recordingScene) Attach(e *world.Entity) { s.attached[e.ID()]++ }
func (s *recordingScene) Detach(e *world.Entity) { s.attached[e.ID()]-- }
func (s *recordingScene) Moved(e *world.Entity)  { s.moved = append(s.moved, e.ID()) }

type recordingChat struct {
	lines []string
}

func (c *recordingChat) Say(id uint16, text string) { c.lines = append(c.lines, text) }
func (c *recordingChat) Emote(uint16, byte)         {}

func newTestClient(t *testing.T) (*Client, *memConn, *recordingScene, *recordingChat) {
	t.Helper()
	conn := newMemConn()
	sess := net.NewSession(conn, 1, net.SessionConfig{InQueueSize: 32, OutQueueSize: 32}, zap.NewNop())
	sess.Start()
	scene := &recordingScene{attached: map[uint16]int{}}
	chat := &recordingChat{}
	c := New(sess, Options{Movement: world.MovementConfig{Speed: 1}}, Collaborators{Scene: scene, Chat: chat}, zap.NewNop())
	t.Cleanup(c.Close)
	return c, conn, scene, chat
}

// deliver feeds server frames and waits until they are decoded.
func deliver(t *testing.T, c *Client, conn *memConn, frames ...[]byte) {
	t.Helper()
	want := c.Received() + int64(len(frames))
	for _, f := range frames {
		conn.in <- f
	}
	require.Eventually(t, func() bool { return c.Received() == want }, time.Second, time.Millisecond)
}

func tick(t *testing.T, c *Client) {
	t.Helper()
	require.NoError(t, c.Tick(context.Background(), 100*time.Millisecond))
}

func TestDecoderGenerations(t *testing.T) {
	var d Decoder
	joined, ok, err := d.Decode(packet.Joined(3, nil).Encode())
	require.NoError(t, err)
	require.True(t, ok)
	first := joined.Ref

	move, _, err := d.Decode(packet.Message{Sender: 3, Domain: packet.DomainMove, Sub: uint8(packet.MoveNorth)}.Encode())
	require.NoError(t, err)
	assert.Equal(t, first, move.Ref)

	left, _, err := d.Decode(packet.Left(3).Encode())
	require.NoError(t, err)
	assert.Equal(t, first, left.Ref)

	_, _, err = d.Decode(packet.Message{Sender: 3, Domain: packet.DomainMove, Sub: uint8(packet.MoveEast)}.Encode())
	assert.ErrorIs(t, err, ident.ErrStaleIdentity, "events after LEFT are dropped")
	_, _, err = d.Decode(packet.Left(9).Encode())
	assert.ErrorIs(t, err, ident.ErrStaleIdentity, "id never introduced")

	again, _, err := d.Decode(packet.Joined(3, nil).Encode())
	require.NoError(t, err)
	assert.Equal(t, uint16(3), again.Ref.ID())
	assert.NotEqual(t, first, again.Ref, "a reissued id gets a new generation")

	_, _, err = d.Decode([]byte{1, 0, byte(packet.DomainSocial)})
	assert.ErrorIs(t, err, packet.ErrMalformedRecord)
}

func TestDecoderList(t *testing.T) {
	var d Decoder
	chunks := []packet.SnapshotChunk{{Present: true}, {}, {Present: true}}
	cmd, ok, err := d.Decode(packet.List(4, chunks).Encode())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, event.ReplaceList, cmd.Kind)
	assert.Equal(t, uint16(4), cmd.Ref.ID())
	require.Len(t, cmd.Refs, 3)
	assert.Equal(t, uint16(2), cmd.Refs[2].ID())
	assert.Zero(t, cmd.Refs[1])
}

func TestClientAppliesSnapshotAndEvents(t *testing.T) {
	c, conn, scene, chat := newTestClient(t)
	c.Join(&packet.EntityRecord{Position: mgl32.Vec3{0, 0, 5}, MovementState: packet.MoveStopped})

	req := <-conn.out
	m, err := packet.DecodeMessage(packet.Stamp(0, req))
	require.NoError(t, err)
	assert.True(t, m.Is(packet.DomainPlayer, packet.PlayerRequest))

	list := packet.List(2, []packet.SnapshotChunk{
		{Present: true, MovementState: packet.MoveStopped, Position: mgl32.Vec3{1, 0, 1}},
		{},
	})
	deliver(t, c, conn, list.Encode())
	tick(t, c)

	self, ok := c.Self()
	require.True(t, ok)
	assert.Equal(t, uint16(2), self)
	require.NotNil(t, c.Local())
	assert.Equal(t, mgl32.Vec3{0, 0, 5}, c.Local().Position)
	assert.Equal(t, 2, c.World().Len())
	assert.Equal(t, 1, scene.attached[0])

	say := packet.Message{Sender: 0, Domain: packet.DomainSocial, Sub: packet.SocialSay, Payload: []byte("hi")}
	north := packet.Message{Sender: 0, Domain: packet.DomainMove, Sub: uint8(packet.MoveNorth)}
	deliver(t, c, conn, say.Encode(), north.Encode(), packet.Joined(1, nil).Encode())
	tick(t, c)

	assert.Equal(t, []string{"hi"}, chat.lines)
	e := c.World().Get(0)
	require.NotNil(t, e)
	assert.Equal(t, packet.MoveNorth, e.Movement)
	assert.InDelta(t, 1.1, e.Position.Z(), 1e-5, "moved by the integrator in the same tick")
	assert.Equal(t, 1, scene.attached[1])

	deliver(t, c, conn, packet.Left(0).Encode())
	tick(t, c)
	assert.Nil(t, c.World().Get(0))
	assert.Equal(t, 0, scene.attached[0])
}

func TestClientDropsStaleCommands(t *testing.T) {
	c, conn, _, _ := newTestClient(t)
	deliver(t, c, conn, packet.List(0, nil).Encode(), packet.Joined(1, nil).Encode())
	tick(t, c)

	// A late frame decoded for id 1's previous owner.
	stale := event.Command{Kind: event.SetMovement, Ref: ident.NewRef(1, 0), State: packet.MoveEast}
	c.queue.Push(stale)
	tick(t, c)
	assert.Equal(t, packet.MoveStopped, c.World().Get(1).Movement)
}

func TestClientLocalActions(t *testing.T) {
	c, conn, _, chat := newTestClient(t)
	c.Join(nil)
	<-conn.out
	deliver(t, c, conn, packet.List(0, nil).Encode())
	tick(t, c)

	c.Move(packet.MoveEast, nil)
	require.NoError(t, c.Say("hello"))
	assert.ErrorIs(t, c.Say(string(make([]byte, packet.MaxChatBytes+1))), ErrChatTooLong)
	tick(t, c)

	assert.Equal(t, packet.MoveEast, c.Local().Movement)
	assert.Equal(t, []string{"hello"}, chat.lines)
	for _, want := range [][]byte{packet.MoveRequest(packet.MoveEast, nil), packet.SayRequest("hello")} {
		assert.Equal(t, want, <-conn.out)
	}

	c.Port(mgl32.Vec3{9, 0, 9})
	tick(t, c)
	assert.Equal(t, mgl32.Vec3{9, 0, 9}, c.Local().Position)
	assert.Equal(t, packet.MoveStopped, c.Local().Movement)
}

func TestClientAgainstServer(t *testing.T) {
	log := zap.NewNop()
	cfg := net.SessionConfig{InQueueSize: 64, OutQueueSize: 64, WriteTimeout: time.Second}
	srv, err := net.NewServer("127.0.0.1:0", cfg, log)
	require.NoError(t, err)
	go srv.AcceptLoop()
	t.Cleanup(srv.Shutdown)

	hub := server.NewHub(server.Options{
		MaxConnections: 4,
		LogCapacity:    1 << 14,
		LogEntries:     256,
		Processor:      server.ProcessorConfig{MaxFramesPerTick: 32},
		Movement:       world.MovementConfig{Speed: 1},
	}, srv.NewSessions(), server.Collaborators{}, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				hub.Tick(10 * time.Millisecond)
			}
		}
	}()

	opts := Options{Addr: srv.Addr().String(), Session: cfg, Movement: world.MovementConfig{Speed: 1}}
	a, err := Dial(ctx, opts, Collaborators{}, log)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	b, err := Dial(ctx, opts, Collaborators{}, log)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	a.Join(nil)
	require.Eventually(t, func() bool {
		tick(t, a)
		_, ok := a.Self()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	b.Join(nil)
	require.Eventually(t, func() bool {
		tick(t, a)
		tick(t, b)
		return a.World().Len() == 2 && b.World().Len() == 2
	}, 2*time.Second, 5*time.Millisecond)

	aID, _ := a.Self()
	a.Move(packet.MoveNorth, nil)
	require.Eventually(t, func() bool {
		tick(t, b)
		e := b.World().Get(aID)
		return e != nil && e.Movement == packet.MoveNorth
	}, 2*time.Second, 5*time.Millisecond)
}
