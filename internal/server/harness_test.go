package server

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/net/packet"
	"github.com/worldsync/server/internal/world"
)

const testTick = 50 * time.Millisecond

var errConnClosed = errors.New("conn closed")

// memConn is an in-memory FrameConn driven by the test.
type memConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newMemConn() *memConn {
	return &memConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *memConn) ReadFrame() ([]byte, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *memConn) WriteFrame(frame []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.out <- append([]byte(nil), frame...)
	return nil
}

func (c *memConn) SetReadDeadline(time.Time) error  { return nil }
func (c *memConn) SetWriteDeadline(time.Time) error { return nil }
func (c *memConn) RemoteAddr() string               { return "mem" }

func (c *memConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type testHub struct {
	*Hub
	incoming chan *net.Session
	nextID   uint64
}

type stubChat struct{}

func (stubChat) FilterSay(_ uint16, text string) (string, bool) {
	if text == "blocked" {
		return "", false
	}
	if text == "shout" {
		return "SHOUT", true
	}
	return text, true
}

type recordingJournal struct {
	mu     sync.Mutex
	joins  []uint16
	leaves []uint16
}

func (j *recordingJournal) RecordJoin(id uint16, _ string) {
	j.mu.Lock()
	j.joins = append(j.joins, id)
	j.mu.Unlock()
}

func (j *recordingJournal) RecordLeave(id uint16, _ string) {
	j.mu.Lock()
	j.leaves = append(j.leaves, id)
	j.mu.Unlock()
}

func newTestHub(t *testing.T, maxConns int, collab Collaborators) *testHub {
	t.Helper()
	return newTestHubWith(t, func(o *Options) { o.MaxConnections = maxConns }, collab)
}

// newTestHubWith lets a test adjust the default options before the hub is
// built.
func newTestHubWith(t *testing.T, adjust func(*Options), collab Collaborators) *testHub {
	t.Helper()
	opts := Options{
		MaxConnections: 8,
		LogCapacity:    4096,
		LogEntries:     64,
		Processor:      ProcessorConfig{MaxFramesPerTick: 16},
		Movement:       world.MovementConfig{Speed: 1, Gravity: 1},
	}
	if adjust != nil {
		adjust(&opts)
	}
	incoming := make(chan *net.Session, 64)
	h := NewHub(opts, incoming, collab, zap.NewNop())
	th := &testHub{Hub: h, incoming: incoming}
	t.Cleanup(h.CloseAll)
	return th
}

type peer struct {
	conn *memConn
	sess *net.Session
	id   uint16
}

// connect opens a session and admits it on the next tick.
func (h *testHub) connect(t *testing.T) *peer {
	t.Helper()
	h.nextID++
	conn := newMemConn()
	sess := net.NewSession(conn, h.nextID, net.SessionConfig{
		InQueueSize:  32,
		OutQueueSize: 64,
	}, zap.NewNop())
	sess.Start()
	h.incoming <- sess
	h.Tick(testTick)
	p := &peer{conn: conn, sess: sess}
	for i := 0; i < h.table.Count(); i++ {
		if c := h.table.Slot(i); c.Session == sess {
			p.id = c.ID()
		}
	}
	return p
}

// send delivers client frames and waits until the session has queued them.
func (p *peer) send(t *testing.T, frames ...[]byte) {
	t.Helper()
	want := len(p.sess.InQueue) + len(frames)
	for _, f := range frames {
		p.conn.in <- f
	}
	require.Eventually(t, func() bool { return len(p.sess.InQueue) == want },
		time.Second, time.Millisecond)
}

func (p *peer) recv(t *testing.T) packet.Message {
	t.Helper()
	select {
	case f := <-p.conn.out:
		m, err := packet.DecodeMessage(f)
		require.NoError(t, err)
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("peer %d: no frame received", p.id)
		return packet.Message{}
	}
}

func (p *peer) expectSilent(t *testing.T) {
	t.Helper()
	select {
	case f := <-p.conn.out:
		m, _ := packet.DecodeMessage(f)
		t.Fatalf("peer %d: unexpected frame %s from %d", p.id, m.Name(), m.Sender)
	case <-time.After(50 * time.Millisecond):
	}
}

// disconnect drops the client side and waits for the session to notice.
func (p *peer) disconnect(t *testing.T) {
	t.Helper()
	p.conn.Close()
	require.Eventually(t, p.sess.IsClosed, time.Second, time.Millisecond)
}

// join sends PLAYER/REQUEST, ticks, and consumes the requester's LIST and
// every other joined peer's JOINED.
func (h *testHub) join(t *testing.T, p *peer, others ...*peer) packet.Message {
	t.Helper()
	p.send(t, packet.JoinRequest(nil))
	h.Tick(testTick)
	list := p.recv(t)
	require.True(t, list.Is(packet.DomainPlayer, packet.PlayerList), "got %s", list.Name())
	for _, o := range others {
		m := o.recv(t)
		require.True(t, m.Is(packet.DomainPlayer, packet.PlayerJoined), "got %s", m.Name())
		require.Equal(t, p.id, m.Sender)
	}
	return list
}
