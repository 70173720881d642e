package net

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/worldsync/server/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionConfig sizes a session's queues and timeouts.
type SessionConfig struct {
	InQueueSize  int
	OutQueueSize int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration // 0 = no read deadline

	// FramesPerSecond limits inbound frames (0 = unlimited). A client that
	// exceeds FramesPerSecond+Burst is disconnected.
	FramesPerSecond int
	Burst           int
}

// EventKind classifies what Poll observed on a session.
type EventKind int

const (
	EventConnected EventKind = iota
	EventData
	EventDisconnected
)

// Event is one transport occurrence for a session, in arrival order.
type Event struct {
	Kind  EventKind
	Frame []byte // EventData only
}

// Session represents a single connection. Network I/O runs in dedicated
// goroutines; world state is never touched from them.
type Session struct {
	ID   uint64
	conn FrameConn
	cfg  SessionConfig

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // tick loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	outMu  deadlock.Mutex
	outBuf [][]byte // buffered frames, flushed once per tick

	connectedSeen bool // Poll only (single consumer)
	deadSeen      bool

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	limiter *rate.Limiter // readLoop goroutine only

	log *zap.Logger
}

func NewSession(conn FrameConn, id uint64, cfg SessionConfig, log *zap.Logger) *Session {
	s := &Session{
		ID:       id,
		conn:     conn,
		cfg:      cfg,
		InQueue:  make(chan []byte, cfg.InQueueSize),
		OutQueue: make(chan []byte, cfg.OutQueueSize),
		IP:       conn.RemoteAddr(),
		closeCh:  make(chan struct{}),
		log:      log.With(zap.Uint64("session", id)),
	}
	if cfg.FramesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.FramesPerSecond), cfg.FramesPerSecond+cfg.Burst)
	}
	s.state.Store(int32(packet.StateAwaitingRequest))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a frame. Frames reach the socket when FlushOutput runs.
// Safe for concurrent use; never blocks and never reports failure: a dead
// peer shows up later as EventDisconnected.
func (s *Session) Send(frame []byte) {
	if s.closed.Load() {
		return
	}
	s.outMu.Lock()
	s.outBuf = append(s.outBuf, frame)
	s.outMu.Unlock()
}

// DiscardOutput drops frames buffered since the last flush, except those
// keep reports true for, which stay queued in order. keep may be nil.
func (s *Session) DiscardOutput(keep func(frame []byte) bool) int {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	kept := s.outBuf[:0]
	for _, frame := range s.outBuf {
		if keep != nil && keep(frame) {
			kept = append(kept, frame)
		}
	}
	n := len(s.outBuf) - len(kept)
	clear(s.outBuf[len(kept):])
	s.outBuf = kept
	return n
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop
// goroutine. If OutQueue is full the session is disconnected.
func (s *Session) FlushOutput() {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	for _, frame := range s.outBuf {
		select {
		case s.OutQueue <- frame:
		default:
			s.log.Warn("output queue full, dropping slow connection")
			s.outBuf = s.outBuf[:0]
			s.Close()
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Poll returns up to max pending events without blocking. The first call
// yields EventConnected; once the session is closed and its inbound queue is
// empty, Poll yields EventDisconnected exactly once.
func (s *Session) Poll(max int) []Event {
	var events []Event
	if !s.connectedSeen {
		s.connectedSeen = true
		events = append(events, Event{Kind: EventConnected})
	}
	for i := 0; i < max; i++ {
		select {
		case frame := <-s.InQueue:
			events = append(events, Event{Kind: EventData, Frame: frame})
		default:
			goto drained
		}
	}
drained:
	if s.closed.Load() && len(s.InQueue) == 0 && !s.deadSeen {
		s.deadSeen = true
		events = append(events, Event{Kind: EventDisconnected})
	}
	return events
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// readLoop reads frames from the connection and pushes them onto InQueue
// for the tick loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		if s.cfg.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		frame, err := s.conn.ReadFrame()
		if errors.Is(err, ErrEmptyFrame) {
			// Handed on as a zero-length frame; the processor treats it as
			// malformed without tearing the connection down.
			frame, err = []byte{}, nil
		}
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("inbound frame rate exceeded, disconnecting",
				zap.Int("fps", s.cfg.FramesPerSecond))
			return
		}

		// Block until InQueue has space or the session closes. Dropping a
		// movement change would desync every peer, so back-pressure this
		// client instead.
		select {
		case s.InQueue <- frame:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop writes frames from OutQueue to the connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case frame := <-s.OutQueue:
			if !s.writeOne(frame) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(frame []byte) bool {
	s.log.Debug("TX", zap.Int("len", len(frame)))
	if s.cfg.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := s.conn.WriteFrame(frame); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}
