package net

import (
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server accepts TCP (and optionally WebSocket) connections and creates
// Sessions. New sessions reach the tick loop through a channel.
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newConns chan *Session
	cfg      SessionConfig
	log      *zap.Logger
	closeCh  chan struct{}

	upgrader websocket.Upgrader
	wsServer *http.Server
}

func NewServer(bindAddr string, cfg SessionConfig, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		cfg:      cfg,
		log:      log,
		closeCh:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts connections, creates
// sessions and pushes them onto the newConns channel.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetNoDelay(true)
		}
		s.admit(NewTCPConn(conn), "tcp")
	}
}

func (s *Server) admit(conn FrameConn, transport string) {
	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.cfg, s.log)
	sess.Start()

	s.log.Debug("connection opened",
		zap.Uint64("session", id),
		zap.String("ip", sess.IP),
		zap.String("transport", transport),
	)

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("connection queue full, refusing new connection")
		sess.Close()
	}
}

// ServeHTTP upgrades a request to a WebSocket session.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	s.admit(NewWSConn(ws), "ws")
}

// ListenWS serves WebSocket ingress at addr under /ws in its own goroutine.
func (s *Server) ListenWS(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ws listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	s.wsServer = &http.Server{Handler: mux}
	go func() {
		if err := s.wsServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("ws server stopped", zap.Error(err))
		}
	}()
	return nil
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
	if s.wsServer != nil {
		s.wsServer.Close()
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
