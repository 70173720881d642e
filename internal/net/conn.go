package net

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// FrameConn is a reliable, ordered, message-framed connection. TCP streams
// are framed with a length prefix; WebSocket carries one frame per binary
// message.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

type tcpConn struct {
	conn net.Conn
	r    *bufio.Reader
}

// NewTCPConn frames a TCP stream.
func NewTCPConn(c net.Conn) FrameConn {
	return &tcpConn{conn: c, r: bufio.NewReaderSize(c, 4096)}
}

func (c *tcpConn) ReadFrame() ([]byte, error)         { return ReadFrame(c.r) }
func (c *tcpConn) WriteFrame(frame []byte) error      { return WriteFrame(c.conn, frame) }
func (c *tcpConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *tcpConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *tcpConn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }
func (c *tcpConn) Close() error                       { return c.conn.Close() }

type wsConn struct {
	ws *websocket.Conn
}

// NewWSConn adapts an upgraded WebSocket.
func NewWSConn(ws *websocket.Conn) FrameConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	typ, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read ws message: %w", err)
	}
	if typ != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected ws message type %d", typ)
	}
	return data, nil
}

func (c *wsConn) WriteFrame(frame []byte) error {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write ws message: %w", err)
	}
	return nil
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
func (c *wsConn) RemoteAddr() string                 { return c.ws.RemoteAddr().String() }
func (c *wsConn) Close() error                       { return c.ws.Close() }
