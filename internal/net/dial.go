package net

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Dial connects to a server and starts a session. Addresses beginning with
// ws:// or wss:// use the WebSocket transport, anything else TCP.
func Dial(ctx context.Context, addr string, cfg SessionConfig, log *zap.Logger) (*Session, error) {
	var conn FrameConn
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		conn = NewWSConn(ws)
	} else {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		conn = NewTCPConn(c)
	}
	sess := NewSession(conn, 0, cfg, log)
	sess.Start()
	return sess, nil
}
