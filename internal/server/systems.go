package server

import (
	"context"
	"errors"
	"time"

	coresys "github.com/worldsync/server/internal/core/system"
	"github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/world"
	"go.uber.org/zap"
)

// InputSystem admits sessions accepted since the last tick into the
// connection table. Phase 0 (Input).
type InputSystem struct {
	incoming <-chan *net.Session
	table    *Table
	metrics  *Metrics
	log      *zap.Logger
}

func NewInputSystem(incoming <-chan *net.Session, table *Table, metrics *Metrics, log *zap.Logger) *InputSystem {
	return &InputSystem{incoming: incoming, table: table, metrics: metrics, log: log}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	for {
		select {
		case sess := <-s.incoming:
			s.admit(sess)
		default:
			goto done
		}
	}
done:
	s.metrics.Connections.Store(int64(s.table.Count()))
}

func (s *InputSystem) admit(sess *net.Session) {
	c, err := s.table.Accept(sess, s.log)
	if err != nil {
		// Refused connections get no reply: there is no wire identity to
		// address one to.
		s.metrics.Refused.Add(1)
		if errors.Is(err, ErrCapacityExceeded) {
			s.log.Debug("connection refused", zap.String("ip", sess.IP), zap.Error(err))
		} else {
			s.log.Warn("connection refused", zap.String("ip", sess.IP), zap.Error(err))
		}
		sess.Close()
		return
	}
	s.metrics.Accepted.Add(1)
	c.log.Debug("connection admitted", zap.String("ip", sess.IP), zap.Int("slot", c.slot))
}

// IntegrateSystem advances every entity of the server world. Phase 3.
type IntegrateSystem struct {
	world *world.State
	cfg   world.MovementConfig
	log   *zap.Logger
}

func NewIntegrateSystem(ws *world.State, cfg world.MovementConfig, log *zap.Logger) *IntegrateSystem {
	return &IntegrateSystem{world: ws, cfg: cfg, log: log}
}

func (s *IntegrateSystem) Phase() coresys.Phase { return coresys.PhaseIntegrate }

func (s *IntegrateSystem) Update(dt time.Duration) {
	if err := world.Integrate(context.Background(), s.world, dt, s.cfg); err != nil {
		s.log.Error("integrate", zap.Error(err))
	}
}

// OutputSystem hands each connection's buffered frames to its writer.
// Phase 4 (Output).
type OutputSystem struct {
	table *Table
}

func NewOutputSystem(table *Table) *OutputSystem {
	return &OutputSystem{table: table}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	for i := 0; i < s.table.Count(); i++ {
		s.table.Slot(i).Session.FlushOutput()
	}
}

// CleanupSystem reaps dead connections. Ids reaped on the previous tick are
// confirmed first: their LEFT has been flushed by now, so they may be
// reissued. Phase 5 (Cleanup).
type CleanupSystem struct {
	table   *Table
	metrics *Metrics
	log     *zap.Logger
}

func NewCleanupSystem(table *Table, metrics *Metrics, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{table: table, metrics: metrics, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.table.Confirm()
	n := s.table.Reap(func(c *Conn) {
		c.Session.Close()
		c.log.Debug("slot reaped")
	})
	if n > 0 {
		s.metrics.Reaped.Add(int64(n))
		s.metrics.Connections.Store(int64(s.table.Count()))
	}
}
