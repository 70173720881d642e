// Package server is the authoritative side of the world sync protocol: the
// connection table, the per-connection processors, broadcast fan-out, and
// the server's own copy of the world.
package server

import (
	"time"

	coresys "github.com/worldsync/server/internal/core/system"
	"github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/world"
	"go.uber.org/zap"
)

// Options configures a Hub.
type Options struct {
	MaxConnections int
	LogCapacity    int // bytes per tick
	LogEntries     int // frames per tick
	Processor      ProcessorConfig
	Movement       world.MovementConfig
}

// Collaborators are optional; nil disables the feature.
type Collaborators struct {
	Chat    ChatFilter
	Journal Journal
	Tiles   world.TileLookup
}

// Hub owns every piece of per-tick state and the runner that drives it.
type Hub struct {
	table   *Table
	outlog  *OutLog
	world   *world.State
	runner  *coresys.Runner
	metrics *Metrics
	journal Journal
	log     *zap.Logger
}

// NewHub wires the tick systems in phase order. incoming delivers freshly
// accepted sessions, typically net.Server.NewSessions().
func NewHub(opts Options, incoming <-chan *net.Session, collab Collaborators, log *zap.Logger) *Hub {
	h := &Hub{
		table:   NewTable(opts.MaxConnections),
		outlog:  NewOutLog(opts.LogCapacity, opts.LogEntries),
		world:   world.NewState(),
		runner:  coresys.NewRunner(),
		metrics: &Metrics{},
		journal: collab.Journal,
		log:     log,
	}
	h.runner.Register(NewInputSystem(incoming, h.table, h.metrics, log))
	h.runner.Register(NewProcessor(h.table, h.outlog, collab.Chat, collab.Journal, h.metrics, opts.Processor, log))
	h.runner.Register(NewApplySystem(h.table, h.outlog, h.world, collab.Tiles, h.metrics, log))
	h.runner.Register(NewIntegrateSystem(h.world, opts.Movement, log))
	h.runner.Register(NewOutputSystem(h.table))
	h.runner.Register(NewCleanupSystem(h.table, h.metrics, log))
	return h
}

// Tick runs one full tick. Tick goroutine only.
func (h *Hub) Tick(dt time.Duration) {
	start := time.Now()
	h.runner.Tick(dt)
	h.metrics.AddTick(int64(time.Since(start)))
}

func (h *Hub) Metrics() *Metrics { return h.metrics }

// World exposes the server's world. Tick goroutine only.
func (h *Hub) World() *world.State { return h.world }

// Table exposes the connection table. Tick goroutine only.
func (h *Hub) Table() *Table { return h.table }

// CloseAll flushes pending output and disconnects every session. Joined
// connections get their leave journaled, since no tick will process the
// disconnect.
func (h *Hub) CloseAll() {
	for i := 0; i < h.table.Count(); i++ {
		c := h.table.Slot(i)
		if h.journal != nil && c.Live() && c.joined() {
			h.journal.RecordLeave(c.ID(), c.Session.IP)
		}
		c.dead.Store(true)
		c.Session.FlushOutput()
		c.Session.Close()
	}
}
