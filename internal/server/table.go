package server

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/net/packet"
	"go.uber.org/zap"
)

// ErrCapacityExceeded is returned by Accept when every slot is taken.
var ErrCapacityExceeded = errors.New("connection capacity exceeded")

// Conn is one tracked connection. Its slot is an internal index that moves
// on reap; its Ref is the stable wire identity peers know it by.
type Conn struct {
	Session *net.Session
	Ref     ident.Ref

	slot int
	dead atomic.Bool

	// Written only by this connection's processor task, read by the apply
	// step after the process phase has joined.
	wantsList bool
	resync    bool

	log *zap.Logger
}

func (c *Conn) ID() uint16 { return c.Ref.ID() }

func (c *Conn) joined() bool { return c.Session.State() == packet.StateInWorld }

// Live reports whether the connection has not been marked for reaping.
func (c *Conn) Live() bool { return !c.dead.Load() }

// Table is the bounded set of live connections. It is mutated only between
// phases by the tick goroutine.
type Table struct {
	slots []*Conn
	byID  map[uint16]int
	ids   *ident.Pool
	max   int
}

func NewTable(max int) *Table {
	return &Table{
		slots: make([]*Conn, 0, max),
		byID:  make(map[uint16]int, max),
		ids:   ident.NewPool(0),
		max:   max,
	}
}

// Accept appends a slot for sess and issues its wire id.
func (t *Table) Accept(sess *net.Session, log *zap.Logger) (*Conn, error) {
	if len(t.slots) >= t.max {
		return nil, fmt.Errorf("%d/%d slots: %w", len(t.slots), t.max, ErrCapacityExceeded)
	}
	ref, err := t.ids.Acquire()
	if err != nil {
		return nil, fmt.Errorf("accept: %w", err)
	}
	c := &Conn{
		Session: sess,
		Ref:     ref,
		slot:    len(t.slots),
		log:     log.With(zap.Uint16("id", ref.ID())),
	}
	t.slots = append(t.slots, c)
	t.byID[ref.ID()] = c.slot
	return c, nil
}

// Count returns the number of occupied slots, dead or alive.
func (t *Table) Count() int { return len(t.slots) }

func (t *Table) Slot(i int) *Conn { return t.slots[i] }

// Lookup finds a connection by wire id.
func (t *Table) Lookup(id uint16) (*Conn, bool) {
	i, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	return t.slots[i], true
}

// Resolve finds the connection that currently owns ref.
func (t *Table) Resolve(ref ident.Ref) (*Conn, error) {
	c, ok := t.Lookup(ref.ID())
	if !ok || c.Ref != ref || !t.ids.Alive(ref) {
		return nil, fmt.Errorf("connection %d: %w", ref.ID(), ident.ErrStaleIdentity)
	}
	return c, nil
}

// Reap removes every dead connection by swapping the last slot into its
// place. The wire ids of reaped connections are quarantined until Confirm.
func (t *Table) Reap(onReap func(*Conn)) int {
	n := 0
	for i := 0; i < len(t.slots); {
		c := t.slots[i]
		if c.Live() {
			i++
			continue
		}
		last := len(t.slots) - 1
		if i != last {
			moved := t.slots[last]
			t.slots[i] = moved
			moved.slot = i
			t.byID[moved.ID()] = i
		}
		t.slots[last] = nil
		t.slots = t.slots[:last]
		delete(t.byID, c.ID())
		t.ids.Release(c.Ref)
		n++
		if onReap != nil {
			onReap(c)
		}
	}
	return n
}

// Confirm makes ids reaped before this call available for reuse.
func (t *Table) Confirm() {
	t.ids.Confirm()
}
