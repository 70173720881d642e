// Package ident allocates the wire identities of connected entities.
package ident

import (
	"errors"
	"sort"
)

// ErrExhausted is returned when every u16 wire id is live or quarantined.
var ErrExhausted = errors.New("wire ids exhausted")

// ErrStaleIdentity marks an action that referenced an identity which has
// since been released or reissued.
var ErrStaleIdentity = errors.New("stale identity")

// Ref encodes the 16-bit wire id in the lower bits and a 16-bit generation in
// the upper bits. The generation increments on release so references taken
// before a disconnect never match the id's next owner.
type Ref uint32

func NewRef(id uint16, generation uint16) Ref {
	return Ref(uint32(generation)<<16 | uint32(id))
}

func (r Ref) ID() uint16         { return uint16(r) }
func (r Ref) Generation() uint16 { return uint16(r >> 16) }

// Pool hands out dense wire ids. A released id is quarantined until Confirm
// is called, which the tick loop does once the id's LEFT broadcast has been
// flushed; only then can it be reissued. Lowest free id is reused first so
// snapshot lists stay short. Tick goroutine only.
type Pool struct {
	generations []uint16
	live        []bool
	freeList    []uint16 // sorted ascending
	quarantine  []uint16
	nextID      uint32
	limit       uint32
	liveCount   int
}

// NewPool creates a pool that issues ids below limit (at most 65536).
func NewPool(limit int) *Pool {
	if limit <= 0 || limit > 1<<16 {
		limit = 1 << 16
	}
	return &Pool{
		generations: make([]uint16, 0, 256),
		live:        make([]bool, 0, 256),
		limit:       uint32(limit),
	}
}

// Acquire issues the lowest available id.
func (p *Pool) Acquire() (Ref, error) {
	if len(p.freeList) > 0 {
		id := p.freeList[0]
		p.freeList = p.freeList[1:]
		p.live[id] = true
		p.liveCount++
		return NewRef(id, p.generations[id]), nil
	}
	if p.nextID >= p.limit {
		return 0, ErrExhausted
	}
	id := uint16(p.nextID)
	p.nextID++
	p.generations = append(p.generations, 0)
	p.live = append(p.live, true)
	p.liveCount++
	return NewRef(id, 0), nil
}

// Alive reports whether ref still names the current owner of its id.
func (p *Pool) Alive(ref Ref) bool {
	id := ref.ID()
	if uint32(id) >= p.nextID {
		return false
	}
	return p.live[id] && p.generations[id] == ref.Generation()
}

// Release invalidates ref and quarantines its id. Releasing a stale
// reference is a no-op.
func (p *Pool) Release(ref Ref) {
	if !p.Alive(ref) {
		return
	}
	id := ref.ID()
	p.generations[id]++
	p.live[id] = false
	p.liveCount--
	p.quarantine = append(p.quarantine, id)
}

// Confirm makes every quarantined id reusable.
func (p *Pool) Confirm() {
	if len(p.quarantine) == 0 {
		return
	}
	p.freeList = append(p.freeList, p.quarantine...)
	p.quarantine = p.quarantine[:0]
	sort.Slice(p.freeList, func(i, j int) bool { return p.freeList[i] < p.freeList[j] })
}

// Len returns the number of live ids.
func (p *Pool) Len() int {
	return p.liveCount
}
