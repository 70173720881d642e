package server

import (
	"sync/atomic"

	"github.com/sasha-s/go-deadlock"
	"github.com/worldsync/server/internal/core/ident"
)

// LogEntry locates one outbound frame inside a log batch.
type LogEntry struct {
	Sender     ident.Ref
	start, end uint32
}

type logBuffer struct {
	data    []byte
	entries []LogEntry
	valid   []bool
}

// OutLog is the append-only record of every frame broadcast this tick. Any
// number of processor tasks may Append concurrently: each append reserves its
// entry index and byte range with an atomic add, so writers never overlap.
// Appends that do not fit spill into a locked overflow list instead of being
// lost; the apply step replays the log into the world, and a missing
// JOINED or LEFT would leave it out of step with what peers were sent.
// The apply step calls Swap between ticks to take the batch.
type OutLog struct {
	cur   *logBuffer
	spare *logBuffer

	cursor atomic.Uint64 // next free byte
	next   atomic.Uint64 // next free entry

	spillMu deadlock.Mutex
	spill   []spilled
}

type spilled struct {
	sender ident.Ref
	frame  []byte
}

// NewOutLog sizes both halves of the log.
func NewOutLog(capacity, entries int) *OutLog {
	return &OutLog{
		cur:   newLogBuffer(capacity, entries),
		spare: newLogBuffer(capacity, entries),
	}
}

func newLogBuffer(capacity, entries int) *logBuffer {
	return &logBuffer{
		data:    make([]byte, capacity),
		entries: make([]LogEntry, entries),
		valid:   make([]bool, entries),
	}
}

// Append records frame for this tick. It returns false when the tick's byte
// or entry capacity was exhausted and the frame went to the overflow list.
// Both cursors only grow, so once one append of a writer spills, all of its
// later appends this tick spill too and per-writer order is kept. frame must
// not be modified afterwards.
func (l *OutLog) Append(sender ident.Ref, frame []byte) bool {
	buf := l.cur
	idx := l.next.Add(1) - 1
	if idx < uint64(len(buf.entries)) {
		end := l.cursor.Add(uint64(len(frame)))
		start := end - uint64(len(frame))
		if end <= uint64(len(buf.data)) {
			copy(buf.data[start:end], frame)
			buf.entries[idx] = LogEntry{Sender: sender, start: uint32(start), end: uint32(end)}
			buf.valid[idx] = true
			return true
		}
	}
	l.spillMu.Lock()
	l.spill = append(l.spill, spilled{sender: sender, frame: frame})
	l.spillMu.Unlock()
	return false
}

// Batch is a read-only view of one tick's log.
type Batch struct {
	buf   *logBuffer
	n     int
	spill []spilled
}

// Len returns the number of entries, including reserved slots whose frame
// spilled.
func (b Batch) Len() int { return b.n + len(b.spill) }

// Spilled returns how many frames did not fit the preallocated buffer.
func (b Batch) Spilled() int { return len(b.spill) }

// Entry returns the i-th frame. Buffered frames come first in reservation
// order, then spilled frames in append order. ok is false for a reserved
// slot whose frame spilled; it appears again later in the batch.
func (b Batch) Entry(i int) (ident.Ref, []byte, bool) {
	if i >= b.n {
		s := b.spill[i-b.n]
		return s.sender, s.frame, true
	}
	if !b.buf.valid[i] {
		return 0, nil, false
	}
	e := b.buf.entries[i]
	return e.Sender, b.buf.data[e.start:e.end], true
}

// Swap hands the filled buffer to the caller and gives writers an empty one.
// It must not race with Append. The batch stays valid until the next Swap.
// A tick that spilled doubles the capacity of the buffer writers get next.
func (l *OutLog) Swap() Batch {
	n := min(l.next.Load(), uint64(len(l.cur.entries)))
	b := Batch{buf: l.cur, n: int(n), spill: l.spill}
	l.spill = nil

	next := l.spare
	switch {
	case len(b.spill) > 0:
		next = newLogBuffer(2*len(l.cur.data), 2*len(l.cur.entries))
	case len(next.data) < len(l.cur.data) || len(next.entries) < len(l.cur.entries):
		next = newLogBuffer(len(l.cur.data), len(l.cur.entries))
	default:
		clear(next.valid)
	}
	l.cur, l.spare = next, l.cur
	l.cursor.Store(0)
	l.next.Store(0)
	return b
}
