package server

import "github.com/worldsync/server/internal/core/ident"

// Broadcast queues frame on every live, joined connection except the one
// whose wire id is exclude, and returns the number of recipients. Safe to
// call from concurrent processor tasks: the table is not mutated during the
// process phase and Session.Send is concurrency-safe.
func (t *Table) Broadcast(frame []byte, exclude uint16) int {
	n := 0
	for _, c := range t.slots {
		if c.ID() == exclude || !c.Live() || !c.joined() {
			continue
		}
		c.Session.Send(frame)
		n++
	}
	return n
}

// Unicast queues frame on the connection that owns ref. It reports false
// when ref is stale or its connection is already dead.
func (t *Table) Unicast(frame []byte, ref ident.Ref) bool {
	c, err := t.Resolve(ref)
	if err != nil || !c.Live() {
		return false
	}
	c.Session.Send(frame)
	return true
}
