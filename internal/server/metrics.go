package server

import "sync/atomic"

// Metrics are process-wide counters, safe to bump from processor tasks.
type Metrics struct {
	Connections atomic.Int64 // gauge
	Entities    atomic.Int64 // gauge
	Accepted    atomic.Int64
	Refused     atomic.Int64
	Reaped      atomic.Int64
	FramesIn    atomic.Int64
	Malformed   atomic.Int64
	Unknown     atomic.Int64
	Broadcasts  atomic.Int64
	Delivered   atomic.Int64
	Snapshots   atomic.Int64
	StaleDrops  atomic.Int64
	LogSpilled  atomic.Int64
	ChatBlocked atomic.Int64

	TickCount   atomic.Int64
	TotalTickNs atomic.Int64
}

func (m *Metrics) AddTick(ns int64) {
	m.TickCount.Add(1)
	m.TotalTickNs.Add(ns)
}

// Snapshot returns a read-only copy for the admin endpoint.
func (m *Metrics) Snapshot() map[string]any {
	tick := m.TickCount.Load()
	total := m.TotalTickNs.Load()
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"connections":    m.Connections.Load(),
		"entities":       m.Entities.Load(),
		"accepted":       m.Accepted.Load(),
		"refused":        m.Refused.Load(),
		"reaped":         m.Reaped.Load(),
		"frames_in":      m.FramesIn.Load(),
		"malformed":      m.Malformed.Load(),
		"unknown_events": m.Unknown.Load(),
		"broadcasts":     m.Broadcasts.Load(),
		"delivered":      m.Delivered.Load(),
		"snapshots":      m.Snapshots.Load(),
		"stale_drops":    m.StaleDrops.Load(),
		"log_spilled":    m.LogSpilled.Load(),
		"chat_blocked":   m.ChatBlocked.Load(),
		"tick_count":     tick,
		"avg_tick_ms":    avgMs,
	}
}
