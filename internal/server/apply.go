package server

import (
	"errors"
	"time"

	"github.com/worldsync/server/internal/core/event"
	"github.com/worldsync/server/internal/core/ident"
	coresys "github.com/worldsync/server/internal/core/system"
	"github.com/worldsync/server/internal/net/packet"
	"github.com/worldsync/server/internal/world"
	"go.uber.org/zap"
)

// ApplySystem replays this tick's outbound log into the server's world, then
// answers pending snapshot requests from that world. Phase 2 (Apply).
type ApplySystem struct {
	table   *Table
	outlog  *OutLog
	world   *world.State
	tiles   world.TileLookup
	metrics *Metrics
	log     *zap.Logger
}

func NewApplySystem(table *Table, outlog *OutLog, ws *world.State, tiles world.TileLookup, metrics *Metrics, log *zap.Logger) *ApplySystem {
	return &ApplySystem{table: table, outlog: outlog, world: ws, tiles: tiles, metrics: metrics, log: log}
}

func (s *ApplySystem) Phase() coresys.Phase { return coresys.PhaseApply }

func (s *ApplySystem) Update(_ time.Duration) {
	batch := s.outlog.Swap()
	if n := batch.Spilled(); n > 0 {
		s.log.Warn("outbound log overflow, growing",
			zap.Int("spilled", n),
			zap.Int("entries", batch.Len()),
		)
	}
	for i := 0; i < batch.Len(); i++ {
		ref, frame, ok := batch.Entry(i)
		if !ok {
			continue
		}
		s.applyFrame(ref, frame)
	}
	s.answerSnapshots()
	s.metrics.Entities.Store(int64(s.world.Len()))
}

func (s *ApplySystem) applyFrame(ref ident.Ref, frame []byte) {
	m, err := packet.DecodeMessage(frame)
	if err != nil {
		s.log.Error("undecodable log entry", zap.Error(err))
		return
	}
	cmd, ok, err := event.FromMessage(m, ref)
	if err != nil {
		s.log.Debug("log entry not applied", zap.String("event", m.Name()), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if _, err := s.world.Apply(cmd, s.tiles); err != nil {
		if errors.Is(err, ident.ErrStaleIdentity) {
			s.metrics.StaleDrops.Add(1)
		}
		s.log.Debug("command dropped",
			zap.Uint16("id", ref.ID()),
			zap.String("kind", cmd.Kind.String()),
			zap.Error(err),
		)
	}
}

// answerSnapshots sends PLAYER/LIST to every connection that asked this
// tick. A first LIST replaces the state frames buffered for the requester,
// since it already reflects them; SOCIAL frames are not state and stay
// queued behind the LIST.
func (s *ApplySystem) answerSnapshots() {
	for i := 0; i < s.table.Count(); i++ {
		c := s.table.Slot(i)
		if !c.wantsList {
			continue
		}
		c.wantsList = false
		if !c.Live() {
			continue
		}
		var kept [][]byte
		if !c.resync {
			n := c.Session.DiscardOutput(func(frame []byte) bool {
				if isSocial(frame) {
					kept = append(kept, frame)
				}
				return false
			})
			if superseded := n - len(kept); superseded > 0 {
				c.log.Debug("superseded by snapshot", zap.Int("frames", superseded))
			}
		}
		chunks := s.world.Snapshot(c.ID())
		s.table.Unicast(packet.List(c.ID(), chunks).Encode(), c.Ref)
		for _, frame := range kept {
			s.table.Unicast(frame, c.Ref)
		}
		s.metrics.Snapshots.Add(1)
		c.log.Debug("snapshot sent", zap.Int("chunks", len(chunks)))
	}
}

// isSocial reports whether a server frame carries chat or an emote.
func isSocial(frame []byte) bool {
	return len(frame) >= packet.HeaderSize && packet.Domain(frame[2]) == packet.DomainSocial
}
