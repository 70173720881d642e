package server

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	coresys "github.com/worldsync/server/internal/core/system"
	"github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChatFilter rewrites or rejects SOCIAL/SAY text before it is relayed.
// Implementations must be safe for concurrent use.
type ChatFilter interface {
	FilterSay(id uint16, text string) (string, bool)
}

// Journal records connection lifecycle outside the tick loop. Calls must
// not block.
type Journal interface {
	RecordJoin(id uint16, addr string)
	RecordLeave(id uint16, addr string)
}

// ProcessorConfig bounds per-tick work.
type ProcessorConfig struct {
	MaxFramesPerTick int
	Workers          int // 0 = one task per connection, unbounded
}

// Processor runs every live connection's inbound events in parallel each
// tick. A task touches only its own connection's queue and state; shared
// effects go through the OutLog and Session.Send.
type Processor struct {
	table    *Table
	outlog   *OutLog
	registry *packet.Registry[*Conn]
	chat     ChatFilter
	journal  Journal
	cfg      ProcessorConfig
	metrics  *Metrics
	log      *zap.Logger
}

func NewProcessor(table *Table, outlog *OutLog, chat ChatFilter, journal Journal, metrics *Metrics, cfg ProcessorConfig, log *zap.Logger) *Processor {
	p := &Processor{
		table:    table,
		outlog:   outlog,
		registry: packet.NewRegistry[*Conn](log),
		chat:     chat,
		journal:  journal,
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
	}
	p.registerHandlers()
	return p
}

func (p *Processor) registerHandlers() {
	inWorld := []packet.SessionState{packet.StateInWorld}
	r := p.registry

	r.Register(packet.DomainPlayer, packet.PlayerRequest,
		[]packet.SessionState{packet.StateAwaitingRequest, packet.StateInWorld}, p.handleRequest)
	r.Register(packet.DomainPlayer, packet.PlayerUpdate, inWorld, p.handleRelay)
	for _, sub := range []uint8{packet.PlayerList, packet.PlayerJoined, packet.PlayerLeft} {
		r.Register(packet.DomainPlayer, sub, packet.AnyState, handleServerOnly)
	}

	for st := packet.MoveNorth; st <= packet.MovePort; st++ {
		r.Register(packet.DomainMove, uint8(st), inWorld, p.handleRelay)
	}

	r.Register(packet.DomainSocial, packet.SocialSay, inWorld, p.handleSay)
	r.Register(packet.DomainSocial, packet.SocialEmote, inWorld, p.handleRelay)
}

func (p *Processor) Phase() coresys.Phase { return coresys.PhaseProcess }

func (p *Processor) Update(_ time.Duration) {
	if err := p.Process(context.Background()); err != nil {
		p.log.Error("process", zap.Error(err))
	}
}

// Process drains every live connection once. It returns when all tasks are
// done, so the caller may then mutate the table again. Connections not yet
// started when ctx is cancelled are skipped and ctx's error is returned.
func (p *Processor) Process(ctx context.Context) error {
	var g errgroup.Group
	if p.cfg.Workers > 0 {
		g.SetLimit(p.cfg.Workers)
	}
	for i := 0; i < p.table.Count(); i++ {
		c := p.table.Slot(i)
		if !c.Live() {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.processConn(c)
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) processConn(c *Conn) {
	dropping := false
	for _, ev := range c.Session.Poll(p.cfg.MaxFramesPerTick) {
		switch ev.Kind {
		case net.EventConnected:
			c.log.Debug("connected", zap.String("ip", c.Session.IP))

		case net.EventData:
			if dropping {
				continue
			}
			p.metrics.FramesIn.Add(1)
			if err := p.handleFrame(c, ev.Frame); err != nil {
				switch {
				case errors.Is(err, packet.ErrMalformedRecord), errors.Is(err, packet.ErrTruncatedPayload):
					p.metrics.Malformed.Add(1)
					c.log.Warn("malformed frame, dropping rest of queue for this tick", zap.Error(err))
					dropping = true
				case errors.Is(err, packet.ErrUnknownEvent):
					p.metrics.Unknown.Add(1)
					c.log.Debug("unknown event dropped", zap.Error(err))
				default:
					c.log.Debug("frame dropped", zap.Error(err))
				}
			}

		case net.EventDisconnected:
			p.disconnect(c)
			return
		}
	}
}

func (p *Processor) handleFrame(c *Conn, frame []byte) error {
	if len(frame) < packet.RequestHeaderSize {
		return fmt.Errorf("request header: %d bytes: %w", len(frame), packet.ErrMalformedRecord)
	}
	m, err := packet.DecodeMessage(packet.Stamp(c.ID(), frame))
	if err != nil {
		return err
	}
	return p.registry.Dispatch(c, c.Session.State(), m)
}

// relay logs m and fans it out to everyone but its sender.
func (p *Processor) relay(c *Conn, m packet.Message) {
	frame := m.Encode()
	if !p.outlog.Append(c.Ref, frame) {
		p.metrics.LogSpilled.Add(1)
	}
	n := p.table.Broadcast(frame, c.ID())
	p.metrics.Broadcasts.Add(1)
	p.metrics.Delivered.Add(int64(n))
}

func (p *Processor) handleRequest(c *Conn, m packet.Message) error {
	if c.Session.State() == packet.StateInWorld {
		c.wantsList, c.resync = true, true
		return nil
	}
	var rec *packet.EntityRecord
	if r, ok := m.Record(); ok {
		rec = &r
	}
	c.Session.SetState(packet.StateInWorld)
	p.relay(c, packet.Joined(c.ID(), rec))
	c.wantsList, c.resync = true, false
	if p.journal != nil {
		p.journal.RecordJoin(c.ID(), c.Session.IP)
	}
	c.log.Info("joined")
	return nil
}

func (p *Processor) handleRelay(c *Conn, m packet.Message) error {
	p.relay(c, m)
	return nil
}

func (p *Processor) handleSay(c *Conn, m packet.Message) error {
	if p.chat != nil {
		text, ok := p.chat.FilterSay(c.ID(), string(m.Payload))
		if !ok {
			p.metrics.ChatBlocked.Add(1)
			return nil
		}
		m.Payload = []byte(truncateUTF8(text, packet.MaxChatBytes))
	}
	p.relay(c, m)
	return nil
}

func handleServerOnly(_ *Conn, m packet.Message) error {
	return fmt.Errorf("%s is server-originated: %w", m.Name(), packet.ErrUnknownEvent)
}

func (p *Processor) disconnect(c *Conn) {
	wasJoined := c.joined()
	c.Session.SetState(packet.StateDisconnecting)
	c.dead.Store(true)
	c.wantsList = false
	if !wasJoined {
		c.log.Debug("disconnected before joining")
		return
	}
	p.relay(c, packet.Left(c.ID()))
	if p.journal != nil {
		p.journal.RecordLeave(c.ID(), c.Session.IP)
	}
	c.log.Info("left")
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
