// Command swarm connects a crowd of scripted clients to a world server and
// has them wander around, talk and emote. It is a load and smoke test tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/worldsync/server/internal/client"
	"github.com/worldsync/server/internal/config"
	"github.com/worldsync/server/internal/logging"
	gonet "github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/net/packet"
	"github.com/worldsync/server/internal/world"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var CLI struct {
	Addr     string        `help:"Server address." default:"127.0.0.1:7777"`
	Bots     int           `help:"Number of clients to connect." short:"n" default:"16"`
	Duration time.Duration `help:"How long to run (0 = until interrupted)." short:"d" default:"30s"`
	Tick     time.Duration `help:"Client tick interval." default:"50ms"`
	Act      int           `help:"Ticks between bot actions." default:"10"`
	Spread   float32       `help:"Side of the square bots spawn in." default:"64"`
	Verbose  bool          `help:"Log every chat line received." short:"v"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("swarm"),
		kong.Description("Drive a world server with scripted clients."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if CLI.Bots <= 0 || CLI.Act <= 0 || CLI.Tick <= 0 {
		return errors.New("bots, act and tick must be positive")
	}
	level := "info"
	if CLI.Verbose {
		level = "debug"
	}
	log, err := logging.New(config.LoggingConfig{Level: level, Format: "console"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if CLI.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, CLI.Duration)
		defer cancel()
	}

	bots := make([]*bot, CLI.Bots)
	g, ctx := errgroup.WithContext(ctx)
	for i := range bots {
		b := &bot{n: i, log: log.With(zap.Int("bot", i))}
		bots[i] = b
		g.Go(func() error { return b.run(ctx) })
	}
	err = g.Wait()

	var received, said int64
	for _, b := range bots {
		received += b.received
		said += b.said
	}
	log.Info("swarm finished",
		zap.Int("bots", len(bots)),
		zap.Int64("frames_received", received),
		zap.Int64("lines_said", said))

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

type bot struct {
	n        int
	log      *zap.Logger
	received int64
	said     int64
}

func (b *bot) Say(id uint16, text string) {
	b.log.Debug("chat", zap.Uint16("from", id), zap.String("text", text))
}

func (b *bot) Emote(id uint16, code byte) {
	b.log.Debug("emote", zap.Uint16("from", id), zap.Uint8("code", code))
}

func (b *bot) run(ctx context.Context) error {
	c, err := client.Dial(ctx, client.Options{
		Addr: CLI.Addr,
		Session: gonet.SessionConfig{
			InQueueSize:  256,
			OutQueueSize: 64,
			WriteTimeout: 5 * time.Second,
		},
		Movement: world.MovementConfig{Speed: 4, Gravity: 9.8, Workers: 1},
	}, client.Collaborators{Chat: b}, b.log)
	if err != nil {
		return fmt.Errorf("bot %d: %w", b.n, err)
	}
	defer func() {
		b.received = c.Received()
		c.Close()
	}()

	c.Join(&packet.EntityRecord{
		Position:      b.randomPoint(),
		MovementState: packet.MoveStopped,
	})

	ticker := time.NewTicker(CLI.Tick)
	defer ticker.Stop()
	last := time.Now()
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return fmt.Errorf("bot %d: %w", b.n, client.ErrDisconnected)
		case now := <-ticker.C:
			if err := c.Tick(ctx, now.Sub(last)); err != nil {
				return err
			}
			last = now
			if _, joined := c.Self(); joined && tick%CLI.Act == 0 {
				b.act(c)
			}
		}
	}
}

func (b *bot) act(c *client.Client) {
	switch r := rand.Intn(20); {
	case r == 0:
		c.Port(b.randomPoint())
	case r == 1:
		if err := c.Say(fmt.Sprintf("bot %d checking in", b.n)); err == nil {
			b.said++
		}
	case r == 2:
		c.Emote(byte(rand.Intn(8)))
	case r < 6:
		c.Move(packet.MoveStopped, nil)
	default:
		c.Move(packet.MovementState(rand.Intn(4)), nil)
	}
}

func (b *bot) randomPoint() mgl32.Vec3 {
	return mgl32.Vec3{rand.Float32() * CLI.Spread, 0, rand.Float32() * CLI.Spread}
}
