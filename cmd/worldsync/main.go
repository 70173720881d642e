package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"github.com/worldsync/server/internal/config"
	"github.com/worldsync/server/internal/data"
	"github.com/worldsync/server/internal/logging"
	gonet "github.com/worldsync/server/internal/net"
	"github.com/worldsync/server/internal/persist"
	"github.com/worldsync/server/internal/scripting"
	"github.com/worldsync/server/internal/server"
	"github.com/worldsync/server/internal/world"
	"go.uber.org/zap"
)

const version = "v0.1.0"

var CLI struct {
	Serve struct {
		Config string `help:"Path to the TOML config file." short:"c" type:"path"`
	} `cmd:"" default:"withargs" help:"Run the world server."`

	Defaults struct{} `cmd:"" help:"Print the default configuration as TOML."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("worldsync"),
		kong.Description("An authoritative server that keeps a shared world in sync across clients."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
	)

	var err error
	switch ctx.Command() {
	case "defaults":
		err = toml.NewEncoder(os.Stdout).Encode(config.Defaults())
	default:
		err = run(CLI.Serve.Config)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(flag string) (*config.Config, error) {
	path := config.Path(flag)
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == config.DefaultPath && errors.Is(err, os.ErrNotExist) {
		return config.Defaults(), nil
	}
	return nil, err
}

// ── Main server logic ─────────────────────────────────────────────

func run(configFlag string) error {
	// 1. Load config
	cfg, err := loadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, version)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Session journal (optional)
	printSection("journal")
	var journal server.Journal
	var sessionJournal *persist.SessionJournal
	if cfg.Journal.DSN != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		db, err := persist.NewDB(ctx, cfg.Journal, log)
		if err != nil {
			cancel()
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		err = db.Migrate(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")

		sessionJournal = persist.NewSessionJournal(persist.NewJournalRepo(db, cfg.Server.Name), cfg.Journal.QueueSize, log)
		go sessionJournal.Run(rootCtx)
		journal = sessionJournal
	} else {
		printSkip("disabled")
	}
	fmt.Println()

	// 4. Data and scripts
	printSection("data")
	var tiles world.TileLookup
	if cfg.World.Tiles != "" {
		table, err := data.LoadTileTable(cfg.World.Tiles)
		if err != nil {
			return fmt.Errorf("load tile table: %w", err)
		}
		printStat("tiles", table.Count())
		tiles = table
	} else {
		printSkip("no tile table")
	}

	var chat server.ChatFilter
	if cfg.Chat.Script != "" {
		engine, err := scripting.NewEngine(cfg.Chat.Script, cfg.Chat.MaxBytes, log)
		if err != nil {
			return fmt.Errorf("lua engine: %w", err)
		}
		defer engine.Close()
		printOK("chat filter loaded")
		chat = engine
	} else {
		printSkip("chat relayed unfiltered")
	}
	fmt.Println()

	// 5. Network server
	sessCfg := gonet.SessionConfig{
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		WriteTimeout: cfg.Network.WriteTimeout,
		ReadTimeout:  cfg.Network.ReadTimeout,
	}
	if cfg.RateLimit.Enabled {
		sessCfg.FramesPerSecond = cfg.RateLimit.FramesPerSecond
		sessCfg.Burst = cfg.RateLimit.Burst
	}
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, sessCfg, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	if cfg.Network.WSAddress != "" {
		if err := netServer.ListenWS(cfg.Network.WSAddress); err != nil {
			netServer.Shutdown()
			return fmt.Errorf("websocket: %w", err)
		}
	}

	// 6. Hub and its systems
	hub := server.NewHub(server.Options{
		MaxConnections: cfg.Server.MaxConnections,
		LogCapacity:    cfg.Network.LogCapacity,
		LogEntries:     cfg.Network.LogEntries,
		Processor: server.ProcessorConfig{
			MaxFramesPerTick: cfg.Network.MaxFramesPerTick,
			Workers:          cfg.Network.Workers,
		},
		Movement: world.MovementConfig{
			Speed:       cfg.World.Speed,
			Gravity:     cfg.World.Gravity,
			GroundLevel: cfg.World.GroundLevel,
			Workers:     cfg.World.Workers,
		},
	}, netServer.NewSessions(), server.Collaborators{
		Chat:    chat,
		Journal: journal,
		Tiles:   tiles,
	}, log)

	var admin *http.Server
	if cfg.Admin.Address != "" {
		admin = &http.Server{
			Addr:              cfg.Admin.Address,
			Handler:           hub.AdminHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("admin listener stopped", zap.Error(err))
			}
		}()
	}

	// 7. Start tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s", netServer.Addr().String()))
	if cfg.Network.WSAddress != "" {
		printReady(fmt.Sprintf("websocket on %s", cfg.Network.WSAddress))
	}
	if admin != nil {
		printReady(fmt.Sprintf("admin on %s", cfg.Admin.Address))
	}
	printReady(fmt.Sprintf("tick loop started (tick: %s, max connections: %d)", cfg.Network.TickRate, cfg.Server.MaxConnections))
	fmt.Println()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			hub.Tick(now.Sub(last))
			last = now
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			netServer.Shutdown()
			hub.CloseAll()
			if admin != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = admin.Shutdown(ctx)
				cancel()
			}
			stop()
			if sessionJournal != nil {
				sessionJournal.Wait()
			}
			log.Info("server stopped", zap.Any("metrics", hub.Metrics().Snapshot()))
			return nil
		}
	}
}
