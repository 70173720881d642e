package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPath overrides the config file location when set.
const EnvPath = "WORLDSYNC_CONFIG"

// DefaultPath is used when neither the flag nor EnvPath is given.
const DefaultPath = "config/server.toml"

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Network   NetworkConfig   `toml:"network"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	World     WorldConfig     `toml:"world"`
	Chat      ChatConfig      `toml:"chat"`
	Journal   JournalConfig   `toml:"journal"`
	Admin     AdminConfig     `toml:"admin"`
	Logging   LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Name           string `toml:"name"`
	MaxConnections int    `toml:"max_connections"`
	StartTime      int64  // set at boot, not from config
}

type NetworkConfig struct {
	BindAddress      string        `toml:"bind_address"`
	WSAddress        string        `toml:"ws_address"` // "" disables WebSocket ingress
	TickRate         time.Duration `toml:"tick_rate"`
	InQueueSize      int           `toml:"in_queue_size"`
	OutQueueSize     int           `toml:"out_queue_size"`
	MaxFramesPerTick int           `toml:"max_frames_per_tick"`
	Workers          int           `toml:"workers"` // processor tasks in flight, 0 = unbounded
	WriteTimeout     time.Duration `toml:"write_timeout"`
	ReadTimeout      time.Duration `toml:"read_timeout"`
	LogCapacity      int           `toml:"log_capacity"` // outbound log bytes per tick
	LogEntries       int           `toml:"log_entries"`
}

type RateLimitConfig struct {
	Enabled         bool `toml:"enabled"`
	FramesPerSecond int  `toml:"frames_per_second"`
	Burst           int  `toml:"burst"`
}

type WorldConfig struct {
	Speed       float32 `toml:"speed"`
	Gravity     float32 `toml:"gravity"`
	GroundLevel float32 `toml:"ground_level"`
	Workers     int     `toml:"workers"`
	Tiles       string  `toml:"tiles"` // yaml tile table, "" disables
}

type ChatConfig struct {
	MaxBytes int    `toml:"max_bytes"`
	Script   string `toml:"script"` // lua filter, "" relays chat unfiltered
}

type JournalConfig struct {
	DSN       string `toml:"dsn"` // "" disables the session journal
	QueueSize int    `toml:"queue_size"`
	MaxConns  int    `toml:"max_conns"`
}

type AdminConfig struct {
	Address string `toml:"address"` // "" disables
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // "json" or "console"
	File       string `toml:"file"`   // also write to this rolling file
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Path resolves the config file: an explicit flag wins, then EnvPath, then
// DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	return DefaultPath
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	cfg := defaults()
	cfg.Server.StartTime = time.Now().Unix()
	return cfg
}

func (c *Config) validate() error {
	switch {
	case c.Server.MaxConnections <= 0 || c.Server.MaxConnections > 1<<16:
		return fmt.Errorf("server.max_connections %d out of range", c.Server.MaxConnections)
	case c.Network.TickRate <= 0:
		return fmt.Errorf("network.tick_rate must be positive")
	case c.Network.MaxFramesPerTick <= 0:
		return fmt.Errorf("network.max_frames_per_tick must be positive")
	case c.Network.LogCapacity <= 0 || c.Network.LogEntries <= 0:
		return fmt.Errorf("network.log_capacity and log_entries must be positive")
	case c.Chat.MaxBytes <= 0 || c.Chat.MaxBytes > 256:
		return fmt.Errorf("chat.max_bytes %d out of range (1..256)", c.Chat.MaxBytes)
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:           "worldsync",
			MaxConnections: 64,
		},
		Network: NetworkConfig{
			BindAddress:      "0.0.0.0:7777",
			TickRate:         50 * time.Millisecond,
			InQueueSize:      128,
			OutQueueSize:     256,
			MaxFramesPerTick: 32,
			WriteTimeout:     10 * time.Second,
			ReadTimeout:      60 * time.Second,
			LogCapacity:      64 * 1024,
			LogEntries:       4096,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			FramesPerSecond: 60,
			Burst:           30,
		},
		World: WorldConfig{
			Speed:       4,
			Gravity:     9.8,
			GroundLevel: 0,
		},
		Chat: ChatConfig{
			MaxBytes: 256,
		},
		Journal: JournalConfig{
			QueueSize: 1024,
			MaxConns:  4,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}
