package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"

	"github.com/barkit/barlink/segment"
	"github.com/barkit/barlink/shmring"
	"github.com/barkit/barlink/shmring/wake"
)

// Config holds all daemon configuration.
type Config struct {
	Channel   ChannelConfig   `yaml:"channel"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Logging   LogConfig       `yaml:"logging"`
}

// ChannelConfig identifies and shapes the shared-memory channel.
type ChannelConfig struct {
	Name       string        `yaml:"name" envconfig:"BARLINK_CHANNEL" default:"status"`
	Monitor    int           `yaml:"monitor" envconfig:"BARLINK_MONITOR" default:"0"`
	SlotSize   uint32        `yaml:"slot_size" envconfig:"BARLINK_SLOT_SIZE" default:"512"`
	SlotCount  uint32        `yaml:"slot_count" envconfig:"BARLINK_SLOT_COUNT" default:"16"`
	Wake       string        `yaml:"wake" envconfig:"BARLINK_WAKE" default:"futex"`
	PollSpins  int           `yaml:"poll_spins" envconfig:"BARLINK_POLL_SPINS" default:"400"`
	StaleAfter time.Duration `yaml:"stale_after" envconfig:"BARLINK_STALE_AFTER" default:"5s"`
}

// TelemetryConfig tunes the feed daemon's sampler.
type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"BARLINK_TELEMETRY_INTERVAL" default:"2s"`
	// MaxPublishRate caps publishes per second across all triggers, so a
	// misbehaving event source cannot flood every attached bar.
	MaxPublishRate float64 `yaml:"max_publish_rate" envconfig:"BARLINK_MAX_PUBLISH_RATE" default:"30"`
	// Battery names the /sys/class/power_supply entry; empty auto-detects.
	Battery string `yaml:"battery" envconfig:"BARLINK_BATTERY" default:""`
}

// BridgeConfig holds the websocket bridge's HTTP settings.
type BridgeConfig struct {
	Addr         string   `yaml:"addr" envconfig:"BARLINK_BRIDGE_ADDR" default:"127.0.0.1:8377"`
	AllowOrigins []string `yaml:"allow_origins" envconfig:"BARLINK_BRIDGE_ORIGINS" default:"http://localhost:1420,http://localhost:5173"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `yaml:"level" envconfig:"BARLINK_LOG_LEVEL" default:"info"`
	Development bool   `yaml:"development" envconfig:"BARLINK_LOG_DEV" default:"false"`
}

// Load reads configuration from the environment, falling back to the
// struct tag defaults for anything unset.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads a YAML config file over the defaults. Environment
// variables are ignored when a file is given, so a file fully describes a
// deployment.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads from the environment or returns pure defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		cfg = &Config{}
		_ = envconfig.Process("", cfg)
	}
	return cfg
}

// SegmentName derives the shared-memory object name for this channel.
func (c ChannelConfig) SegmentName() string {
	return segment.Name(c.Name, c.Monitor)
}

// RingConfig converts the channel settings into a shmring.Config.
func (c ChannelConfig) RingConfig() (shmring.Config, error) {
	kind, err := wake.ParseKind(c.Wake)
	if err != nil {
		return shmring.Config{}, err
	}
	return shmring.Config{
		SlotSize:   c.SlotSize,
		SlotCount:  c.SlotCount,
		Strategy:   kind,
		PollSpins:  c.PollSpins,
		StaleAfter: c.StaleAfter,
	}, nil
}

// AttachOptions converts the channel settings into consumer options.
func (c ChannelConfig) AttachOptions() shmring.AttachOptions {
	return shmring.AttachOptions{
		PollSpins:  c.PollSpins,
		StaleAfter: c.StaleAfter,
	}
}
