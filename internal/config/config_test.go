package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkit/barlink/shmring/wake"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// Channel config
	assert.Equal(t, "status", cfg.Channel.Name)
	assert.Equal(t, 0, cfg.Channel.Monitor)
	assert.Equal(t, uint32(512), cfg.Channel.SlotSize)
	assert.Equal(t, uint32(16), cfg.Channel.SlotCount)
	assert.Equal(t, "futex", cfg.Channel.Wake)
	assert.Equal(t, 400, cfg.Channel.PollSpins)
	assert.Equal(t, 5*time.Second, cfg.Channel.StaleAfter)

	// Telemetry config
	assert.Equal(t, 2*time.Second, cfg.Telemetry.Interval)
	assert.Equal(t, 30.0, cfg.Telemetry.MaxPublishRate)

	// Bridge config
	assert.Equal(t, "127.0.0.1:8377", cfg.Bridge.Addr)
	assert.Len(t, cfg.Bridge.AllowOrigins, 2)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"BARLINK_CHANNEL":     "statusbar",
		"BARLINK_MONITOR":     "1",
		"BARLINK_SLOT_SIZE":   "1024",
		"BARLINK_SLOT_COUNT":  "32",
		"BARLINK_WAKE":        "eventfd",
		"BARLINK_POLL_SPINS":  "100",
		"BARLINK_STALE_AFTER": "10s",
		"BARLINK_LOG_LEVEL":   "debug",
		"BARLINK_LOG_DEV":     "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "statusbar", cfg.Channel.Name)
	assert.Equal(t, 1, cfg.Channel.Monitor)
	assert.Equal(t, uint32(1024), cfg.Channel.SlotSize)
	assert.Equal(t, uint32(32), cfg.Channel.SlotCount)
	assert.Equal(t, "eventfd", cfg.Channel.Wake)
	assert.Equal(t, 100, cfg.Channel.PollSpins)
	assert.Equal(t, 10*time.Second, cfg.Channel.StaleAfter)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("BARLINK_CHANNEL", "tray")
	t.Setenv("BARLINK_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Verify overridden values
	assert.Equal(t, "tray", cfg.Channel.Name)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Verify default values still apply
	assert.Equal(t, uint32(512), cfg.Channel.SlotSize)
	assert.Equal(t, "futex", cfg.Channel.Wake)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "barlink.yaml")
	data := []byte(`
channel:
  name: dock
  monitor: 2
  slot_count: 64
  wake: semaphore
telemetry:
  interval: 500ms
bridge:
  addr: "0.0.0.0:9000"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "dock", cfg.Channel.Name)
	assert.Equal(t, 2, cfg.Channel.Monitor)
	assert.Equal(t, uint32(64), cfg.Channel.SlotCount)
	assert.Equal(t, "semaphore", cfg.Channel.Wake)
	assert.Equal(t, 500*time.Millisecond, cfg.Telemetry.Interval)
	assert.Equal(t, "0.0.0.0:9000", cfg.Bridge.Addr)

	// Fields the file omits keep their defaults
	assert.Equal(t, uint32(512), cfg.Channel.SlotSize)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSegmentName(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		monitor int
		want    string
	}{
		{"default", "status", 0, "barlink-status-0"},
		{"second monitor", "status", 1, "barlink-status-1"},
		{"custom channel", "dock", 3, "barlink-dock-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ChannelConfig{Name: tt.channel, Monitor: tt.monitor}
			assert.Equal(t, tt.want, c.SegmentName())
		})
	}
}

func TestRingConfig(t *testing.T) {
	c := ChannelConfig{
		SlotSize:   256,
		SlotCount:  8,
		Wake:       "eventfd",
		PollSpins:  50,
		StaleAfter: 3 * time.Second,
	}

	ring, err := c.RingConfig()
	require.NoError(t, err)
	assert.Equal(t, uint32(256), ring.SlotSize)
	assert.Equal(t, uint32(8), ring.SlotCount)
	assert.Equal(t, wake.EventFD, ring.Strategy)
	assert.Equal(t, 50, ring.PollSpins)
	assert.Equal(t, 3*time.Second, ring.StaleAfter)
}

func TestRingConfigBadStrategy(t *testing.T) {
	c := ChannelConfig{Wake: "spinlock"}
	_, err := c.RingConfig()
	assert.Error(t, err)
}
