package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkit/barlink/internal/logging"
)

func testSampler(t *testing.T) (*Sampler, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewSampler("", logging.NewDefault())
	s.procStat = filepath.Join(dir, "stat")
	s.procMeminfo = filepath.Join(dir, "meminfo")
	s.powerDir = filepath.Join(dir, "power_supply")
	return s, dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSampleCPUDelta(t *testing.T) {
	s, _ := testSampler(t)

	// user nice system idle iowait irq softirq
	writeFile(t, s.procStat, "cpu  100 0 100 800 0 0 0\ncpu0 100 0 100 800 0 0 0\n")
	cpu, err := s.sampleCPU()
	require.NoError(t, err)
	assert.Zero(t, cpu, "first sample has no baseline")

	// +200 busy, +200 idle since the baseline: 50% load.
	writeFile(t, s.procStat, "cpu  200 0 200 1000 0 0 0\n")
	cpu, err = s.sampleCPU()
	require.NoError(t, err)
	assert.InDelta(t, 50.0, cpu, 0.01)
}

func TestSampleCPUNoProgress(t *testing.T) {
	s, _ := testSampler(t)

	writeFile(t, s.procStat, "cpu  100 0 100 800 0 0 0\n")
	_, err := s.sampleCPU()
	require.NoError(t, err)

	cpu, err := s.sampleCPU()
	require.NoError(t, err)
	assert.Zero(t, cpu, "identical counters mean no measurable interval")
}

func TestSampleMemory(t *testing.T) {
	s, _ := testSampler(t)

	writeFile(t, s.procMeminfo, "MemTotal:       16384000 kB\nMemFree:         1000000 kB\nMemAvailable:    8192000 kB\n")
	used, total, err := s.sampleMemory()
	require.NoError(t, err)
	assert.Equal(t, uint64(16384000*1024), total)
	assert.Equal(t, uint64(8192000*1024), used)
}

func TestSampleBatteryAutoDetect(t *testing.T) {
	s, _ := testSampler(t)

	// An AC adapter entry must be skipped in favor of the battery.
	writeFile(t, filepath.Join(s.powerDir, "AC", "type"), "Mains\n")
	writeFile(t, filepath.Join(s.powerDir, "BAT0", "type"), "Battery\n")
	writeFile(t, filepath.Join(s.powerDir, "BAT0", "capacity"), "77\n")
	writeFile(t, filepath.Join(s.powerDir, "BAT0", "status"), "Charging\n")

	pct, charging, err := s.sampleBattery()
	require.NoError(t, err)
	assert.InDelta(t, 77.0, pct, 0.01)
	assert.True(t, charging)
}

func TestSampleBatteryAbsent(t *testing.T) {
	s, _ := testSampler(t)

	pct, charging, err := s.sampleBattery()
	require.NoError(t, err)
	assert.Zero(t, pct)
	assert.False(t, charging)
}

func TestSampleDegradesGracefully(t *testing.T) {
	s, _ := testSampler(t)

	// No sources exist at all; Sample must still return a usable zero value.
	m := s.Sample()
	assert.Zero(t, m.CPUAverage)
	assert.Zero(t, m.MemoryTotal)
	assert.False(t, m.Charging)
}

func TestSampleFull(t *testing.T) {
	s, _ := testSampler(t)

	writeFile(t, s.procStat, "cpu  100 0 100 800 0 0 0\n")
	writeFile(t, s.procMeminfo, "MemTotal:       8000000 kB\nMemAvailable:   2000000 kB\n")
	writeFile(t, filepath.Join(s.powerDir, "BAT0", "type"), "Battery\n")
	writeFile(t, filepath.Join(s.powerDir, "BAT0", "capacity"), "50\n")
	writeFile(t, filepath.Join(s.powerDir, "BAT0", "status"), "Discharging\n")

	m := s.Sample()
	assert.Equal(t, uint64(8000000*1024), m.MemoryTotal)
	assert.Equal(t, uint64(6000000*1024), m.MemoryUsed)
	assert.InDelta(t, 75.0, m.MemoryPercent, 0.01)
	assert.InDelta(t, 50.0, m.BatteryPercent, 0.01)
	assert.False(t, m.Charging)
}
