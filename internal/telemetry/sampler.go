package telemetry

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/barkit/barlink/internal/logging"
	"github.com/barkit/barlink/snapshot"
)

// Sampler collects the host metrics carried in a status snapshot. CPU load
// is a delta between consecutive samples, so the first Sample always reports
// zero CPU.
//
// A Sampler is meant to be driven by a single ticker loop; it is not safe
// for concurrent use.
type Sampler struct {
	log     *logging.Logger
	battery string

	// Source paths, overridable in tests.
	procStat    string
	procMeminfo string
	powerDir    string

	prevBusy  uint64
	prevTotal uint64
	primed    bool
}

// NewSampler creates a sampler. battery names a /sys/class/power_supply
// entry; empty auto-detects the first battery, and a machine with none
// reports zero charge and not charging.
func NewSampler(battery string, log *logging.Logger) *Sampler {
	return &Sampler{
		log:         log,
		battery:     battery,
		procStat:    "/proc/stat",
		procMeminfo: "/proc/meminfo",
		powerDir:    "/sys/class/power_supply",
	}
}

// Sample reads all sources and returns the current metrics. Individual
// source failures degrade to zero values rather than failing the snapshot;
// a status bar with a blank gauge beats one that stops updating.
func (s *Sampler) Sample() snapshot.SystemMetrics {
	var m snapshot.SystemMetrics

	if cpu, err := s.sampleCPU(); err != nil {
		s.log.Debug("cpu sample failed", zap.Error(err))
	} else {
		m.CPUAverage = cpu
	}

	if used, total, err := s.sampleMemory(); err != nil {
		s.log.Debug("memory sample failed", zap.Error(err))
	} else {
		m.MemoryUsed = used
		m.MemoryTotal = total
		if total > 0 {
			m.MemoryPercent = float32(float64(used) / float64(total) * 100)
		}
	}

	if pct, charging, err := s.sampleBattery(); err != nil {
		s.log.Debug("battery sample failed", zap.Error(err))
	} else {
		m.BatteryPercent = pct
		m.Charging = charging
	}

	return m
}

// sampleCPU returns the aggregate busy percentage since the previous call.
func (s *Sampler) sampleCPU() (float32, error) {
	f, err := os.Open(s.procStat)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// Aggregate line only; per-core lines are "cpu0", "cpu1", ...
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}

		var busy, total uint64
		for i, raw := range fields[1:] {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return 0, err
			}
			total += v
			// Fields 4 and 5 are idle and iowait.
			if i != 3 && i != 4 {
				busy += v
			}
		}

		prevBusy, prevTotal, primed := s.prevBusy, s.prevTotal, s.primed
		s.prevBusy, s.prevTotal, s.primed = busy, total, true
		if !primed || total <= prevTotal {
			return 0, nil
		}
		return float32(float64(busy-prevBusy) / float64(total-prevTotal) * 100), nil
	}
	return 0, scanner.Err()
}

// sampleMemory returns used and total bytes. Used follows the kernel's
// MemAvailable, which accounts for reclaimable caches.
func (s *Sampler) sampleMemory() (used, total uint64, err error) {
	f, err := os.Open(s.procMeminfo)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var memTotal, memAvailable uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		v, perr := strconv.ParseUint(fields[1], 10, 64)
		if perr != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			memTotal = v * 1024
		case "MemAvailable:":
			memAvailable = v * 1024
		}
		if memTotal > 0 && memAvailable > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, err
	}
	if memAvailable > memTotal {
		memAvailable = memTotal
	}
	return memTotal - memAvailable, memTotal, nil
}

// sampleBattery returns the charge percentage and charging state.
func (s *Sampler) sampleBattery() (float32, bool, error) {
	dir := s.battery
	if dir == "" {
		found, err := s.findBattery()
		if err != nil {
			return 0, false, err
		}
		if found == "" {
			return 0, false, nil
		}
		dir = found
	}

	base := filepath.Join(s.powerDir, dir)
	capRaw, err := os.ReadFile(filepath.Join(base, "capacity"))
	if err != nil {
		return 0, false, err
	}
	pct, err := strconv.ParseFloat(strings.TrimSpace(string(capRaw)), 32)
	if err != nil {
		return 0, false, err
	}

	charging := false
	if statusRaw, err := os.ReadFile(filepath.Join(base, "status")); err == nil {
		status := strings.TrimSpace(string(statusRaw))
		charging = status == "Charging" || status == "Full"
	}
	return float32(pct), charging, nil
}

// findBattery locates the first power_supply entry of type Battery.
func (s *Sampler) findBattery() (string, error) {
	entries, err := os.ReadDir(s.powerDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	for _, e := range entries {
		raw, err := os.ReadFile(filepath.Join(s.powerDir, e.Name(), "type"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(raw)) == "Battery" {
			return e.Name(), nil
		}
	}
	return "", nil
}
