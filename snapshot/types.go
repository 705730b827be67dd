package snapshot

import "time"

// Field capacity limits. These are part of the wire format: changing any of
// them requires bumping the segment format version.
const (
	MaxTags          = 9
	MaxClientNameLen = 128
	MaxLayoutSymLen  = 32
)

// TagStatus describes one workspace tag on a monitor.
type TagStatus struct {
	Selected bool `json:"selected"`
	Urgent   bool `json:"urgent"`
	Filled   bool `json:"filled"`
	Occupied bool `json:"occupied"`
}

// MonitorInfo is the window-manager side of a snapshot: one monitor's
// geometry, tag states, focused client and active layout.
type MonitorInfo struct {
	Num    int32 `json:"num"`
	X      int32 `json:"x"`
	Y      int32 `json:"y"`
	Width  int32 `json:"width"`
	Height int32 `json:"height"`

	Tags [MaxTags]TagStatus `json:"tags"`

	// ClientName and LayoutSymbol are truncated on encode to
	// MaxClientNameLen-1 and MaxLayoutSymLen-1 bytes respectively.
	ClientName   string `json:"client_name"`
	LayoutSymbol string `json:"layout_symbol"`
}

// SystemMetrics is the telemetry side of a snapshot.
type SystemMetrics struct {
	CPUAverage     float32 `json:"cpu_average"`
	MemoryUsed     uint64  `json:"memory_used"`
	MemoryTotal    uint64  `json:"memory_total"`
	MemoryPercent  float32 `json:"memory_percent"`
	BatteryPercent float32 `json:"battery_percent"`
	Charging       bool    `json:"charging"`
}

// Snapshot is the unit of publication: the full state a status bar needs to
// render one frame.
type Snapshot struct {
	// Timestamp is unix milliseconds at publish time.
	Timestamp uint64 `json:"timestamp"`

	Monitor MonitorInfo   `json:"monitor"`
	System  SystemMetrics `json:"system"`
}

// New returns a snapshot stamped with the current time.
func New() Snapshot {
	return Snapshot{Timestamp: NowMillis()}
}

// NowMillis returns the current wall clock in unix milliseconds, the time
// base used for snapshot timestamps and the producer heartbeat.
func NowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
