package bridge

import (
	"fmt"

	"github.com/barkit/barlink/shmring"
	"github.com/barkit/barlink/snapshot"
)

// Outbound message types.
const (
	msgSystem       = "system"
	msgSnapshot     = "snapshot"
	msgDisconnected = "disconnected"
	msgError        = "error"
	msgPong         = "pong"
)

// snapshotEvent is the JSON shape of one status update.
type snapshotEvent struct {
	Type      string      `json:"type"`
	Seq       uint64      `json:"seq"`
	Skipped   uint64      `json:"skipped"`
	Timestamp uint64      `json:"timestamp"`
	Monitor   monitorJSON `json:"monitor"`
	System    systemJSON  `json:"system"`
}

type monitorJSON struct {
	Num          int32     `json:"num"`
	X            int32     `json:"x"`
	Y            int32     `json:"y"`
	Width        int32     `json:"width"`
	Height       int32     `json:"height"`
	Tags         []tagJSON `json:"tags"`
	ClientName   string    `json:"client_name"`
	LayoutSymbol string    `json:"layout_symbol"`
}

type tagJSON struct {
	Selected bool `json:"selected"`
	Urgent   bool `json:"urgent"`
	Filled   bool `json:"filled"`
	Occupied bool `json:"occupied"`
}

type systemJSON struct {
	CPUAverage     float32 `json:"cpu_average"`
	MemoryUsed     uint64  `json:"memory_used"`
	MemoryTotal    uint64  `json:"memory_total"`
	MemoryPercent  float32 `json:"memory_percent"`
	BatteryPercent float32 `json:"battery_percent"`
	Charging       bool    `json:"charging"`
}

// clientMessage is anything a WebSocket client sends us.
type clientMessage struct {
	Type    string `json:"type"`
	Kind    string `json:"kind,omitempty"`
	Arg     uint32 `json:"arg,omitempty"`
	Monitor int32  `json:"monitor,omitempty"`
}

func newSnapshotEvent(upd shmring.Update) snapshotEvent {
	s := upd.Snapshot
	tags := make([]tagJSON, len(s.Monitor.Tags))
	for i, t := range s.Monitor.Tags {
		tags[i] = tagJSON{
			Selected: t.Selected,
			Urgent:   t.Urgent,
			Filled:   t.Filled,
			Occupied: t.Occupied,
		}
	}
	return snapshotEvent{
		Type:      msgSnapshot,
		Seq:       upd.Seq,
		Skipped:   upd.Skipped,
		Timestamp: s.Timestamp,
		Monitor: monitorJSON{
			Num:          s.Monitor.Num,
			X:            s.Monitor.X,
			Y:            s.Monitor.Y,
			Width:        s.Monitor.Width,
			Height:       s.Monitor.Height,
			Tags:         tags,
			ClientName:   s.Monitor.ClientName,
			LayoutSymbol: s.Monitor.LayoutSymbol,
		},
		System: systemJSON{
			CPUAverage:     s.System.CPUAverage,
			MemoryUsed:     s.System.MemoryUsed,
			MemoryTotal:    s.System.MemoryTotal,
			MemoryPercent:  s.System.MemoryPercent,
			BatteryPercent: s.System.BatteryPercent,
			Charging:       s.System.Charging,
		},
	}
}

// parseCommand converts a client command message into a channel command.
func parseCommand(msg clientMessage) (snapshot.Command, error) {
	switch msg.Kind {
	case "view_tag":
		return snapshot.ViewTag(msg.Arg, msg.Monitor), nil
	case "toggle_tag":
		return snapshot.ToggleTag(msg.Arg, msg.Monitor), nil
	case "set_layout":
		return snapshot.SetLayout(msg.Arg, msg.Monitor), nil
	default:
		return snapshot.Command{}, fmt.Errorf("unknown command kind: %q", msg.Kind)
	}
}
