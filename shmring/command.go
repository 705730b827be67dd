package shmring

import (
	"encoding/binary"

	"github.com/barkit/barlink/segment"
	"github.com/barkit/barlink/snapshot"
)

// Command slot layout within segment.CommandSlotSize bytes: kind u32,
// arg u32, monitor i32, pad u32, timestamp u64. The command ring is a plain
// SPSC queue (one bar talking to one window manager per channel), so index
// publication alone orders the payload.
const (
	cmdKindOff    = 0
	cmdArgOff     = 4
	cmdMonitorOff = 8
	cmdTimeOff    = 16
)

func encodeCommand(slot []byte, cmd snapshot.Command) {
	binary.LittleEndian.PutUint32(slot[cmdKindOff:], uint32(cmd.Kind))
	binary.LittleEndian.PutUint32(slot[cmdArgOff:], cmd.Arg)
	binary.LittleEndian.PutUint32(slot[cmdMonitorOff:], uint32(cmd.Monitor))
	binary.LittleEndian.PutUint64(slot[cmdTimeOff:], cmd.Timestamp)
}

func decodeCommand(slot []byte) snapshot.Command {
	return snapshot.Command{
		Kind:      snapshot.CommandKind(binary.LittleEndian.Uint32(slot[cmdKindOff:])),
		Arg:       binary.LittleEndian.Uint32(slot[cmdArgOff:]),
		Monitor:   int32(binary.LittleEndian.Uint32(slot[cmdMonitorOff:])),
		Timestamp: binary.LittleEndian.Uint64(slot[cmdTimeOff:]),
	}
}

func commandCount(seg *segment.Segment) uint32 {
	return seg.CommandWriteIndex() - seg.CommandReadIndex()
}
