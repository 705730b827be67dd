package snapshot

import (
	"encoding/binary"
	"errors"
	"math"
)

// EncodedSize is the exact byte length of an encoded snapshot. The layout is
// fixed so that every slot write copies the same number of bytes and readers
// on any process agree on field offsets.
const EncodedSize = 232

var (
	// ErrPayloadTooLarge reports a destination buffer (slot) smaller than
	// the fixed encoding. This is a configuration bug on the caller's side,
	// not a runtime condition to retry.
	ErrPayloadTooLarge = errors.New("snapshot: encoded payload exceeds slot capacity")

	// ErrShortPayload reports a source buffer too small to hold a full
	// encoding.
	ErrShortPayload = errors.New("snapshot: payload shorter than encoded size")
)

// Byte offsets within an encoded snapshot. Kept together so the layout can
// be audited against consumers in other languages.
const (
	offTimestamp  = 0
	offMonitorNum = 8
	offMonitorX   = 12
	offMonitorY   = 16
	offMonitorW   = 20
	offMonitorH   = 24
	offTags       = 28
	offClientName = offTags + MaxTags          // 37
	offLayoutSym  = offClientName + MaxClientNameLen // 165
	offCPUAvg     = 200
	offMemPercent = 204
	offMemUsed    = 208
	offMemTotal   = 216
	offBattery    = 224
	offFlags      = 228
)

// Tag status bits packed into one byte per tag.
const (
	tagSelected = 1 << iota
	tagUrgent
	tagFilled
	tagOccupied
)

const flagCharging = 1

// Encode writes s into dst using the fixed little-endian layout and returns
// the number of bytes written. It fails with ErrPayloadTooLarge when dst
// cannot hold EncodedSize bytes; it never truncates a payload silently.
func Encode(s *Snapshot, dst []byte) (int, error) {
	if len(dst) < EncodedSize {
		return 0, ErrPayloadTooLarge
	}

	// Zero the region first so string padding and reserved bytes are
	// deterministic; the checksum covers every byte.
	for i := 0; i < EncodedSize; i++ {
		dst[i] = 0
	}

	binary.LittleEndian.PutUint64(dst[offTimestamp:], s.Timestamp)
	putInt32(dst[offMonitorNum:], s.Monitor.Num)
	putInt32(dst[offMonitorX:], s.Monitor.X)
	putInt32(dst[offMonitorY:], s.Monitor.Y)
	putInt32(dst[offMonitorW:], s.Monitor.Width)
	putInt32(dst[offMonitorH:], s.Monitor.Height)

	for i, ts := range s.Monitor.Tags {
		var b byte
		if ts.Selected {
			b |= tagSelected
		}
		if ts.Urgent {
			b |= tagUrgent
		}
		if ts.Filled {
			b |= tagFilled
		}
		if ts.Occupied {
			b |= tagOccupied
		}
		dst[offTags+i] = b
	}

	putString(dst[offClientName:offClientName+MaxClientNameLen], s.Monitor.ClientName)
	putString(dst[offLayoutSym:offLayoutSym+MaxLayoutSymLen], s.Monitor.LayoutSymbol)

	binary.LittleEndian.PutUint32(dst[offCPUAvg:], math.Float32bits(s.System.CPUAverage))
	binary.LittleEndian.PutUint32(dst[offMemPercent:], math.Float32bits(s.System.MemoryPercent))
	binary.LittleEndian.PutUint64(dst[offMemUsed:], s.System.MemoryUsed)
	binary.LittleEndian.PutUint64(dst[offMemTotal:], s.System.MemoryTotal)
	binary.LittleEndian.PutUint32(dst[offBattery:], math.Float32bits(s.System.BatteryPercent))
	if s.System.Charging {
		dst[offFlags] = flagCharging
	}

	return EncodedSize, nil
}

// Decode parses an encoded snapshot from src. Extra trailing bytes are
// ignored so a slot sized larger than EncodedSize still decodes.
func Decode(src []byte) (Snapshot, error) {
	var s Snapshot
	if len(src) < EncodedSize {
		return s, ErrShortPayload
	}

	s.Timestamp = binary.LittleEndian.Uint64(src[offTimestamp:])
	s.Monitor.Num = getInt32(src[offMonitorNum:])
	s.Monitor.X = getInt32(src[offMonitorX:])
	s.Monitor.Y = getInt32(src[offMonitorY:])
	s.Monitor.Width = getInt32(src[offMonitorW:])
	s.Monitor.Height = getInt32(src[offMonitorH:])

	for i := range s.Monitor.Tags {
		b := src[offTags+i]
		s.Monitor.Tags[i] = TagStatus{
			Selected: b&tagSelected != 0,
			Urgent:   b&tagUrgent != 0,
			Filled:   b&tagFilled != 0,
			Occupied: b&tagOccupied != 0,
		}
	}

	s.Monitor.ClientName = getString(src[offClientName : offClientName+MaxClientNameLen])
	s.Monitor.LayoutSymbol = getString(src[offLayoutSym : offLayoutSym+MaxLayoutSymLen])

	s.System.CPUAverage = math.Float32frombits(binary.LittleEndian.Uint32(src[offCPUAvg:]))
	s.System.MemoryPercent = math.Float32frombits(binary.LittleEndian.Uint32(src[offMemPercent:]))
	s.System.MemoryUsed = binary.LittleEndian.Uint64(src[offMemUsed:])
	s.System.MemoryTotal = binary.LittleEndian.Uint64(src[offMemTotal:])
	s.System.BatteryPercent = math.Float32frombits(binary.LittleEndian.Uint32(src[offBattery:]))
	s.System.Charging = src[offFlags]&flagCharging != 0

	return s, nil
}

// Checksum mixes every payload byte into a 32-bit sum. It is a cheap
// integrity tag, not a cryptographic hash: its job is to catch reads that
// raced a crashed producer mid-write, on top of the seqlock protocol.
func Checksum(payload []byte) uint32 {
	var sum uint32
	for i, b := range payload {
		sum += uint32(b) * uint32(i%251+1)
	}
	return sum
}

func putInt32(b []byte, v int32) {
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func getInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}

// putString copies s into a fixed NUL-terminated field, truncating to
// len(b)-1 bytes so the terminator always survives.
func putString(b []byte, s string) {
	n := len(s)
	if n > len(b)-1 {
		n = len(b) - 1
	}
	copy(b, s[:n])
}

func getString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
