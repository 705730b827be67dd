package segment

import (
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"
)

// Region layout: [header 128B][wake backend 128B][slots][command slots].
// Every offset used atomically is 8-byte aligned; mmap guarantees a
// page-aligned base.
const (
	headerSize  = 128
	backendSize = 128

	// SlotHeaderSize precedes each slot payload: seq u64, length u32,
	// checksum u32.
	SlotHeaderSize = 16

	// CommandSlots is the fixed capacity of the command ring.
	CommandSlots = 16

	// CommandSlotSize holds kind u32, arg u32, monitor i32, pad u32,
	// timestamp u64.
	CommandSlotSize = 24
)

const (
	magicValue    = 0x4241524C494E4B53 // "BARLINKS"
	formatVersion = 1
)

// Header field offsets.
const (
	offMagic       = 0
	offVersion     = 8
	offSlotSize    = 16
	offSlotCount   = 20
	offStrategy    = 24
	offWriteIdx    = 32
	offGeneration  = 40
	offHeartbeat   = 48
	offCmdWriteIdx = 56
	offCmdReadIdx  = 60
	offDestroyed   = 64
)

func regionSize(slotSize, slotCount uint32) int {
	return headerSize + backendSize +
		int(slotCount)*slotStride(slotSize) +
		CommandSlots*CommandSlotSize
}

func slotStride(slotSize uint32) int {
	return SlotHeaderSize + int(slotSize)
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

func (s *Segment) u32(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&s.mem[off]))
}

func (s *Segment) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&s.mem[off]))
}

// initHeader zeroes the bookkeeping fields and publishes the magic last so
// a concurrent attacher never validates a half-built header.
func (s *Segment) initHeader(slotSize, slotCount, strategy uint32) {
	atomic.StoreUint32(s.u32(offSlotSize), slotSize)
	atomic.StoreUint32(s.u32(offSlotCount), slotCount)
	atomic.StoreUint32(s.u32(offStrategy), strategy)
	atomic.StoreUint64(s.u64(offWriteIdx), 0)
	atomic.StoreUint64(s.u64(offGeneration), 1)
	atomic.StoreUint64(s.u64(offHeartbeat), nowMillis())
	atomic.StoreUint32(s.u32(offCmdWriteIdx), 0)
	atomic.StoreUint32(s.u32(offCmdReadIdx), 0)
	atomic.StoreUint32(s.u32(offDestroyed), 0)
	atomic.StoreUint64(s.u64(offVersion), formatVersion)
	atomic.StoreUint64(s.u64(offMagic), magicValue)
}

func (s *Segment) validate(fileSize int) error {
	if atomic.LoadUint64(s.u64(offMagic)) != magicValue {
		return fmt.Errorf("%w: bad magic in %s", ErrVersionMismatch, s.name)
	}
	if v := atomic.LoadUint64(s.u64(offVersion)); v != formatVersion {
		return fmt.Errorf("%w: %s has format v%d, want v%d", ErrVersionMismatch, s.name, v, formatVersion)
	}
	slotSize := s.SlotSize()
	slotCount := s.SlotCount()
	if slotCount == 0 || slotCount&(slotCount-1) != 0 || slotSize == 0 || slotSize%8 != 0 {
		return fmt.Errorf("%w: %s geometry %dx%d", ErrCorrupt, s.name, slotCount, slotSize)
	}
	if want := regionSize(slotSize, slotCount); fileSize < want {
		return fmt.Errorf("%w: %s is %d bytes, geometry needs %d", ErrCorrupt, s.name, fileSize, want)
	}
	return nil
}

// SlotSize returns the payload capacity of each snapshot slot.
func (s *Segment) SlotSize() uint32 {
	return atomic.LoadUint32(s.u32(offSlotSize))
}

// SlotCount returns the number of snapshot slots.
func (s *Segment) SlotCount() uint32 {
	return atomic.LoadUint32(s.u32(offSlotCount))
}

// Strategy returns the wake strategy id recorded at creation, so every
// attaching process uses the mechanism the creator chose.
func (s *Segment) Strategy() uint32 {
	return atomic.LoadUint32(s.u32(offStrategy))
}

// WriteIndex returns the monotonic publish counter.
func (s *Segment) WriteIndex() uint64 {
	return atomic.LoadUint64(s.u64(offWriteIdx))
}

// StoreWriteIndex publishes a new write index. Single-writer: only the
// producer process calls this.
func (s *Segment) StoreWriteIndex(v uint64) {
	atomic.StoreUint64(s.u64(offWriteIdx), v)
}

// Generation returns the producer generation counter, bumped each time a
// producer (re)initializes the channel.
func (s *Segment) Generation() uint64 {
	return atomic.LoadUint64(s.u64(offGeneration))
}

// BumpGeneration increments the generation counter and returns the new
// value.
func (s *Segment) BumpGeneration() uint64 {
	return atomic.AddUint64(s.u64(offGeneration), 1)
}

// Heartbeat returns the producer liveness timestamp in unix milliseconds.
func (s *Segment) Heartbeat() uint64 {
	return atomic.LoadUint64(s.u64(offHeartbeat))
}

// Beat refreshes the liveness timestamp to now.
func (s *Segment) Beat() {
	atomic.StoreUint64(s.u64(offHeartbeat), nowMillis())
}

// HeartbeatAge returns how long ago the producer last beat.
func (s *Segment) HeartbeatAge() time.Duration {
	hb := s.Heartbeat()
	now := nowMillis()
	if now <= hb {
		return 0
	}
	return time.Duration(now-hb) * time.Millisecond
}

// Destroyed reports whether the producer marked the channel torn down.
func (s *Segment) Destroyed() bool {
	return atomic.LoadUint32(s.u32(offDestroyed)) != 0
}

// MarkDestroyed flags the channel as torn down for all attached processes.
func (s *Segment) MarkDestroyed() {
	atomic.StoreUint32(s.u32(offDestroyed), 1)
}

// CommandWriteIndex returns the command ring's monotonic write counter.
func (s *Segment) CommandWriteIndex() uint32 {
	return atomic.LoadUint32(s.u32(offCmdWriteIdx))
}

// StoreCommandWriteIndex publishes a new command write counter.
func (s *Segment) StoreCommandWriteIndex(v uint32) {
	atomic.StoreUint32(s.u32(offCmdWriteIdx), v)
}

// CommandReadIndex returns the command ring's read counter.
func (s *Segment) CommandReadIndex() uint32 {
	return atomic.LoadUint32(s.u32(offCmdReadIdx))
}

// StoreCommandReadIndex publishes a new command read counter.
func (s *Segment) StoreCommandReadIndex(v uint32) {
	atomic.StoreUint32(s.u32(offCmdReadIdx), v)
}

// BackendBytes returns the wake backend's scratch area.
func (s *Segment) BackendBytes() []byte {
	return s.mem[headerSize : headerSize+backendSize]
}

// SlotBytes returns slot i's full region: 16-byte slot header followed by
// the payload. i is taken modulo the slot count.
func (s *Segment) SlotBytes(i uint64) []byte {
	count := uint64(s.SlotCount())
	stride := slotStride(s.SlotSize())
	off := headerSize + backendSize + int(i&(count-1))*stride
	return s.mem[off : off+stride]
}

// CommandBytes returns command slot i's region, i taken modulo
// CommandSlots.
func (s *Segment) CommandBytes(i uint32) []byte {
	slotsEnd := headerSize + backendSize + int(s.SlotCount())*slotStride(s.SlotSize())
	off := slotsEnd + int(i&(CommandSlots-1))*CommandSlotSize
	return s.mem[off : off+CommandSlotSize]
}
