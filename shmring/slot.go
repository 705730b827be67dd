package shmring

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/barkit/barlink/segment"
	"github.com/barkit/barlink/snapshot"
)

// Slot header layout within segment.SlotHeaderSize bytes: seq u64, payload
// length u32, checksum u32. The sequence is odd while a write is in flight.
const (
	slotSeqOff      = 0
	slotLenOff      = 8
	slotChecksumOff = 12
)

func slotSeq(slot []byte) *uint64 {
	return (*uint64)(unsafe.Pointer(&slot[slotSeqOff]))
}

// writeSlot runs the publish half of the seqlock: mark unstable, copy the
// payload, mark stable. Callers guarantee the payload fits.
func writeSlot(slot []byte, payload []byte) {
	seq := slotSeq(slot)
	s := atomic.LoadUint64(seq)

	atomic.StoreUint64(seq, s+1) // odd: write in progress

	copy(slot[segment.SlotHeaderSize:], payload)
	binary.LittleEndian.PutUint32(slot[slotLenOff:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(slot[slotChecksumOff:], snapshot.Checksum(payload))

	atomic.StoreUint64(seq, s+2) // even: stable
}

// readSlot runs the read half: copy out under a sequence double-check.
// Returns false on a torn or mid-write observation; the caller retries.
func readSlot(slot []byte, maxPayload uint32, dst []byte) (int, bool) {
	seq := slotSeq(slot)

	s1 := atomic.LoadUint64(seq)
	if s1&1 != 0 {
		return 0, false
	}

	length := binary.LittleEndian.Uint32(slot[slotLenOff:])
	sum := binary.LittleEndian.Uint32(slot[slotChecksumOff:])
	if length > maxPayload || int(length) > len(dst) {
		// Garbage length can only come from a concurrent write.
		return 0, false
	}
	n := copy(dst[:length], slot[segment.SlotHeaderSize:segment.SlotHeaderSize+int(length)])

	if atomic.LoadUint64(seq) != s1 {
		return 0, false
	}
	if snapshot.Checksum(dst[:n]) != sum {
		return 0, false
	}
	return n, true
}
