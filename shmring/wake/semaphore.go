package wake

import (
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/barkit/barlink/segment"
)

// Semaphore backend area layout: one counting word per channel. Posts
// accumulate; waiters consume one count each. Implemented directly over the
// futex syscall, the same construction glibc uses for process-shared
// semaphores, which keeps the backend cgo-free.
const (
	semSnapCount = 0
	semCmdCount  = 4
)

type semaphoreStrategy struct {
	seg  *segment.Segment
	opts Options
}

func newSemaphoreStrategy(seg *segment.Segment, creator bool, opts Options) *semaphoreStrategy {
	s := &semaphoreStrategy{seg: seg, opts: opts}
	if creator {
		base := seg.BackendBytes()
		atomic.StoreUint32((*uint32)(unsafe.Pointer(&base[semSnapCount])), 0)
		atomic.StoreUint32((*uint32)(unsafe.Pointer(&base[semCmdCount])), 0)
	}
	return s
}

func (s *semaphoreStrategy) Kind() Kind { return Semaphore }

func (s *semaphoreStrategy) count(ch Channel) *uint32 {
	base := s.seg.BackendBytes()
	if ch == CommandChannel {
		return (*uint32)(unsafe.Pointer(&base[semCmdCount]))
	}
	return (*uint32)(unsafe.Pointer(&base[semSnapCount]))
}

func (s *semaphoreStrategy) Signal(ch Channel) {
	cnt := s.count(ch)
	atomic.AddUint32(cnt, 1)
	futexWake(cnt, math.MaxInt32)
}

func (s *semaphoreStrategy) Wait(ch Channel, ready func() bool, timeout time.Duration) Result {
	if spinReady(ready, s.opts.PollSpins) {
		return Woken
	}

	cnt := s.count(ch)
	deadline := deadlineFor(timeout)

	for {
		if ready() {
			return Woken
		}
		// Consume one post if any is pending. Rapid publishes coalesce:
		// one count may cover many updates, which is fine because callers
		// re-check the ring for the latest state after every wake.
		if c := atomic.LoadUint32(cnt); c > 0 {
			if atomic.CompareAndSwapUint32(cnt, c, c-1) {
				return Woken
			}
			continue
		}
		if s.seg.HeartbeatAge() > s.opts.StaleAfter {
			return Disconnected
		}
		chunk, ok := chunkFor(deadline)
		if !ok {
			return TimedOut
		}
		_ = futexWait(cnt, 0, chunk)
	}
}

func (s *semaphoreStrategy) Close() error {
	for _, ch := range []Channel{SnapshotChannel, CommandChannel} {
		cnt := s.count(ch)
		atomic.AddUint32(cnt, 1)
		futexWake(cnt, math.MaxInt32)
	}
	return nil
}
