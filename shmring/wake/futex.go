package wake

import (
	"math"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/barkit/barlink/segment"
)

// Futex backend area layout: one sequence word and one waiter count per
// channel. The sequence is incremented on every signal; waiters block on
// "word still equals what I last saw".
const (
	futexSnapSeq     = 0
	futexSnapWaiters = 4
	futexCmdSeq      = 8
	futexCmdWaiters  = 12
)

type futexStrategy struct {
	seg  *segment.Segment
	opts Options
}

func newFutexStrategy(seg *segment.Segment, creator bool, opts Options) *futexStrategy {
	f := &futexStrategy{seg: seg, opts: opts}
	if creator {
		base := seg.BackendBytes()
		for _, off := range []int{futexSnapSeq, futexSnapWaiters, futexCmdSeq, futexCmdWaiters} {
			atomic.StoreUint32((*uint32)(unsafe.Pointer(&base[off])), 0)
		}
	}
	return f
}

func (f *futexStrategy) Kind() Kind { return Futex }

func (f *futexStrategy) words(ch Channel) (seq, waiters *uint32) {
	base := f.seg.BackendBytes()
	if ch == CommandChannel {
		return (*uint32)(unsafe.Pointer(&base[futexCmdSeq])),
			(*uint32)(unsafe.Pointer(&base[futexCmdWaiters]))
	}
	return (*uint32)(unsafe.Pointer(&base[futexSnapSeq])),
		(*uint32)(unsafe.Pointer(&base[futexSnapWaiters]))
}

func (f *futexStrategy) Signal(ch Channel) {
	seq, waiters := f.words(ch)
	atomic.AddUint32(seq, 1)
	if atomic.LoadUint32(waiters) > 0 {
		// Broadcast: every attached consumer watches the same word.
		futexWake(seq, math.MaxInt32)
	}
}

func (f *futexStrategy) Wait(ch Channel, ready func() bool, timeout time.Duration) Result {
	if spinReady(ready, f.opts.PollSpins) {
		return Woken
	}

	seq, waiters := f.words(ch)
	deadline := deadlineFor(timeout)

	atomic.AddUint32(waiters, 1)
	defer atomic.AddUint32(waiters, ^uint32(0))

	for {
		if ready() {
			return Woken
		}
		if f.seg.HeartbeatAge() > f.opts.StaleAfter {
			return Disconnected
		}
		chunk, ok := chunkFor(deadline)
		if !ok {
			return TimedOut
		}
		snap := atomic.LoadUint32(seq)
		// The seq snapshot must be taken before the final readiness check,
		// otherwise a signal between check and wait is lost.
		if ready() {
			return Woken
		}
		_ = futexWait(seq, snap, chunk)
	}
}

func (f *futexStrategy) Close() error {
	// Wake everything so no consumer stays parked on a dying channel.
	for _, ch := range []Channel{SnapshotChannel, CommandChannel} {
		seq, _ := f.words(ch)
		atomic.AddUint32(seq, 1)
		futexWake(seq, math.MaxInt32)
	}
	return nil
}
