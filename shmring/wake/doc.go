// Package wake lets consumers block until a publish instead of busy-polling
// the ring. Three interchangeable backends cover the latency/portability
// trade-off space: a futex word in the segment header, an eventfd passed to
// consumers over a unix socket, and a counting semaphore in shared memory.
// The creating producer picks one; the choice is recorded in the segment
// header so every attaching process agrees.
//
// All backends share one contract: Signal never blocks and never fails
// fatally (the data is already in the ring and pollable), and Wait blocks
// only the calling thread, returning Woken, TimedOut, or Disconnected once
// the producer heartbeat goes stale.
package wake
