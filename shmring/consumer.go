package shmring

import (
	"fmt"
	"time"

	"github.com/barkit/barlink/segment"
	"github.com/barkit/barlink/shmring/wake"
	"github.com/barkit/barlink/snapshot"
)

// Update is one successful read: the decoded snapshot, the publish counter
// value it carried, and how many intermediate publishes this consumer never
// saw because the producer overwrote them first.
type Update struct {
	Snapshot snapshot.Snapshot
	Seq      uint64
	Skipped  uint64
}

// Consumer is a bar process's read-only handle with its own cursor.
// Cursors are fully independent: two consumers of the same channel each see
// the same latest data and account for their own skips.
//
// The read side (TryRead, BlockRead, Wait) is single-threaded. SendCommand
// touches only the command ring and may run concurrently with reads, but
// not with other SendCommand calls.
type Consumer struct {
	seg      *segment.Segment
	strategy wake.Strategy
	buf      []byte

	// lastSeen is the write-index value of the most recent successful
	// read; zero means nothing read yet.
	lastSeen uint64
}

// AttachOptions tune a consumer's blocking behavior.
type AttachOptions struct {
	PollSpins  int
	StaleAfter time.Duration
}

// Attach opens the named channel read side. The wake strategy is whatever
// the creator recorded in the header; attach fails if that id is unknown to
// this build.
func Attach(name string, opts AttachOptions) (*Consumer, error) {
	seg, err := segment.Attach(name)
	if err != nil {
		return nil, err
	}
	strategy, err := wake.New(wake.Kind(seg.Strategy()), seg, false, wake.Options{
		PollSpins:  opts.PollSpins,
		StaleAfter: opts.StaleAfter,
	})
	if err != nil {
		seg.Close()
		return nil, fmt.Errorf("shmring: wake attach: %w", err)
	}
	return &Consumer{
		seg:      seg,
		strategy: strategy,
		buf:      make([]byte, seg.SlotSize()),
	}, nil
}

// hasNew reports whether a publish this consumer has not read exists.
func (c *Consumer) hasNew() bool {
	w := c.seg.WriteIndex()
	return w != 0 && w != c.lastSeen
}

// wakeReady is the wait condition: new data, or a teardown the waiter must
// observe instead of parking again. The producer's close-side wake exists
// precisely so this check runs.
func (c *Consumer) wakeReady() bool {
	return c.seg.Destroyed() || c.hasNew()
}

// TryRead returns the newest snapshot if it is newer than this consumer's
// cursor and currently stable. A torn or mid-write slot is retried a
// bounded number of times and then reported as no-data; the next publish
// or call will succeed.
func (c *Consumer) TryRead() (Update, bool) {
	for attempt := 0; attempt < tornRetries; attempt++ {
		w := c.seg.WriteIndex()
		if w == 0 || w == c.lastSeen {
			return Update{}, false
		}

		// Newest slot is the one the counter last moved past. The
		// producer may lap us mid-copy; readSlot detects that.
		n, ok := readSlot(c.seg.SlotBytes(w-1), c.seg.SlotSize(), c.buf)
		if !ok {
			continue
		}
		snap, err := snapshot.Decode(c.buf[:n])
		if err != nil {
			// Stable slot with an undecodable payload: a foreign or
			// corrupt writer. Skip past it rather than spin forever.
			c.lastSeen = w
			return Update{}, false
		}

		upd := Update{Snapshot: snap, Seq: w, Skipped: w - c.lastSeen - 1}
		c.lastSeen = w
		return upd, true
	}
	return Update{}, false
}

// BlockRead waits for a publish and returns it. It keeps absorbing
// coalesced wakes and transient torn reads until the timeout elapses
// (ErrTimeout) or the producer is detected dead (ErrDisconnected). A
// negative timeout waits without deadline.
func (c *Consumer) BlockRead(timeout time.Duration) (Update, error) {
	deadline := time.Time{}
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if upd, ok := c.TryRead(); ok {
			return upd, nil
		}
		if c.seg.Destroyed() {
			return Update{}, ErrDisconnected
		}

		remaining := time.Duration(-1)
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return Update{}, ErrTimeout
			}
		}

		switch c.strategy.Wait(wake.SnapshotChannel, c.wakeReady, remaining) {
		case wake.Woken:
			// Loop; TryRead may still miss once on a torn slot.
		case wake.TimedOut:
			if upd, ok := c.TryRead(); ok {
				return upd, nil
			}
			return Update{}, ErrTimeout
		case wake.Disconnected:
			// Data published before the producer died is still valid.
			if upd, ok := c.TryRead(); ok {
				return upd, nil
			}
			return Update{}, ErrDisconnected
		}
	}
}

// Wait exposes the bare wake primitive for consumers that poll the ring
// from their own event loop.
func (c *Consumer) Wait(timeout time.Duration) wake.Result {
	return c.strategy.Wait(wake.SnapshotChannel, c.wakeReady, timeout)
}

// SendCommand queues a command for the window manager and signals it.
// Fails with ErrCommandRingFull when the manager has not drained the ring.
func (c *Consumer) SendCommand(cmd snapshot.Command) error {
	w := c.seg.CommandWriteIndex()
	r := c.seg.CommandReadIndex()
	if w-r >= segment.CommandSlots {
		return ErrCommandRingFull
	}
	encodeCommand(c.seg.CommandBytes(w), cmd)
	c.seg.StoreCommandWriteIndex(w + 1)
	c.strategy.Signal(wake.CommandChannel)
	return nil
}

// LastSeen returns the cursor: the write-index value of the most recent
// successful read.
func (c *Consumer) LastSeen() uint64 { return c.lastSeen }

// ProducerAlive reports whether the producer heartbeat is fresh.
func (c *Consumer) ProducerAlive() bool {
	return !c.seg.Destroyed() && c.seg.HeartbeatAge() < segment.DefaultStaleAfter
}

// Segment exposes the underlying segment for diagnostics.
func (c *Consumer) Segment() *segment.Segment { return c.seg }

// Close detaches from the channel. The mapping and name are left for the
// producer and other consumers.
func (c *Consumer) Close() error {
	err := c.strategy.Close()
	if cerr := c.seg.Close(); err == nil {
		err = cerr
	}
	return err
}
