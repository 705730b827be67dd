package shmring

import (
	"fmt"
	"sync"
	"time"

	"github.com/barkit/barlink/segment"
	"github.com/barkit/barlink/shmring/wake"
	"github.com/barkit/barlink/snapshot"
)

// heartbeatInterval is how often an idle producer refreshes its liveness
// timestamp. Must stay well under segment.DefaultStaleAfter.
const heartbeatInterval = time.Second

// Producer is the window manager's write-only handle on a status channel.
// It owns the segment: a clean Close unlinks the name. Publish never blocks
// and never fails on consumer state.
//
// The publish side (Publish, PublishRaw) is single-threaded; that invariant
// is what makes the ring lock-free. ReceiveCommand and WaitCommand touch
// only the command ring and may run on their own goroutine, but not
// concurrently with each other.
type Producer struct {
	seg      *segment.Segment
	strategy wake.Strategy
	buf      []byte

	stopBeat chan struct{}
	beatDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewProducer creates the named channel and returns its producer handle. A
// name held by a live producer fails with segment.ErrAlreadyExists; a stale
// orphan is reclaimed.
func NewProducer(name string, cfg Config) (*Producer, error) {
	cfg = cfg.withDefaults()

	seg, err := segment.Create(name, cfg.SlotSize, cfg.SlotCount, uint32(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	strategy, err := wake.New(cfg.Strategy, seg, true, cfg.wakeOptions())
	if err != nil {
		seg.Close()
		return nil, fmt.Errorf("shmring: wake init: %w", err)
	}

	p := &Producer{
		seg:      seg,
		strategy: strategy,
		buf:      make([]byte, cfg.SlotSize),
		stopBeat: make(chan struct{}),
		beatDone: make(chan struct{}),
	}
	go p.heartbeat()
	return p, nil
}

// heartbeat keeps the liveness timestamp fresh between publishes so
// consumers of an idle-but-alive producer never see Disconnected.
func (p *Producer) heartbeat() {
	defer close(p.beatDone)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.seg.Beat()
		case <-p.stopBeat:
			return
		}
	}
}

// Publish encodes the snapshot into the next slot, advances the write
// index and signals waiters. The only possible failure is an encoding that
// exceeds the slot capacity, which is a configuration bug, not a condition
// to retry.
func (p *Producer) Publish(s *snapshot.Snapshot) error {
	n, err := snapshot.Encode(s, p.buf)
	if err != nil {
		return err
	}
	return p.PublishRaw(p.buf[:n])
}

// PublishRaw publishes an already-encoded payload. Exposed for callers
// carrying their own encoding; Publish is the normal path.
func (p *Producer) PublishRaw(payload []byte) error {
	if uint32(len(payload)) > p.seg.SlotSize() {
		return snapshot.ErrPayloadTooLarge
	}

	w := p.seg.WriteIndex()
	writeSlot(p.seg.SlotBytes(w), payload)
	p.seg.StoreWriteIndex(w + 1)
	p.seg.Beat()

	p.strategy.Signal(wake.SnapshotChannel)
	return nil
}

// Published returns how many snapshots this channel has carried.
func (p *Producer) Published() uint64 {
	return p.seg.WriteIndex()
}

// ReceiveCommand pops the oldest pending bar command, if any.
func (p *Producer) ReceiveCommand() (snapshot.Command, bool) {
	w := p.seg.CommandWriteIndex()
	r := p.seg.CommandReadIndex()
	if r == w {
		return snapshot.Command{}, false
	}
	cmd := decodeCommand(p.seg.CommandBytes(r))
	p.seg.StoreCommandReadIndex(r + 1)
	return cmd, true
}

// WaitCommand blocks until a bar command arrives or the timeout elapses.
// A negative timeout waits without deadline.
func (p *Producer) WaitCommand(timeout time.Duration) (snapshot.Command, error) {
	for {
		if cmd, ok := p.ReceiveCommand(); ok {
			return cmd, nil
		}
		res := p.strategy.Wait(wake.CommandChannel, func() bool {
			return commandCount(p.seg) > 0
		}, timeout)
		switch res {
		case wake.Woken:
			// Loop: a coalesced wake may race another receive path.
		case wake.TimedOut, wake.Disconnected:
			// Disconnected cannot fire against our own fresh heartbeat;
			// treat both as an empty wait.
			if cmd, ok := p.ReceiveCommand(); ok {
				return cmd, nil
			}
			return snapshot.Command{}, ErrTimeout
		}
	}
}

// Segment exposes the underlying segment for diagnostics.
func (p *Producer) Segment() *segment.Segment { return p.seg }

// Close marks the channel destroyed, wakes all consumers, and unlinks the
// segment name. Consumers keep their mappings and may still read the last
// published data. Safe to call more than once; later calls return the first
// call's error.
func (p *Producer) Close() error {
	p.closeOnce.Do(func() {
		close(p.stopBeat)
		<-p.beatDone

		p.seg.MarkDestroyed()
		err := p.strategy.Close()
		if cerr := p.seg.Close(); err == nil {
			err = cerr
		}
		p.closeErr = err
	})
	return p.closeErr
}
