package shmring

import (
	"errors"
	"time"

	"github.com/barkit/barlink/shmring/wake"
)

var (
	// ErrTimeout reports a BlockRead or WaitCommand that saw no data
	// within its budget.
	ErrTimeout = errors.New("shmring: wait timed out")

	// ErrDisconnected reports a producer whose heartbeat went stale or
	// that marked the channel destroyed. The last published data stays
	// readable; the caller decides whether to keep it or exit.
	ErrDisconnected = errors.New("shmring: producer disconnected")

	// ErrCommandRingFull reports a command the window manager has not
	// drained in time.
	ErrCommandRingFull = errors.New("shmring: command ring full")
)

// Config sets channel geometry and blocking behavior. Zero fields take
// defaults.
type Config struct {
	// SlotSize is each slot's payload capacity in bytes; must be a
	// multiple of 8. Default 512, comfortably above the snapshot
	// encoding.
	SlotSize uint32

	// SlotCount is the ring capacity; must be a power of two. Default 16.
	// Only the latest state matters to a status bar, so a small ring
	// bounds memory while absorbing publish bursts.
	SlotCount uint32

	// Strategy picks the wake backend. Default futex.
	Strategy wake.Kind

	// PollSpins and StaleAfter tune waits; see package wake.
	PollSpins  int
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.SlotSize == 0 {
		c.SlotSize = 512
	}
	if c.SlotCount == 0 {
		c.SlotCount = 16
	}
	if c.Strategy == 0 {
		c.Strategy = wake.Futex
	}
	return c
}

func (c Config) wakeOptions() wake.Options {
	return wake.Options{PollSpins: c.PollSpins, StaleAfter: c.StaleAfter}
}

// tornRetries bounds how many times a reader retries a slot that is odd or
// changed under it before treating the attempt as a transient miss.
const tornRetries = 8
