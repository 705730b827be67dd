package wake

import (
	"fmt"
	"time"

	"github.com/barkit/barlink/segment"
)

// Kind identifies a wake backend. The numeric values are stored in segment
// headers and must never be reused.
type Kind uint32

const (
	// Futex blocks on a shared atomic word with FUTEX_WAIT. Lowest wake
	// latency, no file descriptors.
	Futex Kind = 1

	// EventFD hands each consumer an eventfd over a unix socket, so UIs can
	// multiplex readiness into an existing poll loop.
	EventFD Kind = 2

	// Semaphore is a counting semaphore in shared memory. Posts during
	// bursts coalesce into a single wake; consumers always re-check the
	// ring for the latest state.
	Semaphore Kind = 3
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case Futex:
		return "futex"
	case EventFD:
		return "eventfd"
	case Semaphore:
		return "semaphore"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "futex", "":
		return Futex, nil
	case "eventfd":
		return EventFD, nil
	case "semaphore":
		return Semaphore, nil
	default:
		return 0, fmt.Errorf("wake: unknown strategy %q", s)
	}
}

// Result is the outcome of a Wait.
type Result int

const (
	// Woken means the readiness check passed, either before or after
	// blocking.
	Woken Result = iota

	// TimedOut means the timeout elapsed with no data.
	TimedOut

	// Disconnected means the producer heartbeat is older than the
	// staleness threshold. The ring itself stays readable.
	Disconnected
)

// String returns the result name for logs.
func (r Result) String() string {
	switch r {
	case Woken:
		return "woken"
	case TimedOut:
		return "timed-out"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Channel selects which of the two directions a signal or wait refers to:
// snapshots flow producer to consumers, commands flow back.
type Channel int

const (
	SnapshotChannel Channel = iota
	CommandChannel
)

// Options tune blocking behavior. The zero value is usable.
type Options struct {
	// PollSpins is how many times Wait re-checks readiness before falling
	// to the OS primitive. Defaults to DefaultPollSpins.
	PollSpins int

	// StaleAfter is the heartbeat age at which Wait reports Disconnected.
	// Defaults to segment.DefaultStaleAfter.
	StaleAfter time.Duration
}

// DefaultPollSpins matches the adaptive poll budget the channel was tuned
// with: enough to catch back-to-back publishes without burning a core.
const DefaultPollSpins = 400

// checkInterval bounds how long a single kernel wait can last, so
// disconnect detection works even while a consumer is parked.
const checkInterval = 250 * time.Millisecond

func (o Options) withDefaults() Options {
	if o.PollSpins <= 0 {
		o.PollSpins = DefaultPollSpins
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = segment.DefaultStaleAfter
	}
	return o
}

// Strategy is the wake capability shared by all backends.
type Strategy interface {
	// Kind reports which backend this is.
	Kind() Kind

	// Signal wakes waiters on the channel. It never blocks; a failed wake
	// is not data loss because the ring remains pollable.
	Signal(ch Channel)

	// Wait blocks until ready() reports true, the timeout elapses, or the
	// producer is detected dead. A negative timeout waits without
	// deadline. ready must be cheap; it is called repeatedly.
	Wait(ch Channel, ready func() bool, timeout time.Duration) Result

	// Close releases backend resources. The creator tears down anything it
	// published for attachers (sockets, descriptors) and wakes all
	// waiters first.
	Close() error
}

// New builds the strategy of the given kind over the segment's backend
// area. creator must be true exactly once per segment lifetime: the
// creating producer initializes the shared backend state, attachers adopt
// it.
func New(kind Kind, seg *segment.Segment, creator bool, opts Options) (Strategy, error) {
	opts = opts.withDefaults()
	switch kind {
	case Futex:
		return newFutexStrategy(seg, creator, opts), nil
	case EventFD:
		return newEventFDStrategy(seg, creator, opts)
	case Semaphore:
		return newSemaphoreStrategy(seg, creator, opts), nil
	default:
		return nil, fmt.Errorf("wake: unknown strategy id %d", kind)
	}
}

// deadlineFor converts a timeout into an absolute deadline; the zero time
// means no deadline.
func deadlineFor(timeout time.Duration) time.Time {
	if timeout < 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// chunkFor bounds one kernel wait: never longer than the disconnect check
// interval, never past the deadline.
func chunkFor(deadline time.Time) (time.Duration, bool) {
	chunk := checkInterval
	if deadline.IsZero() {
		return chunk, true
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, false
	}
	if remaining < chunk {
		chunk = remaining
	}
	return chunk, true
}
