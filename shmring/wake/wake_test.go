package wake

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkit/barlink/segment"
)

var kinds = []Kind{Futex, EventFD, Semaphore}

func testSegment(t *testing.T, kind Kind) *segment.Segment {
	t.Helper()
	name := fmt.Sprintf("barlink-test-%s-%d",
		strings.ReplaceAll(t.Name(), "/", "-"), os.Getpid())
	seg, err := segment.Create(name, 512, 16, uint32(kind))
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })
	return seg
}

// testPair builds a creator and an attacher strategy over one segment.
func testPair(t *testing.T, kind Kind, opts Options) (Strategy, Strategy) {
	t.Helper()
	seg := testSegment(t, kind)

	producer, err := New(kind, seg, true, opts)
	require.NoError(t, err)
	t.Cleanup(func() { producer.Close() })

	consumer, err := New(kind, seg, false, opts)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })
	return producer, consumer
}

func never() bool { return false }

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "futex", Futex.String())
	assert.Equal(t, "eventfd", EventFD.String())
	assert.Equal(t, "semaphore", Semaphore.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"futex", Futex, false},
		{"", Futex, false},
		{"eventfd", EventFD, false},
		{"semaphore", Semaphore, false},
		{"spinlock", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	seg := testSegment(t, Futex)
	_, err := New(Kind(42), seg, true, Options{})
	assert.Error(t, err)
}

func TestStrategyKind(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			producer, consumer := testPair(t, kind, Options{})
			assert.Equal(t, kind, producer.Kind())
			assert.Equal(t, kind, consumer.Kind())
		})
	}
}

func TestWaitReturnsImmediatelyWhenReady(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			_, consumer := testPair(t, kind, Options{})

			start := time.Now()
			res := consumer.Wait(SnapshotChannel, func() bool { return true }, time.Second)
			assert.Equal(t, Woken, res)
			assert.Less(t, time.Since(start), 500*time.Millisecond)
		})
	}
}

func TestWaitTimesOut(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			_, consumer := testPair(t, kind, Options{})

			start := time.Now()
			res := consumer.Wait(SnapshotChannel, never, 150*time.Millisecond)
			elapsed := time.Since(start)

			assert.Equal(t, TimedOut, res)
			assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
			assert.Less(t, elapsed, 2*time.Second)
		})
	}
}

func TestSignalWakesWaiter(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			producer, consumer := testPair(t, kind, Options{})

			var ready atomic.Bool
			resCh := make(chan Result, 1)
			go func() {
				resCh <- consumer.Wait(SnapshotChannel, ready.Load, 5*time.Second)
			}()

			time.Sleep(50 * time.Millisecond)
			ready.Store(true)
			producer.Signal(SnapshotChannel)

			select {
			case res := <-resCh:
				assert.Equal(t, Woken, res)
			case <-time.After(3 * time.Second):
				t.Fatal("waiter never woke")
			}
		})
	}
}

func TestSignalsCoalesce(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			producer, consumer := testPair(t, kind, Options{})

			// A burst of signals with no waiter parked must not corrupt
			// backend state: the next wait still sees readiness exactly once.
			for i := 0; i < 10; i++ {
				producer.Signal(SnapshotChannel)
			}

			res := consumer.Wait(SnapshotChannel, func() bool { return true }, time.Second)
			assert.Equal(t, Woken, res)

			if kind == Semaphore {
				// Posts are counted: each never-ready wait consumes one,
				// and the supply is exactly the burst size.
				for i := 0; i < 10; i++ {
					res = consumer.Wait(SnapshotChannel, never, 150*time.Millisecond)
					assert.Equal(t, Woken, res)
				}
			}
			res = consumer.Wait(SnapshotChannel, never, 150*time.Millisecond)
			assert.Equal(t, TimedOut, res, "stale signals must not produce spurious data")
		})
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			producer, consumer := testPair(t, kind, Options{})

			// A command-side signal must not satisfy a snapshot-side wait.
			producer.Signal(CommandChannel)
			res := consumer.Wait(SnapshotChannel, never, 150*time.Millisecond)
			assert.Equal(t, TimedOut, res)
		})
	}
}

func TestWaitDetectsStaleHeartbeat(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			_, consumer := testPair(t, kind, Options{StaleAfter: 200 * time.Millisecond})

			// No one beats the heartbeat, so it goes stale mid-wait.
			start := time.Now()
			res := consumer.Wait(SnapshotChannel, never, 10*time.Second)
			elapsed := time.Since(start)

			assert.Equal(t, Disconnected, res)
			assert.Less(t, elapsed, 5*time.Second, "stale producer must be detected well before the timeout")
		})
	}
}

func TestCreatorCloseWakesWaiters(t *testing.T) {
	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			seg := testSegment(t, kind)

			producer, err := New(kind, seg, true, Options{})
			require.NoError(t, err)

			consumer, err := New(kind, seg, false, Options{})
			require.NoError(t, err)
			defer consumer.Close()

			// Model the ring-side teardown check: the destroyed flag becomes
			// the readiness the close-side wake lets the waiter observe.
			resCh := make(chan Result, 1)
			go func() {
				resCh <- consumer.Wait(SnapshotChannel, seg.Destroyed, 10*time.Second)
			}()

			time.Sleep(50 * time.Millisecond)
			seg.MarkDestroyed()
			require.NoError(t, producer.Close())

			select {
			case res := <-resCh:
				assert.Equal(t, Woken, res)
			case <-time.After(3 * time.Second):
				t.Fatal("waiter still parked after creator close")
			}
		})
	}
}

func TestEventFDMultipleAttachers(t *testing.T) {
	seg := testSegment(t, EventFD)

	producer, err := New(EventFD, seg, true, Options{})
	require.NoError(t, err)
	defer producer.Close()

	a, err := New(EventFD, seg, false, Options{})
	require.NoError(t, err)
	defer a.Close()

	b, err := New(EventFD, seg, false, Options{})
	require.NoError(t, err)
	defer b.Close()

	var ready atomic.Bool
	results := make(chan Result, 2)
	for _, c := range []Strategy{a, b} {
		c := c
		go func() {
			results <- c.Wait(SnapshotChannel, ready.Load, 5*time.Second)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	ready.Store(true)
	producer.Signal(SnapshotChannel)

	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			assert.Equal(t, Woken, res)
		case <-time.After(3 * time.Second):
			t.Fatal("an attacher never woke")
		}
	}
}
