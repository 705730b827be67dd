package wake

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutexWaitTimesOut(t *testing.T) {
	var word uint32

	start := time.Now()
	require.NoError(t, futexWait(&word, 0, 50*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFutexWaitValueMismatch(t *testing.T) {
	var word uint32
	atomic.StoreUint32(&word, 1)

	// EAGAIN path: the word already differs from the expectation, so the
	// kernel returns without parking.
	start := time.Now()
	require.NoError(t, futexWait(&word, 0, 5*time.Second))
	assert.Less(t, time.Since(start), time.Second)
}

func TestFutexWakeUnparksWaiter(t *testing.T) {
	var word uint32

	done := make(chan struct{})
	go func() {
		defer close(done)
		for atomic.LoadUint32(&word) == 0 {
			_ = futexWait(&word, 0, 5*time.Second)
		}
	}()

	time.Sleep(50 * time.Millisecond)
	atomic.StoreUint32(&word, 1)
	futexWake(&word, 1)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("waiter was never woken")
	}
}
