package wake

import (
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Futex op codes. x/sys/unix exports the syscall number but not the FUTEX_*
// operations. Plain ops, not the _PRIVATE variants: the words live in shared
// memory and waiters are in other processes.
const (
	futexOpWait = 0
	futexOpWake = 1
)

// futexWait parks the calling thread until the word at addr changes from
// expected or the timeout elapses. Spurious returns (EAGAIN, EINTR,
// ETIMEDOUT) are normal; callers re-check their condition in a loop.
func futexWait(addr *uint32, expected uint32, timeout time.Duration) error {
	var tsPtr unsafe.Pointer
	if timeout >= 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		tsPtr = unsafe.Pointer(&ts)
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexOpWait),
		uintptr(expected),
		uintptr(tsPtr),
		0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR, unix.ETIMEDOUT:
		return nil
	default:
		return errno
	}
}

// futexWake wakes up to n threads parked on addr and reports how many were
// woken.
func futexWake(addr *uint32, n int) int {
	woken, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexOpWake),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0
	}
	return int(woken)
}

// spinReady polls ready up to spins times before the caller falls back to
// a kernel wait, catching back-to-back publishes without a syscall.
func spinReady(ready func() bool, spins int) bool {
	for i := 0; i < spins; i++ {
		if ready() {
			return true
		}
		if i&63 == 63 {
			runtime.Gosched()
		}
	}
	return ready()
}
