package wake

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/barkit/barlink/segment"
)

// EventFD backend area layout: a ready flag set by the creator once the
// rendezvous socket path below it is valid. Event descriptors are per
// process, so the creator passes its two eventfds to each attacher over a
// unix stream socket with SCM_RIGHTS.
const (
	efdReadyFlag  = 0
	efdPathOffset = 8
	efdPathMax    = 108 // sockaddr_un limit
)

// attachTimeout bounds how long an attacher waits for the creator to
// publish the rendezvous socket.
const attachTimeout = 2 * time.Second

type eventFDStrategy struct {
	seg     *segment.Segment
	opts    Options
	creator bool

	snapFD int
	cmdFD  int

	// Creator only.
	listenFD int
	sockPath string
	stopped  uint32
}

func newEventFDStrategy(seg *segment.Segment, creator bool, opts Options) (*eventFDStrategy, error) {
	e := &eventFDStrategy{seg: seg, opts: opts, creator: creator, snapFD: -1, cmdFD: -1, listenFD: -1}
	var err error
	if creator {
		err = e.initCreator()
	} else {
		err = e.initAttacher()
	}
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *eventFDStrategy) Kind() Kind { return EventFD }

func (e *eventFDStrategy) initCreator() error {
	var err error
	if e.snapFD, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		return fmt.Errorf("wake: eventfd: %w", err)
	}
	if e.cmdFD, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC); err != nil {
		return fmt.Errorf("wake: eventfd: %w", err)
	}

	e.sockPath = fmt.Sprintf("%s/barlink-%s-%d.sock", os.TempDir(), e.seg.Name(), os.Getpid())
	if len(e.sockPath) >= efdPathMax {
		return fmt.Errorf("wake: rendezvous path too long: %s", e.sockPath)
	}
	_ = os.Remove(e.sockPath)

	e.listenFD, err = unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("wake: socket: %w", err)
	}
	if err := unix.Bind(e.listenFD, &unix.SockaddrUnix{Name: e.sockPath}); err != nil {
		return fmt.Errorf("wake: bind %s: %w", e.sockPath, err)
	}
	if err := unix.Listen(e.listenFD, 8); err != nil {
		return fmt.Errorf("wake: listen %s: %w", e.sockPath, err)
	}

	// Publish the path, ready flag last.
	base := e.seg.BackendBytes()
	copy(base[efdPathOffset:efdPathOffset+efdPathMax], e.sockPath)
	base[efdPathOffset+len(e.sockPath)] = 0
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&base[efdReadyFlag])), 1)

	go e.serveAttachers()
	return nil
}

// serveAttachers hands the two eventfds to every consumer that connects.
// Exits when Close shuts the listening socket.
func (e *eventFDStrategy) serveAttachers() {
	rights := unix.UnixRights(e.snapFD, e.cmdFD)
	for atomic.LoadUint32(&e.stopped) == 0 {
		conn, _, err := unix.Accept(e.listenFD)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		_ = unix.Sendmsg(conn, []byte{0xE5}, rights, nil, 0)
		unix.Close(conn)
	}
}

func (e *eventFDStrategy) initAttacher() error {
	base := e.seg.BackendBytes()
	readyPtr := (*uint32)(unsafe.Pointer(&base[efdReadyFlag]))
	waitUntil := time.Now().Add(attachTimeout)
	for atomic.LoadUint32(readyPtr) == 0 {
		if time.Now().After(waitUntil) {
			return fmt.Errorf("wake: eventfd rendezvous not published")
		}
		time.Sleep(time.Millisecond)
	}

	path := base[efdPathOffset : efdPathOffset+efdPathMax]
	n := 0
	for n < len(path) && path[n] != 0 {
		n++
	}
	sockPath := string(path[:n])

	conn, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("wake: socket: %w", err)
	}
	defer unix.Close(conn)
	if err := unix.Connect(conn, &unix.SockaddrUnix{Name: sockPath}); err != nil {
		return fmt.Errorf("wake: connect %s: %w", sockPath, err)
	}

	buf := make([]byte, 1)
	oob := make([]byte, unix.CmsgSpace(2*4))
	_, oobn, _, _, err := unix.Recvmsg(conn, buf, oob, 0)
	if err != nil {
		return fmt.Errorf("wake: recvmsg: %w", err)
	}
	msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil || len(msgs) == 0 {
		return fmt.Errorf("wake: no control message from producer")
	}
	fds, err := unix.ParseUnixRights(&msgs[0])
	if err != nil || len(fds) != 2 {
		return fmt.Errorf("wake: expected 2 descriptors, got %d", len(fds))
	}
	e.snapFD, e.cmdFD = fds[0], fds[1]
	_ = unix.SetNonblock(e.snapFD, true)
	_ = unix.SetNonblock(e.cmdFD, true)
	return nil
}

func (e *eventFDStrategy) fd(ch Channel) int {
	if ch == CommandChannel {
		return e.cmdFD
	}
	return e.snapFD
}

func (e *eventFDStrategy) Signal(ch Channel) {
	fd := e.fd(ch)
	if fd < 0 {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	// EAGAIN means the counter is saturated, which already guarantees a
	// pending wake.
	_, _ = unix.Write(fd, buf[:])
}

func (e *eventFDStrategy) Wait(ch Channel, ready func() bool, timeout time.Duration) Result {
	if spinReady(ready, e.opts.PollSpins) {
		return Woken
	}

	fd := e.fd(ch)
	if fd < 0 {
		return TimedOut
	}
	deadline := deadlineFor(timeout)

	for {
		if ready() {
			return Woken
		}
		if e.seg.HeartbeatAge() > e.opts.StaleAfter {
			return Disconnected
		}
		chunk, ok := chunkFor(deadline)
		if !ok {
			return TimedOut
		}

		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, int(chunk.Milliseconds())+1)
		if err != nil && err != unix.EINTR {
			// Fall back to polling the ring on the next loop; the wake
			// primitive failing is not data loss.
			continue
		}
		if n > 0 {
			e.drain(fd)
			if ready() {
				return Woken
			}
			// Coalesced or already-consumed wake; keep waiting.
		}
	}
}

// drain resets the eventfd counter so the next publish is a fresh edge.
func (e *eventFDStrategy) drain(fd int) {
	var buf [8]byte
	_, _ = unix.Read(fd, buf[:])
}

func (e *eventFDStrategy) Close() error {
	if e.creator {
		atomic.StoreUint32(&e.stopped, 1)
		if e.listenFD >= 0 {
			unix.Close(e.listenFD)
			e.listenFD = -1
		}
		if e.sockPath != "" {
			_ = os.Remove(e.sockPath)
		}
		// Final writes wake any consumer still polling the descriptors.
		e.Signal(SnapshotChannel)
		e.Signal(CommandChannel)
	}
	if e.snapFD >= 0 {
		unix.Close(e.snapFD)
		e.snapFD = -1
	}
	if e.cmdFD >= 0 {
		unix.Close(e.cmdFD)
		e.cmdFD = -1
	}
	return nil
}
