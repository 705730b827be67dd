package segment

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrNotFound reports an attach to a name no producer has created.
	ErrNotFound = errors.New("segment: not found")

	// ErrAlreadyExists reports a create race lost to a live producer.
	ErrAlreadyExists = errors.New("segment: already exists")

	// ErrVersionMismatch reports a header whose magic or format version
	// disagrees with this build. The caller decides whether to unlink and
	// recreate.
	ErrVersionMismatch = errors.New("segment: magic/version mismatch")

	// ErrCorrupt reports a header that fails sanity checks (impossible
	// geometry, region size mismatch).
	ErrCorrupt = errors.New("segment: corrupt header")
)

// shmDir is where POSIX shared memory objects live on Linux.
const shmDir = "/dev/shm"

// DefaultStaleAfter is how long a silent heartbeat must be before a
// producer is considered dead. Creators reclaim segments whose heartbeat is
// older than this; consumers surface Disconnected from waits.
const DefaultStaleAfter = 5 * time.Second

// Name derives the shared-memory object name for a logical channel and
// monitor, so producer and consumers agree without configuration exchange.
func Name(channel string, monitor int) string {
	return fmt.Sprintf("barlink-%s-%d", channel, monitor)
}

// Path returns the filesystem path of the named segment.
func Path(name string) string {
	return shmDir + "/" + name
}

// Segment is a mapped shared-memory region. The zero value is not usable;
// obtain one from Create or Attach and release it with Close.
type Segment struct {
	name    string
	mem     []byte
	fd      int
	creator bool
}

// Create allocates and zero-initializes the named region sized for the
// given geometry, winning the creation race with O_EXCL. If the name is
// already held by a live producer it fails with ErrAlreadyExists; a
// leftover segment whose heartbeat is older than DefaultStaleAfter is
// unlinked and replaced.
func Create(name string, slotSize, slotCount, strategy uint32) (*Segment, error) {
	if slotCount == 0 || slotCount&(slotCount-1) != 0 {
		return nil, fmt.Errorf("segment: slot count must be a power of two, got %d", slotCount)
	}
	if slotSize == 0 || slotSize%8 != 0 {
		return nil, fmt.Errorf("segment: slot size must be a positive multiple of 8, got %d", slotSize)
	}

	for attempt := 0; attempt < 3; attempt++ {
		seg, err := tryCreate(name, slotSize, slotCount, strategy)
		if err == nil {
			// A racing reclaimer that judged the previous occupant stale may
			// have unlinked our fresh file between create and now. Publishing
			// into a mapping no attacher can reach is useless, so verify the
			// name still refers to our file and retry if not.
			if !sameFile(seg.fd, Path(name)) {
				_ = seg.Detach()
				continue
			}
			return seg, nil
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}

		// Someone holds the name. Attach to inspect the heartbeat: a live
		// producer means we lose the race, a stale one gets reclaimed.
		old, aerr := Attach(name)
		if aerr != nil {
			// Mid-unlink or corrupt leftovers: clear and retry once.
			_ = Unlink(name)
			continue
		}
		age := time.Duration(nowMillis()-old.Heartbeat()) * time.Millisecond
		if age < DefaultStaleAfter {
			old.Close()
			return nil, fmt.Errorf("%w: %s (heartbeat %s ago)", ErrAlreadyExists, name, age)
		}
		// Unlink only while the name still refers to the stale file we
		// inspected. If another creator got here first the name may already
		// be a fresh segment; removing that would orphan its producer.
		if sameFile(old.fd, Path(name)) {
			_ = Unlink(name)
		}
		old.Close()
	}
	return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
}

// sameFile reports whether path currently names the file open on fd.
func sameFile(fd int, path string) bool {
	var fs, ps unix.Stat_t
	if err := unix.Fstat(fd, &fs); err != nil {
		return false
	}
	if err := unix.Stat(path, &ps); err != nil {
		return false
	}
	return fs.Dev == ps.Dev && fs.Ino == ps.Ino
}

func tryCreate(name string, slotSize, slotCount, strategy uint32) (*Segment, error) {
	fd, err := unix.Open(Path(name), unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, 0o644)
	if err != nil {
		if err == unix.EEXIST {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
		}
		return nil, fmt.Errorf("segment: create %s: %w", name, err)
	}

	total := regionSize(slotSize, slotCount)
	if err := unix.Ftruncate(fd, int64(total)); err != nil {
		unix.Close(fd)
		_ = Unlink(name)
		return nil, fmt.Errorf("segment: ftruncate %s: %w", name, err)
	}

	mem, err := unix.Mmap(fd, 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		_ = Unlink(name)
		return nil, fmt.Errorf("segment: mmap %s: %w", name, err)
	}

	seg := &Segment{name: name, mem: mem, fd: fd, creator: true}
	seg.initHeader(slotSize, slotCount, strategy)
	return seg, nil
}

// Attach maps an existing region read/write and validates its header.
func Attach(name string) (*Segment, error) {
	fd, err := unix.Open(Path(name), unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("segment: open %s: %w", name, err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("segment: fstat %s: %w", name, err)
	}
	if st.Size < int64(headerSize+backendSize) {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s is only %d bytes", ErrCorrupt, name, st.Size)
	}

	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("segment: mmap %s: %w", name, err)
	}

	seg := &Segment{name: name, mem: mem, fd: fd}
	if err := seg.validate(int(st.Size)); err != nil {
		seg.Close()
		return nil, err
	}
	return seg, nil
}

// Unlink removes the name from the shared-memory namespace. Existing
// mappings stay valid until their owners close them. Missing names are not
// an error, so concurrent unlinks are safe.
func Unlink(name string) error {
	if err := unix.Unlink(Path(name)); err != nil && err != unix.ENOENT {
		return fmt.Errorf("segment: unlink %s: %w", name, err)
	}
	return nil
}

// Exists reports whether the name is currently present in the namespace.
func Exists(name string) bool {
	_, err := os.Stat(Path(name))
	return err == nil
}

// Name returns the segment's shared-memory object name.
func (s *Segment) Name() string { return s.name }

// Creator reports whether this handle created the segment.
func (s *Segment) Creator() bool { return s.creator }

// Size returns the mapped region size in bytes.
func (s *Segment) Size() int { return len(s.mem) }

// Close unmaps the region and closes the descriptor. The creator also
// unlinks the name so a clean producer shutdown leaves no orphan behind.
func (s *Segment) Close() error {
	var first error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil {
			first = fmt.Errorf("segment: munmap %s: %w", s.name, err)
		}
		s.mem = nil
	}
	if s.fd >= 0 {
		if err := unix.Close(s.fd); err != nil && first == nil {
			first = fmt.Errorf("segment: close %s: %w", s.name, err)
		}
		s.fd = -1
	}
	if s.creator {
		if err := Unlink(s.name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Detach unmaps without unlinking, regardless of who created the segment.
// Used by producers that want the segment to outlive them.
func (s *Segment) Detach() error {
	s.creator = false
	return s.Close()
}
