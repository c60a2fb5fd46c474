package arena

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxfs/pathtrie/internal/debug"
	"github.com/sandboxfs/pathtrie/internal/layout"
)

// maxCompactOffset is the largest offset representable in compact (32-bit)
// mode; reserving past it returns ErrArenaExhausted rather than silently
// wrapping.
const maxCompactOffset = 1<<32 - 1

// Reserve bumps the arena's writeFromOffset by n bytes plus the
// configured padding and returns the offset the caller may now use
// exclusively. It is the only way new INode/CNode space is carved out of
// the data file; every Insert allocation not served by the dump/recycle
// yard goes through here.
//
// The CAS loop is unbounded: under contention a reservation simply
// retries against whatever writeFromOffset another thread most recently
// published. There is no backoff, matching the retry style of every
// other CAS loop in this codebase (see layout.Codec.CASOffset callers).
func (s *Store) Reserve(n int) (uint64, error) {
	m := s.current.Load()
	if m == nil {
		return 0, ErrNotAttached
	}

	padding := s.cfg.padding()
	want := uint64(n) + padding

	for {
		old := m.Status.LoadWriteFromOffset(m.StatusBase)
		next := old + want

		if m.Codec.W == layout.Width4 && next > maxCompactOffset {
			return 0, ErrArenaExhausted
		}
		if next < old {
			return 0, ErrArenaExhausted
		}

		if m.Status.CASWriteFromOffset(m.StatusBase, old, next) {
			return old, nil
		}
	}
}

// EnsureReachable returns a Manager whose DataBase is guaranteed to cover
// [offset, offset+size), growing the data file and remapping it if the
// currently installed Manager does not yet reach that far. Callers must
// always use the returned Manager's DataBase, not one cached from
// before the call, since a grow may have replaced it.
func (s *Store) EnsureReachable(offset uint64, size int) (*Manager, error) {
	m := s.current.Load()
	if m == nil {
		return nil, ErrNotAttached
	}

	need := offset + uint64(size)
	if need <= m.DataMappingSize {
		return m, nil
	}

	return s.grow(m, need)
}

// grow truncates the data file bigger, maps the new region, and
// CAS-installs a new Manager covering it. The superseded Manager's
// DataBase is intentionally never munmapped: other goroutines and other
// processes may be mid-read through a pointer derived from it via
// EnsureReachable's caller, and munmap would turn that into a
// use-after-unmap. The mapping is leaked for the lifetime of the
// process, same as the C original's expandSharedMemory.
func (s *Store) grow(observed *Manager, need uint64) (*Manager, error) {
	for {
		current := s.current.Load()
		if current != observed {
			// Someone else already grew past us; retry against the
			// latest Manager instead of growing twice.
			observed = current
			if need <= observed.DataMappingSize {
				return observed, nil
			}
		}

		// target starts at max(status.sharedMemoryFileSize,
		// observed.DataMappingSize), not just our own stale
		// DataMappingSize: another process may have already truncated
		// the file further than this Manager's mapping reflects, and
		// starting from our own view alone would let the truncate below
		// shrink the file back down to our smaller target, destroying
		// whatever that other process wrote past it.
		statusSize := observed.Status.LoadSharedMemoryFileSize(observed.StatusBase)
		target := statusSize
		if observed.DataMappingSize > target {
			target = observed.DataMappingSize
		}
		for target < need {
			target += s.cfg.ExpandingSize
		}

		if statusSize < target {
			if err := reserveSpace(observed.DataFD, int64(target), s.cfg.DisableFallocate); err != nil {
				return nil, systemErrorf("grow data file", err)
			}
		}

		newBase, err := unix.Mmap(observed.DataFD, 0, int(target), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			return nil, systemErrorf("mmap grown data file", err)
		}

		next := &Manager{
			StatusFD:        observed.StatusFD,
			DataFD:          observed.DataFD,
			StatusBase:      observed.StatusBase,
			DataBase:        newBase,
			DataMappingSize: target,
			StatusPath:      observed.StatusPath,
			DataPath:        observed.DataPath,
			Codec:           observed.Codec,
			Status:          observed.Status,
		}

		// Publish the new largest-known size monotonically; lost races
		// here just mean another grower already advanced it at least
		// this far.
		for {
			old := observed.Status.LoadSharedMemoryFileSize(observed.StatusBase)
			if old >= target {
				break
			}
			if observed.Status.CASSharedMemoryFileSize(observed.StatusBase, old, target) {
				break
			}
		}

		if s.current.CompareAndSwap(observed, next) {
			debug.Grow(observed.DataMappingSize, target)
			return next, nil
		}

		// Lost the install race. Our mapping is unpublished, so unlike a
		// superseded *installed* Manager it is safe to unmap here.
		unix.Munmap(newBase)
		observed = s.current.Load()
		if need <= observed.DataMappingSize {
			return observed, nil
		}
	}
}
