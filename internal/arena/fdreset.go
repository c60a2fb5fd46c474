package arena

import (
	"golang.org/x/sys/unix"

	"github.com/sandboxfs/pathtrie/internal/debug"
)

// StatusFD returns the currently installed status file descriptor, or -1
// if unattached.
func (s *Store) StatusFD() int {
	m := s.current.Load()
	if m == nil {
		return -1
	}
	return m.StatusFD
}

// DataFD returns the currently installed data file descriptor, or -1 if
// unattached.
func (s *Store) DataFD() int {
	m := s.current.Load()
	if m == nil {
		return -1
	}
	return m.DataFD
}

// Guard reports whether fd is one of this Store's two file descriptors.
// Callers that wrap close(2)/dup2(2) are expected to check this before
// letting such a call through, and to call ResetFD first if it matches -
// exactly the role __dtsharedmemory_reset_fd plays for close()/dup2()
// interposition in the C original. pathtrie itself does not interpose
// those syscalls; that is left to the caller, since deciding which
// syscalls to guard is an interposition-layer policy question outside
// this package's scope.
func (s *Store) Guard(fd int) bool {
	m := s.current.Load()
	if m == nil {
		return false
	}
	return fd == m.StatusFD || fd == m.DataFD
}

// ResetFD reopens both arena files at their original paths and
// CAS-installs a fresh Manager, without touching writeFromOffset or any
// other status field. Use this after something external has closed or
// dup2'd over one of the fds Guard reports as belonging to this Store.
//
// If the Store is not attached, ResetFD is a no-op: there is nothing to
// reset, and Attach will perform the equivalent bootstrap when it is
// eventually called.
func (s *Store) ResetFD() error {
	m := s.current.Load()
	if m == nil {
		return nil
	}

	newStatusFD, err := unix.Open(m.StatusPath, unix.O_RDWR, 0)
	if err != nil {
		return systemErrorf("reopen status file", err)
	}

	newDataFD, err := unix.Open(m.DataPath, unix.O_RDWR, 0)
	if err != nil {
		unix.Close(newStatusFD)
		return systemErrorf("reopen data file", err)
	}

	next := &Manager{
		StatusFD:        newStatusFD,
		DataFD:          newDataFD,
		StatusBase:      m.StatusBase,
		DataBase:        m.DataBase,
		DataMappingSize: m.DataMappingSize,
		StatusPath:      m.StatusPath,
		DataPath:        m.DataPath,
		Codec:           m.Codec,
		Status:          m.Status,
	}

	for !s.current.CompareAndSwap(m, next) {
		cur := s.current.Load()
		if cur.StatusFD != m.StatusFD || cur.DataFD != m.DataFD {
			// Someone else reset first; our reopened fds are redundant
			// duplicates of the same underlying files.
			unix.Close(newStatusFD)
			unix.Close(newDataFD)
			return nil
		}
		// A grow replaced the Manager but kept the old fds; carry its
		// larger mapping over and retry.
		m = cur
		next.DataBase = cur.DataBase
		next.DataMappingSize = cur.DataMappingSize
	}

	debug.FDReset(m.StatusFD, newStatusFD, m.DataFD, newDataFD)
	return nil
}
