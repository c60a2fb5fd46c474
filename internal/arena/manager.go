// Package arena implements the two-file shared-memory arena a Trie is
// built on: a fixed-size status file (bump pointer, largest known data
// file size, dump/recycle yard) and a variable-size data file (the INode
// and CNode arena itself). All cross-process coordination is done with
// CAS on these memory-mapped bytes; there is no flock, no pipe, no
// RPC between attached processes.
//
// A Manager is an immutable snapshot of one attachment: both file
// descriptors, both mmap bases, and the data mapping's current size.
// Store holds the current Manager behind an atomic.Pointer and swaps it
// wholesale whenever the data file grows or a caller's fd is clobbered
// out from under it. Superseded Manager mappings are never munmapped;
// see growth.go for why that is deliberate, not a leak bug.
package arena

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	fallocate "github.com/detailyang/go-fallocate"
	"golang.org/x/sys/unix"

	"github.com/sandboxfs/pathtrie/internal/layout"
)

// Manager is one attached process's view of the two arena files. All
// fields are set once at construction and never mutated; growth and fd
// reset build a new Manager and CAS-install it rather than touching this
// one in place, so any goroutine holding a *Manager can keep using its
// bases safely forever.
type Manager struct {
	StatusFD int
	DataFD   int

	StatusBase []byte
	DataBase   []byte

	// DataMappingSize is len(DataBase): how much of the data file this
	// particular mapping covers. It can lag StatusLayout's
	// sharedMemoryFileSize if another process grew the file after this
	// Manager was built but before this process noticed.
	DataMappingSize uint64

	StatusPath string
	DataPath   string

	Codec  layout.Codec
	Status StatusLayout
}

// Store holds the current Manager for one Trie instance. The zero Store
// is unattached.
type Store struct {
	current atomic.Pointer[Manager]
	cfg     Config
}

// NewStore builds an unattached Store for the given configuration.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg.normalized()}
}

// Current returns the active Manager, or nil if Attach has not succeeded
// yet.
func (s *Store) Current() *Manager {
	return s.current.Load()
}

// Attached reports whether Attach has installed a Manager.
func (s *Store) Attached() bool {
	return s.current.Load() != nil
}

// Attach opens (creating if necessary) the status and data files at the
// given paths, maps both, bootstraps the status record and root node on
// first creation, and installs the resulting Manager. It is idempotent:
// calling Attach again on an already-attached Store is a no-op, mirroring
// __dtsharedmemory_set_manager's "only the first caller bootstraps"
// behavior, generalized from one process-wide global to one Store
// instance.
//
// When two goroutines race to Attach the same Store, the loser's
// redundant fds and mappings are closed and unmapped. When two Stores race
// to create the same files, the one whose exclusive create fails re-opens
// what the winner created; only one CAS into each file's zeroed fields can
// succeed, which is what makes this safe even when both sides believe they
// are the creator.
func (s *Store) Attach(statusPath, dataPath string) error {
	if s.Attached() {
		return nil
	}

	sl := s.cfg.statusLayout()
	codec := s.cfg.codec()

	statusFD, statusCreated, err := openOrCreate(statusPath)
	if err != nil {
		return systemErrorf("open status file", err)
	}

	dataFD, dataCreated, err := openOrCreate(dataPath)
	if err != nil {
		unix.Close(statusFD)
		return systemErrorf("open data file", err)
	}

	// A file another attacher created but has not sized yet is still
	// empty; size it here too instead of failing the size checks below.
	if size, err := fileSize(statusFD); err == nil && size == 0 {
		statusCreated = true
	}
	if size, err := fileSize(dataFD); err == nil && size == 0 {
		dataCreated = true
	}

	if statusCreated {
		if err := reserveSpace(statusFD, int64(sl.Size()), s.cfg.DisableFallocate); err != nil {
			unix.Close(statusFD)
			unix.Close(dataFD)
			return systemErrorf("truncate status file", err)
		}
	}

	if dataCreated {
		if err := reserveSpace(dataFD, int64(s.cfg.InitialFileSize), s.cfg.DisableFallocate); err != nil {
			unix.Close(statusFD)
			unix.Close(dataFD)
			return systemErrorf("truncate data file", err)
		}
	}

	statusSize, err := fileSize(statusFD)
	if err != nil {
		unix.Close(statusFD)
		unix.Close(dataFD)
		return systemErrorf("fstat status file", err)
	}
	if statusSize < int64(sl.Size()) {
		unix.Close(statusFD)
		unix.Close(dataFD)
		return systemErrorf("attach", fmt.Errorf("status file %s is %d bytes, want at least %d", statusPath, statusSize, sl.Size()))
	}

	dataSize, err := fileSize(dataFD)
	if err != nil {
		unix.Close(statusFD)
		unix.Close(dataFD)
		return systemErrorf("fstat data file", err)
	}
	if dataSize < int64(codec.RootSize()) {
		unix.Close(statusFD)
		unix.Close(dataFD)
		return systemErrorf("attach", fmt.Errorf("data file %s is %d bytes, want at least %d", dataPath, dataSize, codec.RootSize()))
	}

	statusBase, err := unix.Mmap(statusFD, 0, int(statusSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(statusFD)
		unix.Close(dataFD)
		return systemErrorf("mmap status file", err)
	}

	dataBase, err := unix.Mmap(dataFD, 0, int(dataSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Munmap(statusBase)
		unix.Close(statusFD)
		unix.Close(dataFD)
		return systemErrorf("mmap data file", err)
	}

	bootstrap(sl, codec, statusBase, dataBase, s.cfg.InitialFileSize)

	m := &Manager{
		StatusFD:        statusFD,
		DataFD:          dataFD,
		StatusBase:      statusBase,
		DataBase:        dataBase,
		DataMappingSize: uint64(len(dataBase)),
		StatusPath:      statusPath,
		DataPath:        dataPath,
		Codec:           codec,
		Status:          sl,
	}

	if !s.current.CompareAndSwap(nil, m) {
		// Another goroutine attached first; discard our redundant mapping
		// and fds rather than leaking them (unlike a superseded growth
		// Manager, nothing else can be holding a pointer into this one
		// yet, since it was never published).
		unix.Munmap(statusBase)
		unix.Munmap(dataBase)
		unix.Close(statusFD)
		unix.Close(dataFD)
	}

	return nil
}

// openOrCreate opens path O_RDWR, falling back to a create-if-missing
// dance when it does not exist yet: this mirrors openStatusFile's
// open-or-create race handling, where any number of processes may be
// racing to be the one that creates the file.
func openOrCreate(path string) (fd int, created bool, err error) {
	fd, err = unix.Open(path, unix.O_RDWR, 0)
	if err == nil {
		return fd, false, nil
	}
	if err != unix.ENOENT {
		return -1, false, err
	}

	fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0600)
	if err == nil {
		return fd, true, nil
	}
	if err != unix.EEXIST {
		return -1, false, err
	}

	// Lost the create race; the winner's file now exists.
	fd, err = unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return -1, false, err
	}
	return fd, false, nil
}

func reserveSpace(fd int, size int64, disableFallocate bool) error {
	if !disableFallocate {
		// os.NewFile registers a finalizer that closes the fd when the
		// *os.File is collected. fd is one of Manager's long-lived
		// StatusFD/DataFD, reused for every later Mmap/Ftruncate/Fstat
		// call on this Manager, so that finalizer must be disarmed before
		// f is dropped - otherwise a GC after this call returns closes
		// the fd out from under the rest of the process.
		f := os.NewFile(uintptr(fd), "")
		err := fallocate.Fallocate(f, 0, size)
		runtime.SetFinalizer(f, nil)
		if err == nil {
			return nil
		}
		// fall through to a bare truncate: some filesystems (tmpfs, some
		// CI sandboxes) don't support fallocate at all.
	}
	return unix.Ftruncate(fd, size)
}

func fileSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// bootstrap CAS-initializes the status record and the root INode/CNode
// the first time any process observes them as zeroed. Every field is
// advanced with a CAS rather than a raw store, so that a second process
// attaching concurrently to a newly-created pair of files never
// clobbers the winner's initialization.
func bootstrap(sl StatusLayout, codec layout.Codec, statusBase, dataBase []byte, initialFileSize uint64) {
	sl.CASSharedMemoryFileSize(statusBase, 0, initialFileSize)

	rootINodeOff := 0
	rootCNodeOff := codec.INodeSize()
	sl.CASWriteFromOffset(statusBase, 0, uint64(codec.RootSize()))

	// The root INode's mainNode must point at the root CNode. Only one
	// attacher's CAS can win; the loser's attempt simply fails and it
	// proceeds to read what the winner wrote.
	codec.CASMainNode(dataBase, rootINodeOff, 0, uint64(rootCNodeOff))
}
