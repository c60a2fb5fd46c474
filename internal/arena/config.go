package arena

import (
	"runtime"

	"github.com/sandboxfs/pathtrie/internal/layout"
)

const (
	mib = 1024 * 1024

	// DefaultInitialFileSize is INITIAL_FILE_SIZE from the C source: the
	// data file's size at first truncate. Must be >= RootSize.
	DefaultInitialFileSize = 20 * mib

	// DefaultDumpYardSize is DUMP_YARD_SIZE: the number of slots in the
	// dump/recycle yard.
	DefaultDumpYardSize = 64
)

// Config holds every tunable parameter of the shared-memory lifecycle.
// There is no config-file layer; a Trie is a library, not a daemon, so
// tunables are explicit struct fields, the same shape as fuse.MountConfig,
// never read from the environment.
type Config struct {
	// InitialFileSize is the data file's size when first created. Must be
	// >= RootSize(); defaults to DefaultInitialFileSize.
	InitialFileSize uint64

	// ExpandingSize is how much the data file grows by on each expansion.
	// Defaults to 10MiB * runtime.NumCPU, matching the variant of
	// EXPANDING_SIZE the original scales by processor count.
	ExpandingSize uint64

	// DumpYardSize is the number of slots in the dump/recycle yard.
	// Defaults to DefaultDumpYardSize; zero also selects the default, so
	// use DisableDumpRecycle to turn the subsystem off instead.
	DumpYardSize int

	// Compact selects 32-bit arena offsets (caps the arena at 4GiB, halves
	// CNode memory) instead of the default 64-bit offsets.
	Compact bool

	// DisableDumpRecycle turns off the dump/recycle yard entirely
	// (DISABLE_DUMPING_AND_RECYCLING in the C source); every copy-on-write
	// replacement then simply abandons its old CNode. Useful for
	// debugging and for measuring the yard's memory savings.
	DisableDumpRecycle bool

	// DisableFallocate turns off the posix_fallocate space reservation
	// normally performed before truncate/grow, falling back to a bare
	// truncate (sparse file). See reserveSpace in manager.go, which also
	// falls back to a bare truncate when fallocate fails.
	DisableFallocate bool
}

// DefaultConfig returns a reasonable starting point: a 20MiB initial
// arena, growth scaled by NumCPU, and a 64-slot dump/recycle yard.
func DefaultConfig() Config {
	return Config{
		InitialFileSize: DefaultInitialFileSize,
		ExpandingSize:   uint64(10*mib) * uint64(runtime.NumCPU()),
		DumpYardSize:    DefaultDumpYardSize,
	}
}

func (c Config) codec() layout.Codec {
	if c.Compact {
		return layout.Codec{W: layout.Width4}
	}
	return layout.Codec{W: layout.Width8}
}

func (c Config) statusLayout() StatusLayout {
	return StatusLayout{DumpYardSize: c.DumpYardSize}
}

// padding is PADDING_BYTES: extra slack per reservation so a recycled
// offset can be tagged odd without colliding with the next allocation.
func (c Config) padding() uint64 {
	if c.DisableDumpRecycle {
		return 0
	}
	return 2
}

func (c Config) normalized() Config {
	out := c
	if out.InitialFileSize == 0 {
		out.InitialFileSize = DefaultInitialFileSize
	}
	if out.ExpandingSize == 0 {
		out.ExpandingSize = uint64(10*mib) * uint64(runtime.NumCPU())
	}
	if out.DumpYardSize == 0 {
		out.DumpYardSize = DefaultDumpYardSize
	}
	return out
}
