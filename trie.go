// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pathtrie

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacobsa/reqtrace"

	"github.com/sandboxfs/pathtrie/internal/arena"
	"github.com/sandboxfs/pathtrie/internal/layout"
	"github.com/sandboxfs/pathtrie/internal/yard"
)

const rootINodeOffset = 0

// translateErr maps internal/arena's sentinel errors onto this package's
// own, so callers never have to import internal/arena to errors.Is against
// a failure Insert or Search returned. Anything else (a *arena.SystemError,
// for instance) passes through unwrapped, since Unwrap already lets callers
// reach the underlying os error.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, arena.ErrNotAttached):
		return ErrNotAttached
	case errors.Is(err, arena.ErrArenaExhausted):
		return ErrArenaExhausted
	default:
		return err
	}
}

// Config configures a Trie's backing shared-memory arena. A zero
// InitialFileSize, ExpandingSize or DumpYardSize is replaced by its
// default; DefaultConfig shows those defaults as a starting point.
type Config struct {
	// InitialFileSize is the data file's size when first created.
	InitialFileSize uint64

	// ExpandingSize is how much the data file grows by on each
	// expansion.
	ExpandingSize uint64

	// DumpYardSize is the number of slots in the dump/recycle yard.
	DumpYardSize int

	// Compact selects 32-bit arena offsets, capping the arena at 4GiB in
	// exchange for half the per-node memory.
	Compact bool

	// DisableDumpRecycle turns off the dump/recycle yard: every
	// copy-on-write replacement then abandons its old CNode instead of
	// offering it for reuse.
	DisableDumpRecycle bool

	// DisableFallocate falls back to a bare truncate instead of
	// preallocating space with posix_fallocate.
	DisableFallocate bool
}

// DefaultConfig returns the tunables this package uses unless overridden.
func DefaultConfig() Config {
	c := arena.DefaultConfig()
	return Config{
		InitialFileSize: c.InitialFileSize,
		ExpandingSize:   c.ExpandingSize,
		DumpYardSize:    c.DumpYardSize,
	}
}

func (c Config) toArena() arena.Config {
	return arena.Config{
		InitialFileSize:    c.InitialFileSize,
		ExpandingSize:      c.ExpandingSize,
		DumpYardSize:       c.DumpYardSize,
		Compact:            c.Compact,
		DisableDumpRecycle: c.DisableDumpRecycle,
		DisableFallocate:   c.DisableFallocate,
	}
}

// Trie is a lock-free path trie backed by two memory-mapped files, safe
// for concurrent use by any number of goroutines in this process and, if
// every attached process uses the same file paths, by any number of
// other processes too.
type Trie struct {
	store *arena.Store
	cfg   Config
}

// New constructs an unattached Trie. Call Attach before Insert or Search.
func New(cfg Config) *Trie {
	return &Trie{
		store: arena.NewStore(cfg.toArena()),
		cfg:   cfg,
	}
}

// Attach opens (creating if necessary) the status and data files at the
// given paths and maps them into this process. It is idempotent.
func (t *Trie) Attach(statusPath, dataPath string) error {
	return translateErr(t.store.Attach(statusPath, dataPath))
}

// ResetFD reopens both backing files. Call it after something external
// has closed or dup2'd over a descriptor Guard reports as belonging to
// this Trie; it is a no-op if the Trie isn't attached yet.
func (t *Trie) ResetFD() error {
	return translateErr(t.store.ResetFD())
}

// Guard reports whether fd is one of this Trie's backing file
// descriptors, for callers that interpose close(2)/dup2(2) themselves.
func (t *Trie) Guard(fd int) bool {
	return t.store.Guard(fd)
}

// StatusFileFd returns the current status file descriptor.
func (t *Trie) StatusFileFd() (int, error) {
	if !t.store.Attached() {
		return -1, ErrNotAttached
	}
	return t.store.StatusFD(), nil
}

// DataFileFd returns the current data file descriptor.
func (t *Trie) DataFileFd() (int, error) {
	if !t.store.Attached() {
		return -1, ErrNotAttached
	}
	return t.store.DataFD(), nil
}

// UsedSharedMemorySize returns the arena's current bump-allocator offset:
// an upper bound on how much of the data file holds live trie structure,
// since it also counts nodes abandoned by copy-on-write updates.
func (t *Trie) UsedSharedMemorySize() (uint64, error) {
	m := t.store.Current()
	if m == nil {
		return 0, ErrNotAttached
	}
	return m.Status.LoadWriteFromOffset(m.StatusBase), nil
}

// Insert adds path to the trie with the given flags, creating any
// missing nodes along the way and overwriting the flags of an
// already-present path. A byte value of 13 is silently skipped wherever
// it appears in path. Every other byte must fall within the alphabet
// range or Insert returns ErrOutOfRangeCharacter, leaving the trie
// exactly as it was for every character processed before the bad one
// plus whatever nodes that partial walk created - Insert is not
// transactional across the whole path.
func (t *Trie) Insert(path string, flags Flags) (err error) {
	if reqtrace.Enabled() {
		var report reqtrace.ReportFunc
		_, report = reqtrace.StartSpan(context.Background(), fmt.Sprintf("pathtrie.Insert(%q)", path))
		defer func() { report(err) }()
	}

	m := t.store.Current()
	if m == nil {
		return ErrNotAttached
	}

	inodeOff := uint64(rootINodeOffset)
	parentOff := inodeOff
	var lastChar byte
	var sawChar bool

	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == layout.SkipByte {
			continue
		}
		if !layout.InRange(c) {
			return ErrOutOfRangeCharacter
		}
		lastChar = c
		sawChar = true
		parentOff = inodeOff

		var err error
		var childOff uint64
		childOff, m, err = t.step(m, inodeOff, int(c)-layout.LowerLimit)
		if err != nil {
			return translateErr(err)
		}
		inodeOff = childOff
	}

	// A path inserted with FlagPrefix and a literal trailing slash marks
	// the directory itself (without the slash) as the terminal node,
	// which is what lets Search's prefix fallback recognize it.
	target := inodeOff
	if sawChar && lastChar == '/' && flags.Has(FlagPrefix) {
		target = parentOff
	}

	return translateErr(t.markTerminal(m, target, flags))
}

// Search reports whether path (or a path-component prefix of it that was
// inserted with FlagPrefix) is present, and if so returns the flags it
// was last inserted with.
func (t *Trie) Search(path string) (found bool, flags Flags, err error) {
	if reqtrace.Enabled() {
		var report reqtrace.ReportFunc
		_, report = reqtrace.StartSpan(context.Background(), fmt.Sprintf("pathtrie.Search(%q)", path))
		defer func() { report(err) }()
	}

	m := t.store.Current()
	if m == nil {
		return false, 0, ErrNotAttached
	}

	inodeOff := uint64(rootINodeOffset)

	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == layout.SkipByte {
			continue
		}
		if !layout.InRange(c) {
			return false, 0, ErrOutOfRangeCharacter
		}

		var cnodeOff, childOff uint64
		var err error
		cnodeOff, childOff, m, err = t.guardedPossibility(m, inodeOff, int(c)-layout.LowerLimit)
		if err != nil {
			return false, 0, translateErr(err)
		}

		if childOff == 0 {
			flags := Flags(m.Codec.Flags(m.DataBase, int(cnodeOff)))
			if c == '/' && flags.Has(FlagPrefix) {
				return true, flags, nil
			}
			return false, 0, nil
		}
		inodeOff = childOff
	}

	cnodeOff, mm, err := t.guardedCNode(m, inodeOff)
	if err != nil {
		return false, 0, translateErr(err)
	}
	if !mm.Codec.IsEndOfString(mm.DataBase, int(cnodeOff)) {
		return false, 0, nil
	}
	return true, Flags(mm.Codec.Flags(mm.DataBase, int(cnodeOff))), nil
}

// guardedCNode resolves the INode at inodeOff to its current CNode
// offset, retrying if another CAS replaces mainNode while the mapping is
// being grown to reach it.
func (t *Trie) guardedCNode(m *arena.Manager, inodeOff uint64) (cnodeOff uint64, mm *arena.Manager, err error) {
	mm = m
	for {
		mm, err = t.store.EnsureReachable(inodeOff, mm.Codec.INodeSize())
		if err != nil {
			return
		}
		old := mm.Codec.MainNode(mm.DataBase, int(inodeOff))
		mm, err = t.store.EnsureReachable(old, mm.Codec.CNodeSize())
		if err != nil {
			return
		}
		if mm.Codec.MainNode(mm.DataBase, int(inodeOff)) == old {
			cnodeOff = old
			return
		}
	}
}

// guardedPossibility reads possibilities[idx] for the INode at inodeOff,
// rereading mainNode afterward and retrying on mismatch: the Go mirror of
// the GUARD_CNODE_ACCESS macro, detecting a concurrent structural CAS (or
// a recycle of the CNode we were reading) between the two reads.
func (t *Trie) guardedPossibility(m *arena.Manager, inodeOff uint64, idx int) (cnodeOff, childOff uint64, mm *arena.Manager, err error) {
	mm = m
	for {
		mm, err = t.store.EnsureReachable(inodeOff, mm.Codec.INodeSize())
		if err != nil {
			return
		}
		cnodeOff = mm.Codec.MainNode(mm.DataBase, int(inodeOff))
		mm, err = t.store.EnsureReachable(cnodeOff, mm.Codec.CNodeSize())
		if err != nil {
			return
		}
		childOff = mm.Codec.Possibility(mm.DataBase, int(cnodeOff), idx)
		if mm.Codec.MainNode(mm.DataBase, int(inodeOff)) == cnodeOff {
			return
		}
	}
}

// step resolves (or creates) the child of inodeOff for alphabet index idx
// and returns the child INode's offset.
func (t *Trie) step(m *arena.Manager, inodeOff uint64, idx int) (uint64, *arena.Manager, error) {
	for {
		_, child, mm, err := t.guardedPossibility(m, inodeOff, idx)
		if err != nil {
			return 0, mm, err
		}
		m = mm
		if child != 0 {
			return child, m, nil
		}

		newCNodeOff, m2, err := t.reserveCNode(m, inodeOff)
		if err != nil {
			return 0, m2, err
		}
		m = m2

		// Re-check under a fresh guarded read: another goroutine may
		// have filled this slot while we were reserving.
		old2, child2, m3, err := t.guardedPossibility(m, inodeOff, idx)
		if err != nil {
			return 0, m3, err
		}
		m = m3
		if child2 != 0 {
			t.dump(m, newCNodeOff, inodeOff)
			return child2, m, nil
		}

		m.Codec.CopyCNode(m.DataBase, int(newCNodeOff), m.DataBase, int(old2))

		childINodeOff, m4, err := t.reserveChild(m)
		if err != nil {
			return 0, m4, err
		}
		m = m4
		m.Codec.SetPossibilityRaw(m.DataBase, int(newCNodeOff), idx, childINodeOff)

		if m.Codec.CASMainNode(m.DataBase, int(inodeOff), old2, newCNodeOff) {
			t.dump(m, old2, inodeOff)
			return childINodeOff, m, nil
		}

		t.dump(m, newCNodeOff, inodeOff)
		logCASRetry("step", inodeOff)
		// Lost the race; retry from the top with the latest state.
	}
}

// markTerminal copy-on-write updates the CNode at inodeOff to set
// isEndOfString and flags, zeroing the '/' branch when flags carries
// FlagPrefix so Search's prefix fallback can find it.
func (t *Trie) markTerminal(m *arena.Manager, inodeOff uint64, flags Flags) error {
	for {
		old, mm, err := t.guardedCNode(m, inodeOff)
		if err != nil {
			return err
		}
		m = mm

		newOff, m2, err := t.reserveCNode(m, inodeOff)
		if err != nil {
			return err
		}
		m = m2

		m.Codec.CopyCNode(m.DataBase, int(newOff), m.DataBase, int(old))
		m.Codec.SetIsEndOfStringRaw(m.DataBase, int(newOff), true)
		m.Codec.SetFlagsRaw(m.DataBase, int(newOff), byte(flags))
		if flags.Has(FlagPrefix) {
			m.Codec.SetPossibilityRaw(m.DataBase, int(newOff), layout.SlashIndex, 0)
		}

		if m.Codec.CASMainNode(m.DataBase, int(inodeOff), old, newOff) {
			t.dump(m, old, inodeOff)
			return nil
		}

		t.dump(m, newOff, inodeOff)
		logCASRetry("markTerminal", inodeOff)
		// Lost the race; retry with a fresh read of the current CNode.
	}
}

// reserveCNode obtains CNodeSize bytes for a copy-on-write replacement of
// the CNode owned by parentINodeOff, preferring a recycled slot from the
// dump yard over a fresh bump allocation.
func (t *Trie) reserveCNode(m *arena.Manager, parentINodeOff uint64) (uint64, *arena.Manager, error) {
	size := m.Codec.CNodeSize()

	if !t.cfg.DisableDumpRecycle {
		if off, ok := yard.Recycle(m.StatusBase, m.Status, parentINodeOff); ok {
			mm, err := t.store.EnsureReachable(off, size)
			if err != nil {
				return 0, mm, err
			}
			return off, mm, nil
		}
	}

	off, err := t.store.Reserve(size)
	if err != nil {
		return 0, m, err
	}
	mm, err := t.store.EnsureReachable(off, size)
	if err != nil {
		return 0, mm, err
	}
	return off, mm, nil
}

// reserveChild allocates a fresh INode+CNode pair and points the new
// INode's mainNode at its own CNode, which freshly mapped (or
// fallocate'd) memory starts zeroed. Child pairs are never offered to the
// dump/recycle yard; only the CNode-sized copy-on-write replacements are.
func (t *Trie) reserveChild(m *arena.Manager) (uint64, *arena.Manager, error) {
	size := m.Codec.RootSize()

	off, err := t.store.Reserve(size)
	if err != nil {
		return 0, m, err
	}
	mm, err := t.store.EnsureReachable(off, size)
	if err != nil {
		return 0, mm, err
	}

	mm.Codec.InitMainNode(mm.DataBase, int(off), off+uint64(mm.Codec.INodeSize()))
	return off, mm, nil
}

// dump offers offset, abandoned by a copy-on-write replacement under
// parentINodeOff, to the recycle yard. It is a no-op when the yard is
// disabled.
func (t *Trie) dump(m *arena.Manager, offset, parentINodeOff uint64) {
	if t.cfg.DisableDumpRecycle {
		return
	}
	yard.Dump(m.StatusBase, m.Status, offset, parentINodeOff)
}
