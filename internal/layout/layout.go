// Package layout defines the on-arena byte layout of the trie's two node
// types (INode and CNode) and the atomic operations used to read, write,
// and CAS them directly inside a memory-mapped []byte.
//
// Every accessor here is type punning in the same spirit as
// github.com/jacobsa/fuse's internal/buffer package: instead of an
// idiomatic Go struct with named fields, nodes are byte offsets into a
// shared arena that may simultaneously be mapped by other processes, so
// the layout has to be exact, width-configurable, and racy by
// construction.
package layout

import (
	"sync/atomic"
	"unsafe"
)

const (
	// LowerLimit is the lowest alphabet byte value, inclusive.
	LowerLimit = 32

	// UpperLimit is the highest alphabet byte value, inclusive.
	UpperLimit = 122

	// Alphabet is the number of distinct characters a CNode can branch on.
	Alphabet = UpperLimit - LowerLimit + 1

	// SkipByte is silently skipped by Insert and Search: the macOS HFS+
	// "custom icon" sentinel.
	SkipByte = 13

	// SlashIndex is the possibilities[] index of '/'; used to encode the
	// prefix indicator.
	SlashIndex = '/' - LowerLimit
)

func init() {
	if SkipByte >= LowerLimit && SkipByte <= UpperLimit {
		panic("layout: SkipByte must lie outside the alphabet range, or a valid alphabet byte would be silently dropped")
	}
	if UpperLimit <= LowerLimit {
		panic("layout: invalid alphabet range")
	}
}

// InRange reports whether c is a valid, non-skipped alphabet byte.
func InRange(c byte) bool {
	return c >= LowerLimit && c <= UpperLimit
}

// Width is an offset word width: either 4 bytes (compact, caps the arena at
// 4GiB) or 8 bytes (large-memory mode, the default).
type Width int

const (
	// Width4 stores every offset as a uint32 (LARGE_MEMORY_NEEDED=0 in the
	// C source): half the memory, 4GiB arena cap.
	Width4 Width = 4

	// Width8 stores every offset as a uint64 (LARGE_MEMORY_NEEDED=1):
	// unbounded arena, double the possibilities-array memory.
	Width8 Width = 8
)

// Codec computes byte layout and performs atomic access for a single offset
// width. It holds no buffer; callers pass the current mapping's []byte on
// every call, since that slice is replaced wholesale whenever the mapping
// grows.
type Codec struct {
	W Width
}

// INodeSize is the size in bytes of an INode: a single atomic offset word.
func (c Codec) INodeSize() int { return int(c.W) }

// cnodeHeaderSize is the two trailing metadata bytes: isEndOfString, flags.
const cnodeHeaderSize = 2

// CNodeSize is the size in bytes of a CNode: the possibilities array plus
// the isEndOfString and flags bytes.
func (c Codec) CNodeSize() int {
	return Alphabet*int(c.W) + cnodeHeaderSize
}

// RootSize is sizeof(INode)+sizeof(CNode), the minimum valid data-file size.
func (c Codec) RootSize() int {
	return c.INodeSize() + c.CNodeSize()
}

// possibilityOffset returns the byte offset of possibilities[idx] relative
// to the start of a CNode at cnodeOff.
func (c Codec) possibilityOffset(cnodeOff, idx int) int {
	return cnodeOff + idx*int(c.W)
}

// LoadOffset atomically reads the offset word at pos.
func (c Codec) LoadOffset(buf []byte, pos int) uint64 {
	switch c.W {
	case Width4:
		p := (*uint32)(unsafe.Pointer(&buf[pos]))
		return uint64(atomic.LoadUint32(p))
	default:
		p := (*uint64)(unsafe.Pointer(&buf[pos]))
		return atomic.LoadUint64(p)
	}
}

// StoreOffsetRaw writes the offset word at pos without synchronization. Only
// safe before the region has been published to another thread/process via
// CASOffset.
func (c Codec) StoreOffsetRaw(buf []byte, pos int, v uint64) {
	switch c.W {
	case Width4:
		p := (*uint32)(unsafe.Pointer(&buf[pos]))
		*p = uint32(v)
	default:
		p := (*uint64)(unsafe.Pointer(&buf[pos]))
		*p = v
	}
}

// CASOffset performs a compare-and-swap on the offset word at pos. This is
// the single linearization point for edge creation: every structural
// mutation of the trie is one CAS on an INode's mainNode.
func (c Codec) CASOffset(buf []byte, pos int, old, new uint64) bool {
	switch c.W {
	case Width4:
		p := (*uint32)(unsafe.Pointer(&buf[pos]))
		return atomic.CompareAndSwapUint32(p, uint32(old), uint32(new))
	default:
		p := (*uint64)(unsafe.Pointer(&buf[pos]))
		return atomic.CompareAndSwapUint64(p, old, new)
	}
}

// MainNode atomically reads INode.mainNode for the INode at offset inodeOff.
func (c Codec) MainNode(buf []byte, inodeOff int) uint64 {
	return c.LoadOffset(buf, inodeOff)
}

// CASMainNode CASes INode.mainNode for the INode at offset inodeOff.
func (c Codec) CASMainNode(buf []byte, inodeOff int, old, new uint64) bool {
	return c.CASOffset(buf, inodeOff, old, new)
}

// InitMainNode writes INode.mainNode without synchronization, for an INode
// that has just been reserved and is not yet reachable from any other
// thread.
func (c Codec) InitMainNode(buf []byte, inodeOff int, v uint64) {
	c.StoreOffsetRaw(buf, inodeOff, v)
}

// Possibility atomically reads possibilities[idx] of the CNode at cnodeOff.
func (c Codec) Possibility(buf []byte, cnodeOff int, idx int) uint64 {
	return c.LoadOffset(buf, c.possibilityOffset(cnodeOff, idx))
}

// SetPossibilityRaw writes possibilities[idx] without synchronization. Used
// only while populating a freshly reserved CNode that is not yet reachable
// from any other thread/process (the CAS that publishes it is the
// synchronization point).
func (c Codec) SetPossibilityRaw(buf []byte, cnodeOff int, idx int, v uint64) {
	c.StoreOffsetRaw(buf, c.possibilityOffset(cnodeOff, idx), v)
}

// IsEndOfString reads the isEndOfString byte of the CNode at cnodeOff.
func (c Codec) IsEndOfString(buf []byte, cnodeOff int) bool {
	return buf[cnodeOff+Alphabet*int(c.W)] != 0
}

// SetIsEndOfStringRaw writes the isEndOfString byte without synchronization.
func (c Codec) SetIsEndOfStringRaw(buf []byte, cnodeOff int, v bool) {
	b := byte(0)
	if v {
		b = 1
	}
	buf[cnodeOff+Alphabet*int(c.W)] = b
}

// FlagsByteOffset returns the offset of the flags byte within a CNode at
// cnodeOff.
func (c Codec) FlagsByteOffset(cnodeOff int) int {
	return cnodeOff + Alphabet*int(c.W) + 1
}

// Flags reads the flags byte of the CNode at cnodeOff.
func (c Codec) Flags(buf []byte, cnodeOff int) byte {
	return buf[c.FlagsByteOffset(cnodeOff)]
}

// SetFlagsRaw writes the flags byte without synchronization.
func (c Codec) SetFlagsRaw(buf []byte, cnodeOff int, v byte) {
	buf[c.FlagsByteOffset(cnodeOff)] = v
}

// CopyCNode copies the CNodeSize() bytes of the CNode at srcOff in src into
// dstOff in dst. The destination must not yet be reachable from any other
// thread/process.
func (c Codec) CopyCNode(dst []byte, dstOff int, src []byte, srcOff int) {
	n := c.CNodeSize()
	copy(dst[dstOff:dstOff+n], src[srcOff:srcOff+n])
}
