package arena

import "github.com/sandboxfs/pathtrie/internal/layout"

// statusWords is the codec for every field of the status record: all of
// them are machine words (size_t in the C source) regardless of whether
// the data arena itself uses compact (32-bit) or large-memory (64-bit)
// offsets, so this is always width 8.
var statusWords = layout.Codec{W: layout.Width8}

const (
	writeFromOffsetPos     = 0
	sharedMemoryFileSizePos = 8
	statusHeaderSize       = 16
)

// StatusLayout computes byte offsets within the status file for a given
// dump-yard size. It holds no buffer; callers pass the status file's
// mapped []byte on every call.
type StatusLayout struct {
	DumpYardSize int
}

// BitmapWords is the number of 64-bit words needed to hold one
// DumpYardSize-bit bitmap.
func (s StatusLayout) BitmapWords() int {
	return (s.DumpYardSize + 63) / 64
}

func (s StatusLayout) wastedOffsetsOff() int { return statusHeaderSize }
func (s StatusLayout) parentINodesOff() int  { return s.wastedOffsetsOff() + s.DumpYardSize*8 }
func (s StatusLayout) dumpingBitmapOff() int { return s.parentINodesOff() + s.DumpYardSize*8 }
func (s StatusLayout) recyclingBitmapOff() int {
	return s.dumpingBitmapOff() + s.BitmapWords()*8
}

// Size is the fixed size in bytes of the whole status record.
func (s StatusLayout) Size() int {
	return s.recyclingBitmapOff() + s.BitmapWords()*8
}

// LoadWriteFromOffset atomically reads the arena bump pointer.
func (s StatusLayout) LoadWriteFromOffset(buf []byte) uint64 {
	return statusWords.LoadOffset(buf, writeFromOffsetPos)
}

// CASWriteFromOffset CASes the arena bump pointer; this is the
// linearization point for Reserve.
func (s StatusLayout) CASWriteFromOffset(buf []byte, old, new uint64) bool {
	return statusWords.CASOffset(buf, writeFromOffsetPos, old, new)
}

// LoadSharedMemoryFileSize atomically reads the largest known data-file
// size.
func (s StatusLayout) LoadSharedMemoryFileSize(buf []byte) uint64 {
	return statusWords.LoadOffset(buf, sharedMemoryFileSizePos)
}

// CASSharedMemoryFileSize CASes the largest known data-file size.
func (s StatusLayout) CASSharedMemoryFileSize(buf []byte, old, new uint64) bool {
	return statusWords.CASOffset(buf, sharedMemoryFileSizePos, old, new)
}

// WastedOffset atomically reads wastedMemoryDumpYard[i].
func (s StatusLayout) WastedOffset(buf []byte, i int) uint64 {
	return statusWords.LoadOffset(buf, s.wastedOffsetsOff()+i*8)
}

// SetWastedOffsetRaw writes wastedMemoryDumpYard[i] without
// synchronization; the surrounding bitmap CAS in internal/yard is what
// makes the slot safe to touch.
func (s StatusLayout) SetWastedOffsetRaw(buf []byte, i int, v uint64) {
	statusWords.StoreOffsetRaw(buf, s.wastedOffsetsOff()+i*8, v)
}

// ParentINode atomically reads parentINodesOfDumper[i].
func (s StatusLayout) ParentINode(buf []byte, i int) uint64 {
	return statusWords.LoadOffset(buf, s.parentINodesOff()+i*8)
}

// SetParentINodeRaw writes parentINodesOfDumper[i] without
// synchronization.
func (s StatusLayout) SetParentINodeRaw(buf []byte, i int, v uint64) {
	statusWords.StoreOffsetRaw(buf, s.parentINodesOff()+i*8, v)
}

// DumpingBitmapWord atomically reads word i of bitmapForDumping.
func (s StatusLayout) DumpingBitmapWord(buf []byte, word int) uint64 {
	return statusWords.LoadOffset(buf, s.dumpingBitmapOff()+word*8)
}

// CASDumpingBitmapWord CASes word i of bitmapForDumping.
func (s StatusLayout) CASDumpingBitmapWord(buf []byte, word int, old, new uint64) bool {
	return statusWords.CASOffset(buf, s.dumpingBitmapOff()+word*8, old, new)
}

// RecyclingBitmapWord atomically reads word i of bitmapForRecycling.
func (s StatusLayout) RecyclingBitmapWord(buf []byte, word int) uint64 {
	return statusWords.LoadOffset(buf, s.recyclingBitmapOff()+word*8)
}

// CASRecyclingBitmapWord CASes word i of bitmapForRecycling.
func (s StatusLayout) CASRecyclingBitmapWord(buf []byte, word int, old, new uint64) bool {
	return statusWords.CASOffset(buf, s.recyclingBitmapOff()+word*8, old, new)
}
