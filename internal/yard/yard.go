// Package yard implements the dump/recycle yard: a fixed-size table that
// lets an abandoned CNode (one replaced by a copy-on-write update) be
// reused by a later allocation instead of leaking arena space forever.
//
// Every slot carries two independent bits, one in a dumping bitmap and
// one in a recycling bitmap, each CASed on its own. A slot goes through
// dumped -> recycled -> free again; the two bitmaps let a dumper and a
// recycler race over the same slot table without a lock.
package yard

import (
	"github.com/sandboxfs/pathtrie/internal/arena"
)

// wordBit splits a slot index into its bitmap word and bit.
func wordBit(i int) (word int, bit uint) {
	return i / 64, uint(i % 64)
}

func bitSet(word uint64, bit uint) bool {
	return word&(1<<bit) != 0
}

// Dump offers wastedOffset (a CNode abandoned by a copy-on-write
// replacement under parentINode) to the yard. It returns false if every
// slot is currently occupied, or if wastedOffset was already tagged by a
// previous Dump (double-dump, which would lose the original dumper's
// parent identity) — in both cases the caller simply leaks the offset,
// same as dumpWastedMemory falling through when the yard is full or the
// offset is already odd.
//
// wastedOffset is tagged odd (+1) before being stored; this is what lets
// Dump recognize an offset that has already been dumped once. Recycle
// strips the tag before returning an offset.
//
// The dumping bitmap bit claims the slot; the recycling bitmap bit
// publishes it. A CAS on the dumping bit alone is not enough signal for
// a concurrent Recycle to read the slot, since the offset and parent
// fields are written after that CAS — Recycle only ever looks at the
// recycling bitmap, so it never observes a claimed-but-not-yet-written
// slot.
func Dump(statusBase []byte, sl arena.StatusLayout, wastedOffset, parentINode uint64) bool {
	if wastedOffset&1 != 0 {
		return false
	}
	tagged := wastedOffset + 1

	n := sl.DumpYardSize
	for i := 0; i < n; i++ {
		word, bit := wordBit(i)

		old := sl.DumpingBitmapWord(statusBase, word)
		if bitSet(old, bit) {
			continue
		}
		next := old | (1 << bit)
		if !sl.CASDumpingBitmapWord(statusBase, word, old, next) {
			// Lost the race for this slot; try the next one rather
			// than retrying the same slot, matching the original's
			// linear scan-and-CAS-once-per-slot behavior.
			continue
		}

		sl.SetWastedOffsetRaw(statusBase, i, tagged)
		sl.SetParentINodeRaw(statusBase, i, parentINode)

		// Publish: only once this CAS succeeds can a concurrent Recycle
		// see the slot, by which point the fields above are already
		// written.
		for {
			rold := sl.RecyclingBitmapWord(statusBase, word)
			if sl.CASRecyclingBitmapWord(statusBase, word, rold, rold|(1<<bit)) {
				break
			}
		}
		return true
	}
	return false
}

// Recycle looks for a dumped slot this caller is allowed to reuse and, if
// found, clears it and returns the recovered offset (untagged, i.e. with
// the +1 removed) and true.
//
// requestingINode is the INode the caller is about to copy-on-write
// replace. A slot dumped by that same INode (self) fails the sibling
// test: the offset is re-dumped (into whatever slot is free, not
// necessarily this one) and Recycle reports nothing found, matching
// §4.4's rejection of same-parent recycles — reusing memory a sibling of
// the same structural update just abandoned is the ABA pattern that
// rejection exists to avoid, since a concurrent reader may still be
// mid-guarded-access against the old mainNode value pointing at it.
func Recycle(statusBase []byte, sl arena.StatusLayout, requestingINode uint64) (uint64, bool) {
	n := sl.DumpYardSize
	for i := 0; i < n; i++ {
		word, bit := wordBit(i)

		recycling := sl.RecyclingBitmapWord(statusBase, word)
		if !bitSet(recycling, bit) {
			continue
		}
		next := recycling &^ (1 << bit)
		if !sl.CASRecyclingBitmapWord(statusBase, word, recycling, next) {
			// Lost the race to claim this slot; try the next one.
			continue
		}

		offset := sl.WastedOffset(statusBase, i)
		dumperParent := sl.ParentINode(statusBase, i)

		sl.SetWastedOffsetRaw(statusBase, i, 0)
		sl.SetParentINodeRaw(statusBase, i, 0)
		clearBit(statusBase, sl.DumpingBitmapWord, sl.CASDumpingBitmapWord, word, bit)

		if dumperParent == requestingINode {
			Dump(statusBase, sl, offset-1, dumperParent)
			return 0, false
		}

		return offset - 1, true
	}
	return 0, false
}

func clearBit(
	buf []byte,
	load func(buf []byte, word int) uint64,
	cas func(buf []byte, word int, old, new uint64) bool,
	word int,
	bit uint,
) {
	for {
		old := load(buf, word)
		if cas(buf, word, old, old&^(1<<bit)) {
			return
		}
	}
}
