package yard

import (
	"testing"

	"github.com/sandboxfs/pathtrie/internal/arena"
)

func newStatusBuf(t *testing.T, n int) ([]byte, arena.StatusLayout) {
	t.Helper()
	sl := arena.StatusLayout{DumpYardSize: n}
	return make([]byte, sl.Size()), sl
}

func TestDumpThenRecycle(t *testing.T) {
	buf, sl := newStatusBuf(t, 64)

	if !Dump(buf, sl, 4096, 100) {
		t.Fatalf("Dump should succeed on an empty yard")
	}

	offset, ok := Recycle(buf, sl, 200)
	if !ok {
		t.Fatalf("Recycle should find the dumped slot")
	}
	if offset != 4096 {
		t.Fatalf("Recycle offset = %d, want 4096", offset)
	}

	if _, ok := Recycle(buf, sl, 200); ok {
		t.Fatalf("Recycle should not find anything a second time")
	}
}

func TestRecycleRejectsOwnDumper(t *testing.T) {
	buf, sl := newStatusBuf(t, 64)

	Dump(buf, sl, 4096, 100)

	if _, ok := Recycle(buf, sl, 100); ok {
		t.Fatalf("a parent INode should not recycle memory it just dumped itself")
	}

	// A different parent can still take it.
	offset, ok := Recycle(buf, sl, 200)
	if !ok || offset != 4096 {
		t.Fatalf("Recycle(200) = (%d, %v), want (4096, true)", offset, ok)
	}
}

func TestDumpYardFull(t *testing.T) {
	buf, sl := newStatusBuf(t, 2)

	if !Dump(buf, sl, 100, 1) {
		t.Fatalf("first dump should succeed")
	}
	if !Dump(buf, sl, 200, 2) {
		t.Fatalf("second dump should succeed")
	}
	if Dump(buf, sl, 300, 3) {
		t.Fatalf("third dump should fail: yard is full")
	}
}

func TestRecycleThenDumpAgain(t *testing.T) {
	buf, sl := newStatusBuf(t, 1)

	Dump(buf, sl, 100, 1)
	offset, ok := Recycle(buf, sl, 2)
	if !ok || offset != 100 {
		t.Fatalf("Recycle = (%d, %v), want (100, true)", offset, ok)
	}

	if !Dump(buf, sl, 500, 3) {
		t.Fatalf("slot should be reusable once fully cleared")
	}
	offset, ok = Recycle(buf, sl, 4)
	if !ok || offset != 500 {
		t.Fatalf("Recycle after re-dump = (%d, %v), want (500, true)", offset, ok)
	}
}
