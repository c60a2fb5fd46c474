package arena

import (
	"path/filepath"
	"testing"
)

func TestReserveAdvancesBumpPointer(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(smallConfig())
	if err := s.Attach(filepath.Join(dir, "status"), filepath.Join(dir, "data")); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	m := s.Current()
	before := m.Status.LoadWriteFromOffset(m.StatusBase)

	off, err := s.Reserve(m.Codec.CNodeSize())
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if off != before {
		t.Fatalf("Reserve returned %d, want %d", off, before)
	}

	after := m.Status.LoadWriteFromOffset(m.StatusBase)
	wantAfter := before + uint64(m.Codec.CNodeSize()) + s.cfg.padding()
	if after != wantAfter {
		t.Fatalf("writeFromOffset after Reserve = %d, want %d", after, wantAfter)
	}
}

func TestEnsureReachableGrowsMapping(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{InitialFileSize: 1024, ExpandingSize: 1024, DumpYardSize: 8}
	s := NewStore(cfg)
	if err := s.Attach(filepath.Join(dir, "status"), filepath.Join(dir, "data")); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	before := s.Current()
	if before.DataMappingSize != 1024 {
		t.Fatalf("initial DataMappingSize = %d, want 1024", before.DataMappingSize)
	}

	m, err := s.EnsureReachable(1100, 16)
	if err != nil {
		t.Fatalf("EnsureReachable: %v", err)
	}
	if m.DataMappingSize < 1116 {
		t.Fatalf("DataMappingSize after grow = %d, want >= 1116", m.DataMappingSize)
	}
	if len(m.DataBase) != int(m.DataMappingSize) {
		t.Fatalf("len(DataBase) = %d, want %d", len(m.DataBase), m.DataMappingSize)
	}

	// The superseded mapping must stay valid: readers that grabbed it
	// before the grow are allowed to keep using it.
	if len(before.DataBase) != 1024 {
		t.Fatalf("superseded mapping was mutated or unmapped")
	}
}

func TestEnsureReachableNoopWhenAlreadyCovered(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(smallConfig())
	if err := s.Attach(filepath.Join(dir, "status"), filepath.Join(dir, "data")); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	before := s.Current()
	m, err := s.EnsureReachable(0, 8)
	if err != nil {
		t.Fatalf("EnsureReachable: %v", err)
	}
	if m != before {
		t.Fatalf("EnsureReachable grew when the mapping already covered the range")
	}
}
