package arena

import (
	"path/filepath"
	"testing"
)

func smallConfig() Config {
	return Config{
		InitialFileSize: 4096,
		ExpandingSize:   4096,
		DumpYardSize:    8,
	}
}

func TestAttachBootstrapsRootNode(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(smallConfig())

	if err := s.Attach(filepath.Join(dir, "status"), filepath.Join(dir, "data")); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	m := s.Current()
	if m == nil {
		t.Fatalf("Current() = nil after successful Attach")
	}

	if got := m.Status.LoadSharedMemoryFileSize(m.StatusBase); got != 4096 {
		t.Fatalf("sharedMemoryFileSize = %d, want 4096", got)
	}

	wantRoot := uint64(m.Codec.RootSize())
	if got := m.Status.LoadWriteFromOffset(m.StatusBase); got != wantRoot {
		t.Fatalf("writeFromOffset = %d, want %d", got, wantRoot)
	}

	rootCNodeOff := m.Codec.MainNode(m.DataBase, 0)
	if rootCNodeOff != uint64(m.Codec.INodeSize()) {
		t.Fatalf("root mainNode = %d, want %d", rootCNodeOff, m.Codec.INodeSize())
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(smallConfig())
	statusPath := filepath.Join(dir, "status")
	dataPath := filepath.Join(dir, "data")

	if err := s.Attach(statusPath, dataPath); err != nil {
		t.Fatalf("first Attach: %v", err)
	}
	first := s.Current()

	if err := s.Attach(statusPath, dataPath); err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if s.Current() != first {
		t.Fatalf("second Attach replaced the installed Manager")
	}
}

func TestAttachReopensExistingFiles(t *testing.T) {
	dir := t.TempDir()
	statusPath := filepath.Join(dir, "status")
	dataPath := filepath.Join(dir, "data")

	a := NewStore(smallConfig())
	if err := a.Attach(statusPath, dataPath); err != nil {
		t.Fatalf("first Attach: %v", err)
	}

	// Simulate a second process attaching to the same pair of files:
	// a fresh Store, independently opened and mapped.
	b := NewStore(smallConfig())
	if err := b.Attach(statusPath, dataPath); err != nil {
		t.Fatalf("second Attach: %v", err)
	}

	ma, mb := a.Current(), b.Current()
	if ma.Codec.MainNode(ma.DataBase, 0) != mb.Codec.MainNode(mb.DataBase, 0) {
		t.Fatalf("two Stores attached to the same files disagree on root mainNode")
	}
}
