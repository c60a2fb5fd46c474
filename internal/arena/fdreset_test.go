package arena

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestGuardMatchesAttachedFDs(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(smallConfig())
	if err := s.Attach(filepath.Join(dir, "status"), filepath.Join(dir, "data")); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if !s.Guard(s.StatusFD()) || !s.Guard(s.DataFD()) {
		t.Fatalf("Guard should report true for both attached fds")
	}
	if s.Guard(999999) {
		t.Fatalf("Guard should report false for an unrelated fd")
	}
}

func TestResetFDReopensAfterExternalClose(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(smallConfig())
	if err := s.Attach(filepath.Join(dir, "status"), filepath.Join(dir, "data")); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	before := s.Current()
	off, err := s.Reserve(before.Codec.CNodeSize())
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// Simulate something external closing our fd out from under us.
	unix.Close(before.DataFD)

	if err := s.ResetFD(); err != nil {
		t.Fatalf("ResetFD: %v", err)
	}

	after := s.Current()
	if after.DataFD == before.DataFD {
		t.Fatalf("ResetFD did not install a new data fd")
	}

	// State recorded before the close must still be visible through the
	// reopened files: ResetFD only replaces fds, never status fields.
	if got := after.Status.LoadWriteFromOffset(after.StatusBase); got != before.Status.LoadWriteFromOffset(before.StatusBase) {
		t.Fatalf("writeFromOffset changed across ResetFD")
	}
	_ = off
}

func TestResetFDNoopWhenUnattached(t *testing.T) {
	s := NewStore(smallConfig())
	if err := s.ResetFD(); err != nil {
		t.Fatalf("ResetFD on unattached Store should be a no-op, got %v", err)
	}
}
