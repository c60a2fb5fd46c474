package pathtrie

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Trie operations. Wrap with fmt.Errorf("...: %w")
// so callers can errors.Is/errors.As instead of relying on a secondary
// errno-style side channel the way the C original does.
var (
	// ErrNotAttached is returned by any operation performed on a Trie before
	// a successful call to Attach. There is no NullManager type; this
	// sentinel covers that case.
	ErrNotAttached = errors.New("pathtrie: not attached")

	// ErrOutOfRangeCharacter is returned by Insert/Search when path
	// contains a byte outside the alphabet range, excluding the silently
	// skipped byte 13.
	ErrOutOfRangeCharacter = errors.New("pathtrie: character outside alphabet range")

	// ErrArenaExhausted is returned by Insert when the arena bump pointer
	// would wrap, or (in compact offset mode) would exceed the 32-bit cap.
	ErrArenaExhausted = errors.New("pathtrie: arena exhausted")
)

// SystemError wraps a failure from open(2), mmap(2), truncate(2), fstat(2)
// or another OS call made during bootstrap, growth, or fd reset.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("pathtrie: %s: %v", e.Op, e.Err)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

func systemErrorf(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SystemError{Op: op, Err: err}
}
