package pathtrie

import "strings"

// Flags is one byte of per-path boolean characteristics, set on insert and
// returned by Search. Bits are OR-able.
type Flags uint8

const (
	// FlagAllow marks a path that should be allowed access.
	FlagAllow Flags = 1 << 0

	// FlagDeny marks a path that should be denied access.
	FlagDeny Flags = 1 << 1

	// FlagSandboxViolation marks a path belonging to a foreign port, for
	// logging purposes by the caller.
	FlagSandboxViolation Flags = 1 << 2

	// FlagSandboxUnknown marks a path not known to the caller's package
	// database, for logging purposes by the caller.
	FlagSandboxUnknown Flags = 1 << 3

	// FlagPrefix marks a path as a prefix: inserting "/bin" with FlagPrefix
	// makes a later Search for "/bin/ls" succeed and return "/bin"'s flags.
	// It is specifically a path-component prefix, not a general string
	// prefix: "/binabc" does not match.
	FlagPrefix Flags = 1 << 4

	flagsReservedMask = ^(FlagAllow | FlagDeny | FlagSandboxViolation | FlagSandboxUnknown | FlagPrefix)
)

// Has reports whether all bits of want are set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

// String renders the set bits for debugging.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}

	var names []string
	if f.Has(FlagAllow) {
		names = append(names, "ALLOW")
	}
	if f.Has(FlagDeny) {
		names = append(names, "DENY")
	}
	if f.Has(FlagSandboxViolation) {
		names = append(names, "SANDBOX_VIOLATION")
	}
	if f.Has(FlagSandboxUnknown) {
		names = append(names, "SANDBOX_UNKNOWN")
	}
	if f.Has(FlagPrefix) {
		names = append(names, "PREFIX")
	}
	if f&flagsReservedMask != 0 {
		names = append(names, "RESERVED")
	}

	return strings.Join(names, "|")
}
