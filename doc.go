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

// Package pathtrie implements a lock-free, multi-process, persistent
// concurrent trie for path-prefix classification.
//
// The trie stores filesystem-path strings, each annotated with a small
// byte of boolean characteristics (Flags), and answers membership queries
// over a shared-memory region that can be mapped simultaneously by many
// processes. It is meant to sit behind a syscall-interposition layer (not
// provided by this package): every intercepted filesystem syscall in every
// traced process consults it to decide whether a path is allowed, denied,
// a sandbox violation, or unknown, and new decisions are inserted in-place
// from any of those processes without locks.
//
// The primary elements of interest are:
//
//  *  Trie, which holds one process's view of the shared mapping. Create
//     one with New and call Attach before any Insert or Search.
//
//  *  Flags, the per-path characteristic bits (FlagAllow, FlagDeny,
//     FlagSandboxViolation, FlagSandboxUnknown, FlagPrefix).
//
//  *  Config, the tunable parameters governing initial file size, growth
//     increment, dump-yard size, and offset width. The alphabet bounds
//     are fixed constants, not part of Config.
//
// Two files back a Trie: a small fixed-size status file holding the
// mutable global state (arena bump pointer, mapping size, dump-yard
// tables) and a variable-size data file holding the trie nodes themselves,
// addressed by byte offset from the mapping base. Both are opened,
// created, and grown without holding any advisory lock; concurrent
// attachers and growers race via compare-and-swap and the losers clean up
// after themselves. See the internal/arena package for the full lifecycle.
package pathtrie
