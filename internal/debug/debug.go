// Package debug holds the single flag-gated logger shared by the pathtrie
// package and its internal/arena helper, so that one -pathtrie.debug flag
// can trace activity on both sides of that package boundary: trie.go's
// CAS-retry loops and internal/arena's growth and fd-reset paths. It lives
// here, rather than in the root package (as the teacher's debug.go does
// for its single flat package), specifically so internal/arena can log
// without importing its own importer.
package debug

import (
	"flag"
	"io"
	"log"
	"os"
	"sync"
)

var fEnableDebug = flag.Bool(
	"pathtrie.debug",
	false,
	"Write pathtrie debugging messages (CAS retries, growth, fd reset) to stderr.")

var gLogger *log.Logger
var gLoggerOnce sync.Once

func initLogger() {
	if !flag.Parsed() {
		panic("debug: initLogger called before flags available.")
	}

	var writer io.Writer = io.Discard
	if *fEnableDebug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	gLogger = log.New(writer, "pathtrie: ", flags)
}

func logger() *log.Logger {
	gLoggerOnce.Do(initLogger)
	return gLogger
}

// CASRetry logs a lost compare-and-swap inside one of trie.go's lock-free
// retry loops (step's edge-creation CAS, markTerminal's terminal-update
// CAS), naming the inode offset that lost the race so a trace can be
// correlated with the path that produced it.
func CASRetry(loop string, inodeOff uint64) {
	logger().Printf("%s: lost CAS on inode %d, retrying", loop, inodeOff)
}

// Grow logs a completed data-mapping expansion: the superseded mapping
// size and the new one a subsequent EnsureReachable call will see.
func Grow(oldSize, newSize uint64) {
	logger().Printf("grew data mapping from %d to %d bytes", oldSize, newSize)
}

// FDReset logs a completed ResetFD, recording both the old and new
// descriptor numbers so a trace shows exactly which fds a caller's Guard
// check should stop matching.
func FDReset(oldStatusFD, newStatusFD, oldDataFD, newDataFD int) {
	logger().Printf("reset fds: status %d -> %d, data %d -> %d", oldStatusFD, newStatusFD, oldDataFD, newDataFD)
}
