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

// A small command-line tool for attaching to (and optionally populating)
// a pathtrie arena, used for manual testing and as a runnable example of
// the public API.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/jacobsa/timeutil"

	"github.com/sandboxfs/pathtrie"
)

var fStatusFile = flag.String("status_file", "", "Path to the status file.")
var fDataFile = flag.String("data_file", "", "Path to the data file.")
var fInsert = flag.String("insert", "", "If set, insert this path with the flags set by --allow, --deny and --prefix.")
var fSearch = flag.String("search", "", "If set, search for this path and print the result.")
var fPrefix = flag.Bool("prefix", false, "Set FlagPrefix on the path given to --insert.")
var fAllow = flag.Bool("allow", false, "Set FlagAllow on the path given to --insert.")
var fDeny = flag.Bool("deny", false, "Set FlagDeny on the path given to --insert.")
var fInteractive = flag.Bool("interactive", false, "Read insert/search commands from stdin.")

func flagsFromCommandLine() pathtrie.Flags {
	var f pathtrie.Flags
	if *fAllow {
		f |= pathtrie.FlagAllow
	}
	if *fDeny {
		f |= pathtrie.FlagDeny
	}
	if *fPrefix {
		f |= pathtrie.FlagPrefix
	}
	return f
}

func mustAttach() *pathtrie.Trie {
	if *fStatusFile == "" || *fDataFile == "" {
		log.Fatalf("You must set --status_file and --data_file.")
	}

	t := pathtrie.New(pathtrie.DefaultConfig())
	if err := t.Attach(*fStatusFile, *fDataFile); err != nil {
		log.Fatalf("Attach: %v", err)
	}
	return t
}

// runInteractive reads lines of the form "insert PATH [prefix|allow|deny]"
// or "search PATH" from stdin, printing the clock time of each result -
// mainly useful for exercising growth and fd-reset behavior by hand
// across multiple processes pointed at the same files.
func runInteractive(t *pathtrie.Trie, clock timeutil.Clock) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		now := clock.Now().Format("15:04:05.000000")

		switch fields[0] {
		case "insert":
			var f pathtrie.Flags
			for _, word := range fields[2:] {
				switch word {
				case "prefix":
					f |= pathtrie.FlagPrefix
				case "allow":
					f |= pathtrie.FlagAllow
				case "deny":
					f |= pathtrie.FlagDeny
				}
			}
			if err := t.Insert(fields[1], f); err != nil {
				fmt.Printf("[%s] insert %q: %v\n", now, fields[1], err)
				continue
			}
			fmt.Printf("[%s] insert %q: ok (%s)\n", now, fields[1], f)

		case "search":
			found, f, err := t.Search(fields[1])
			if err != nil {
				fmt.Printf("[%s] search %q: %v\n", now, fields[1], err)
				continue
			}
			fmt.Printf("[%s] search %q: found=%v flags=%s\n", now, fields[1], found, f)

		default:
			fmt.Printf("unrecognized command %q\n", fields[0])
		}
	}
}

func main() {
	flag.Parse()

	clock := timeutil.RealClock()
	t := mustAttach()

	if *fInsert != "" {
		if err := t.Insert(*fInsert, flagsFromCommandLine()); err != nil {
			log.Fatalf("Insert: %v", err)
		}
		fmt.Printf("inserted %q\n", *fInsert)
	}

	if *fSearch != "" {
		found, f, err := t.Search(*fSearch)
		if err != nil {
			log.Fatalf("Search: %v", err)
		}
		fmt.Printf("search %q: found=%v flags=%s\n", *fSearch, found, f)
	}

	if *fInteractive {
		runInteractive(t, clock)
	}

	used, err := t.UsedSharedMemorySize()
	if err != nil {
		log.Fatalf("UsedSharedMemorySize: %v", err)
	}
	fmt.Printf("arena bytes in use: %d\n", used)
}
