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

package pathtrie

import "github.com/sandboxfs/pathtrie/internal/debug"

// logCASRetry traces a lost compare-and-swap in one of this package's
// lock-free retry loops (step, markTerminal). The underlying logger and
// its -pathtrie.debug flag live in internal/debug so that internal/arena's
// growth and fd-reset paths can report through the same flag without this
// package importing its own importer.
func logCASRetry(loop string, inodeOff uint64) {
	debug.CASRetry(loop, inodeOff)
}
