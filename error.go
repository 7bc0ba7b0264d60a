// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cascade

import (
	"fmt"
	"os"

	"github.com/cascadelang/cascade/internal/debug"
)

// RuntimeError is the single fatal path: print the message and a stack to
// stderr, then exit 1. There is no unwinding and no recovery; programmer
// errors and resource exhaustion both end here.
//
// Guard-page faults take the sibling path in the scheduler and exit
// 128+SIGSEGV; dynamic stack growth is deliberately not a thing.
func RuntimeError(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	fmt.Fprintln(os.Stderr, "===== STACK TRACE =====")
	fmt.Fprint(os.Stderr, debug.Stack(3))
	os.Exit(1)
}
