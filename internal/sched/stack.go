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

package sched

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mapStack maps size usable stack bytes preceded by one PROT_NONE guard
// page. A task that runs off the bottom of its stack faults on the guard,
// which the runtime treats as fatal.
func mapStack(size int) (lo, hi uintptr, mem []byte) {
	page := unix.Getpagesize()

	mem, err := unix.Mmap(-1, 0, size+page,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cascade: task stack mmap failed: %v\n", err)
		os.Exit(1)
	}

	if err := unix.Mprotect(mem[:page], unix.PROT_NONE); err != nil {
		fmt.Fprintf(os.Stderr, "cascade: guard page mprotect failed: %v\n", err)
		os.Exit(1)
	}

	lo = uintptr(unsafe.Pointer(&mem[page]))
	hi = lo + uintptr(size)
	return lo, hi, mem
}

// unmapStack releases a task's stack mapping, guard page included.
func unmapStack(mem []byte) {
	if mem == nil {
		return
	}
	if err := unix.Munmap(mem); err != nil {
		fmt.Fprintf(os.Stderr, "cascade: task stack munmap failed: %v\n", err)
		os.Exit(1)
	}
}
