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

package arena

import (
	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/internal/xunsafe"
)

// mmapRaw maps size bytes of zeroed, page-aligned anonymous memory. Mapping
// failure during heap growth is fatal: the runtime has no way to make
// progress without memory.
func mmapRaw(size uintptr) xunsafe.Addr[byte] {
	pg := uintptr(unix.Getpagesize())
	size = (size + pg - 1) &^ (pg - 1)

	mem, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		fatalf("cascade: mmap of %d bytes failed: %v", size, err)
	}
	return xunsafe.AddrOf(&mem[0])
}

// munmapRaw unmaps a range previously produced by mmapRaw.
func munmapRaw(base xunsafe.Addr[byte], size uintptr) {
	pg := uintptr(unix.Getpagesize())
	size = (size + pg - 1) &^ (pg - 1)

	mem := xunsafe.Slice(base, int(size))
	if err := unix.Munmap(mem); err != nil {
		fatalf("cascade: munmap failed: %v", err)
	}
}
