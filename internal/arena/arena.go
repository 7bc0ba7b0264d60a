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

// Package arena implements the runtime's heap: a per-arena, size-classed
// free-list allocator in the ptmalloc mould.
//
// An arena bundles seven fastbins, thirty-two smallbins, sixty-four
// largebins, one unsortedbin and a top chunk, all carved out of mmap'd heap
// regions the arena grows on demand. Allocations at or above MmapThreshold
// bypass the bins entirely and get their own mapping.
//
// Arenas hand out raw memory that Go's own collector never sees; the
// tracing collector in internal/gc is the only thing that ever frees a
// payload behind the program's back. Every region and oversized mapping is
// recorded in per-arena tables so the collector can classify candidate
// pointers.
package arena

import (
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/cascadelang/cascade/internal/debug"
	"github.com/cascadelang/cascade/internal/xunsafe"
)

// MmapThreshold is the payload size at which allocations stop going through
// the bins and get a private mapping instead.
const MmapThreshold = 128 << 10

// Heap growth schedule: regions double from heapBaseSize until
// heapExpoLimit, then grow by heapLinearStep per region, never exceeding
// the arena's configured ceiling.
const (
	heapBaseSize   = 128 << 10
	heapExpoLimit  = 64 << 20
	heapLinearStep = 64 << 20

	// heapBoundarySize covers the sentinel chunk closing each region.
	heapBoundarySize = 4 * unsafe.Sizeof(uintptr(0))
)

// Region is one contiguous mapped range owned by an arena. Chunks inside a
// region self-describe their length, so [Start, End) can be walked from the
// first header.
type Region struct {
	Start, End xunsafe.Addr[byte]
}

// Contains reports whether a lies inside the region.
func (r Region) Contains(a xunsafe.Addr[byte]) bool {
	return a >= r.Start && a < r.End
}

// Arena is a self-contained heap with its own lock, bins and mapped
// regions.
type Arena struct {
	_ xunsafe.NoCopy

	mu sync.Mutex

	// Non-sentinel singly-linked LIFO stacks.
	fastbins [FastbinCount]*chunk

	// Wilderness: carved linearly, nil when exhausted.
	top *chunk

	unsorted  chunk
	smallbins [SmallbinCount]chunk
	largebins [LargebinCount]chunk

	smallbinMap   uint32
	largebinMapLo uint32
	largebinMapHi uint32

	expoIters   int
	linearIters int

	// Newest region first: the hottest region is the cheapest to classify.
	regions []Region

	// Oversized allocations that got their own mapping, for the collector's
	// pointer classification.
	mmapped []Region

	limit uint64 // growth ceiling in bytes

	stats Stats
}

// Stats are cumulative per-arena counters.
type Stats struct {
	AllocBytes   uint64
	ReleaseCalls uint64
	Regions      int
	MmapChunks   int
}

// New creates an arena with empty bins and one initial heap region.
//
// limit caps the arena's total region growth; zero means the default
// 10 GiB schedule cap.
func New(limit uint64) *Arena {
	a := new(Arena)
	if limit == 0 {
		limit = 10 << 30
	}
	a.limit = limit

	// Free chunks link back to the bin sentinels embedded in this struct
	// through memory the Go collector never traces; the arena must never
	// end up in a stack frame.
	xunsafe.Escape(a)

	initSentinel(&a.unsorted)
	for i := range a.smallbins {
		initSentinel(&a.smallbins[i])
	}
	for i := range a.largebins {
		initSentinel(&a.largebins[i])
	}

	a.grow()
	return a
}

// Allocate returns a 16-byte-aligned payload of at least size bytes, or nil
// for a zero-size request. The caller may write size bytes.
func (a *Arena) Allocate(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	a.mu.Lock()
	p := a.allocate(size)
	a.mu.Unlock()
	return p
}

// Release frees a previously allocated payload. Releasing nil, or a payload
// whose header says it is not currently in use, is a no-op.
func (a *Arena) Release(p unsafe.Pointer) {
	if p == nil {
		return
	}

	a.mu.Lock()
	a.release(p)
	a.mu.Unlock()
}

// Snapshot returns a copy of the arena's counters.
func (a *Arena) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Regions = len(a.regions)
	s.MmapChunks = len(a.mmapped)
	return s
}

func (a *Arena) allocate(requested uintptr) unsafe.Pointer {
	size := alignUp(requested)
	if size < MinPayload {
		size = MinPayload
	}

	var victim *chunk

	switch {
	case size >= MmapThreshold:
		victim = a.mmapChunk(size)
	case size <= FastbinMax:
		victim = a.popFastbin(size)
	}

	if victim == nil && size < SmallbinMax {
		victim = a.popSmallbin(size)
	}
	if victim == nil {
		victim = a.searchUnsorted(size)
	}
	if victim == nil {
		victim = a.searchLargebins(size)
	}
	if victim == nil {
		victim = a.carveTop(size)
	}
	if victim == nil {
		return nil
	}

	a.stats.AllocBytes += uint64(victim.payloadSize())
	a.log("alloc", "%v (%d->%d)", victim.addr(), requested, victim.payloadSize())
	return victim.payload()
}

func (a *Arena) release(p unsafe.Pointer) {
	c := payloadChunk(p)
	size := c.payloadSize()

	a.stats.ReleaseCalls++

	if size == 0 || !c.inUse() {
		// Double free or wild pointer: deliberately a no-op.
		return
	}

	if c.mmapped() {
		a.munmapChunk(c)
		return
	}

	if size <= FastbinMax {
		a.insertFastbin(c)
		return
	}

	if merged := a.coalesce(c); merged != nil {
		a.insertUnsorted(merged)
		a.log("free", "%v (%d)", merged.addr(), merged.payloadSize())
	}
}

// coalesce merges c with free physical neighbours. Returns nil when the
// merged chunk was absorbed into the top chunk.
func (a *Arena) coalesce(c *chunk) *chunk {
	c = a.mergeBackward(c)
	return a.mergeForward(c)
}

func (a *Arena) mergeBackward(c *chunk) *chunk {
	if c.prevInUse() {
		return c
	}

	prev := c.prev()
	if prev.payloadSize() <= MinPayload {
		// Neighbours with the minimum payload are left unmerged. Fastbin
		// chunks never get here: freeing one leaves this chunk's
		// PREV_IN_USE set.
		return c
	}

	unlinkChunk(prev)

	merged := prev.payloadSize() + uintptr(HeaderSize) + c.payloadSize()
	prev.setSize(merged, prev.sizeFlags())

	next := prev.next()
	next.setPrevSize(merged, next.prevSizeBits())
	return prev
}

func (a *Arena) mergeForward(c *chunk) *chunk {
	next := c.next()

	// The size guard also keeps fastbin chunks out of merges: their in-use
	// bit is clear but they must stay where they are.
	if next.inUse() || next.payloadSize() <= FastbinMax {
		return c
	}

	if next == a.top {
		merged := c.payloadSize() + uintptr(HeaderSize) + next.payloadSize()
		c.setSize(merged, c.sizeFlags())
		c.next().setPrevSize(merged, 0)
		a.top = c
		return nil
	}

	unlinkChunk(next)

	merged := c.payloadSize() + uintptr(HeaderSize) + next.payloadSize()
	c.setSize(merged, c.sizeFlags())

	after := c.next()
	after.setPrevSize(merged, after.prevSizeBits())
	return c
}

// carveTop splits the request off the top chunk, promoting the exhausted
// top into the unsortedbin and growing the heap as needed.
func (a *Arena) carveTop(size uintptr) *chunk {
	for range 2 {
		if a.top == nil {
			a.grow()
		}

		curr := a.top
		if curr.payloadSize() >= size {
			remainder := curr.payloadSize() - size

			if remainder >= MinPayload+uintptr(HeaderSize) {
				tailPayload := remainder - uintptr(HeaderSize)
				tail := xunsafe.ByteAdd[chunk](curr, HeaderSize+int(size))
				tail.setSize(tailPayload, flagPrevInUse)
				tail.next().setPrevSize(tailPayload, 0)

				curr.setSize(size, curr.sizeFlags())
				curr.setInUse()
				a.top = tail
			} else {
				curr.setInUse()
				curr.next().setPrevInUse()
				a.top = nil
			}
			return curr
		}

		// Too small: retire the current top and grow a fresh region.
		a.insertUnsorted(curr)
		a.top = nil
	}
	return nil
}

// grow maps the next region on the growth schedule and makes it the new top
// chunk, closed off by a sentinel boundary chunk.
func (a *Arena) grow() {
	var next uintptr
	if heapBaseSize<<a.expoIters <= heapExpoLimit {
		next = heapBaseSize << a.expoIters
		a.expoIters++
	} else {
		next = heapExpoLimit + heapLinearStep*uintptr(a.linearIters)
		a.linearIters++
	}

	total := next
	for _, r := range a.regions {
		total += uintptr(r.End.ByteSub(r.Start))
	}
	if uint64(total) > a.limit {
		fatalf("cascade: arena heap limit exceeded (%d > %d bytes)", total, a.limit)
	}

	a.log("grow", "%d bytes (region %d)", next, len(a.regions)+1)

	base := mmapRaw(next + uintptr(HeaderSize) + uintptr(heapBoundarySize))
	block := chunkAt(base)
	block.setSize(next, flagPrevInUse)
	block.fd, block.bk = nil, nil
	a.top = block

	boundary := xunsafe.ByteAdd[chunk](block, HeaderSize+int(next))
	boundary.setSize(0, flagCurrInUse|flagPrevInUse)
	boundary.fd, boundary.bk = nil, nil

	a.regions = append([]Region{{
		Start: base,
		End:   base.ByteAdd(int(next) + HeaderSize),
	}}, a.regions...)
}

// mmapChunk services an oversized request with a dedicated mapping.
func (a *Arena) mmapChunk(size uintptr) *chunk {
	total := alignUp(size + uintptr(HeaderSize))
	base := mmapRaw(total)

	c := chunkAt(base)
	c.setSize(size, flagMmapped|flagCurrInUse|flagPrevInUse)
	c.fd, c.bk = nil, nil

	a.mmapped = append(a.mmapped, Region{
		Start: base,
		End:   base.ByteAdd(HeaderSize + int(size)),
	})
	return c
}

func (a *Arena) munmapChunk(c *chunk) {
	addr := c.addr()
	for i, r := range a.mmapped {
		if r.Start == addr {
			a.mmapped = append(a.mmapped[:i], a.mmapped[i+1:]...)
			break
		}
	}
	munmapRaw(addr, alignUp(c.payloadSize()+uintptr(HeaderSize)))
}

func (a *Arena) log(op, format string, args ...any) {
	debug.Log([]any{"%p", a}, op, format, args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
