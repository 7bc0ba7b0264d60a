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
	"math/bits"

	"github.com/cascadelang/cascade/internal/xunsafe"
)

// Bin geometry.
const (
	// FastbinCount is the number of fastbins; they cover payloads 16..112 in
	// 16-byte steps.
	FastbinCount = 7

	// SmallbinCount is the number of smallbins; they cover payloads below
	// SmallbinMax in 16-byte steps.
	SmallbinCount = 32

	// LargebinCount is the number of largebins. Bins 0-30 are 64-byte steps
	// from 512 B, bin 31 takes the rest up to 64 KiB, and bins 32-63 are
	// power-of-two classes above that.
	LargebinCount = 64

	// SmallbinMax is the first payload size that no longer fits a smallbin.
	SmallbinMax = 16 * SmallbinCount

	// FastbinMax is the largest payload a fastbin holds.
	FastbinMax = 16 * FastbinCount
)

func fastbinIndex(size uintptr) int  { return int(size>>4) - 1 }
func smallbinIndex(size uintptr) int { return int(size>>4) - 1 }

// largebinIndex maps a payload size to its largebin, or -1 below the
// largebin floor.
func largebinIndex(size uintptr) int {
	if size < 512 {
		return -1
	}

	// 0-31: 64-byte steps from 512 B; bin 31 also takes the rest up to 64 KiB.
	if size <= 64<<10 {
		idx := int((size - 512) >> 6)
		if idx > 31 {
			idx = 31
		}
		return idx
	}

	// 32-63: one bin per power of two. Sizes above 64 KiB and below 2^17
	// land in bin 32.
	lg := bits.Len(uint(size)) - 1
	idx := 32 + (lg - 16)
	if idx < 32 {
		idx = 32
	}
	if idx > 63 {
		idx = 63
	}
	return idx
}

// initSentinel turns a chunk into an empty, self-linked bin head.
func initSentinel(head *chunk) {
	head.size = 0
	head.fd, head.bk = head, head
	head.nextBySize, head.prevBySize = head, head
}

// insertFront links c in immediately after head. The bk side of the list is
// therefore the oldest entry; FIFO consumers take from head.bk.
func insertFront(head, c *chunk) {
	c.fd = head.fd
	c.bk = head
	head.fd.bk = c
	head.fd = c
}

// unlinkList removes c from its fd/bk list. A chunk that is on no list (both
// pointers nil) is left alone.
func unlinkList(c *chunk) {
	if c.fd == nil || c.bk == nil {
		return
	}
	c.fd.bk = c.bk
	c.bk.fd = c.fd
	c.fd, c.bk = nil, nil
}

// unlinkSizeChain removes c from its largebin's ascending size chain.
//
// A chain member that still has an equal-sized sibling on the fd list hands
// its chain position to that sibling, so the size class stays findable.
func unlinkSizeChain(c *chunk) {
	if c.nextBySize == nil || c.prevBySize == nil {
		return
	}

	if sib := c.fd; sib != nil && sib.nextBySize == nil &&
		sib.payloadSize() == c.payloadSize() && sib.size != 0 {
		sib.nextBySize = c.nextBySize
		sib.prevBySize = c.prevBySize
		c.prevBySize.nextBySize = sib
		c.nextBySize.prevBySize = sib
		c.nextBySize, c.prevBySize = nil, nil
		return
	}

	c.prevBySize.nextBySize = c.nextBySize
	c.nextBySize.prevBySize = c.prevBySize
	c.nextBySize, c.prevBySize = nil, nil
}

// unlinkChunk removes a free chunk from whatever bin structures hold it.
func unlinkChunk(c *chunk) {
	unlinkSizeChain(c)
	unlinkList(c)
}

// insertFastbin pushes c onto its fastbin, LIFO.
//
// The in-use bit of the chunk itself is cleared so the sweeper skips it,
// but the following chunk's prevInUse bit stays set: fastbin chunks are
// deliberately invisible to coalescing.
func (a *Arena) insertFastbin(c *chunk) {
	idx := fastbinIndex(c.payloadSize())
	c.fd = a.fastbins[idx]
	a.fastbins[idx] = c
	c.clearInUse()
	a.log("free/fast", "%v (%d)", c.addr(), c.payloadSize())
}

// insertSmallbin files a classified chunk into its smallbin.
func (a *Arena) insertSmallbin(c *chunk) {
	idx := smallbinIndex(c.payloadSize())
	insertFront(&a.smallbins[idx], c)
	a.smallbinMap |= 1 << idx
}

// insertLargebin files a classified chunk into its largebin, preserving the
// ascending order of the size chain. Equal-size chunks share the chain
// position of their representative and join only the fd list.
func (a *Arena) insertLargebin(c *chunk) {
	idx := largebinIndex(c.payloadSize())
	head := &a.largebins[idx]
	size := c.payloadSize()

	ceil := head.nextBySize
	for ceil != head && ceil.payloadSize() < size {
		ceil = ceil.nextBySize
	}

	if ceil != head && ceil.payloadSize() == size {
		// Same size class: ride along on the fd list, stay off the chain.
		c.nextBySize, c.prevBySize = nil, nil
		c.fd = ceil.fd
		c.bk = ceil
		ceil.fd.bk = c
		ceil.fd = c
	} else {
		floor := ceil.prevBySize
		c.nextBySize = ceil
		c.prevBySize = floor
		ceil.prevBySize = c
		floor.nextBySize = c
		insertFront(head, c)
	}

	if idx >= 32 {
		a.largebinMapHi |= 1 << (idx - 32)
	} else {
		a.largebinMapLo |= 1 << idx
	}
}

// insertUnsorted places a freshly freed or split chunk at the unsortedbin
// head, fixing up the neighbour's bookkeeping.
func (a *Arena) insertUnsorted(c *chunk) {
	c.clearInUse()

	next := c.next()
	next.clearPrevInUse()
	next.setPrevSize(c.payloadSize(), next.prevSizeBits())

	// The size chain pointers stay nil until the chunk reaches a largebin;
	// coalescing uses that to tell largebin members apart.
	if c.payloadSize() > MinPayload {
		c.nextBySize, c.prevBySize = nil, nil
	}

	insertFront(&a.unsorted, c)
}

// popFastbin pops the fastbin for an exact size class, LIFO.
func (a *Arena) popFastbin(size uintptr) *chunk {
	idx := fastbinIndex(size)
	if idx < 0 || idx >= FastbinCount || a.fastbins[idx] == nil {
		return nil
	}

	victim := a.fastbins[idx]
	a.fastbins[idx] = victim.fd
	victim.fd = nil

	victim.setInUse()
	// The neighbour's prevInUse bit was never cleared, so there is nothing
	// to restore here.
	return victim
}

// popSmallbin takes the oldest chunk of an exact smallbin class, FIFO.
func (a *Arena) popSmallbin(size uintptr) *chunk {
	idx := smallbinIndex(size)
	if idx < 0 || idx >= SmallbinCount {
		return nil
	}
	if a.smallbinMap&(1<<idx) == 0 {
		return nil
	}

	head := &a.smallbins[idx]
	if head.fd == head {
		a.smallbinMap &^= 1 << idx // stale bit, clear lazily
		return nil
	}

	victim := head.bk
	unlinkList(victim)
	if head.fd == head {
		a.smallbinMap &^= 1 << idx
	}

	victim.setInUse()
	victim.next().setPrevInUse()
	return victim
}

// searchLargebins walks this and every higher largebin for the smallest
// chunk that satisfies size, splitting off the tail when worthwhile.
func (a *Arena) searchLargebins(size uintptr) *chunk {
	idx := largebinIndex(size)
	if idx < 0 {
		idx = 0
	}

	for i := idx; i < LargebinCount; i++ {
		if !a.largebinMarked(i) {
			continue
		}

		head := &a.largebins[i]
		if head.nextBySize == head {
			a.clearLargebinMark(i) // stale bit
			continue
		}

		// The chain is ascending, so the first fit is the best fit.
		for rep := head.nextBySize; rep != head; rep = rep.nextBySize {
			if rep.payloadSize() < size {
				continue
			}

			victim := rep
			// Prefer an equal-sized sibling: taking it needs no chain
			// surgery.
			if sib := rep.fd; sib != head && sib.nextBySize == nil &&
				sib.payloadSize() == rep.payloadSize() {
				victim = sib
			}
			unlinkChunk(victim)
			if head.fd == head {
				a.clearLargebinMark(i)
			}

			a.take(victim, size)
			return victim
		}
	}
	return nil
}

// searchUnsorted walks the unsortedbin oldest-first. The first fit is taken;
// everything walked over on the way is classified into its small or large
// bin.
func (a *Arena) searchUnsorted(size uintptr) *chunk {
	head := &a.unsorted
	for curr := head.bk; curr != head; {
		next := curr.bk
		unlinkList(curr)

		if curr.payloadSize() >= size {
			a.take(curr, size)
			return curr
		}

		if curr.payloadSize() < SmallbinMax {
			a.insertSmallbin(curr)
		} else {
			a.insertLargebin(curr)
		}
		curr = next
	}
	return nil
}

// take marks victim in use with exactly size bytes of payload, splitting the
// remainder back onto the unsortedbin when it is big enough to stand alone.
func (a *Arena) take(victim *chunk, size uintptr) {
	remainder := victim.payloadSize() - size

	if remainder >= MinPayload+uintptr(HeaderSize) {
		tail := xunsafe.ByteAdd[chunk](victim, HeaderSize+int(size))
		tailPayload := remainder - uintptr(HeaderSize)

		tail.setSize(tailPayload, flagPrevInUse)
		tail.next().setPrevSize(tailPayload, 0)
		a.insertUnsorted(tail)

		victim.setSize(size, victim.sizeFlags())
		victim.setInUse()
		return
	}

	victim.setInUse()
	victim.next().setPrevInUse()
}

func (a *Arena) largebinMarked(i int) bool {
	if i >= 32 {
		return a.largebinMapHi&(1<<(i-32)) != 0
	}
	return a.largebinMapLo&(1<<i) != 0
}

func (a *Arena) clearLargebinMark(i int) {
	if i >= 32 {
		a.largebinMapHi &^= 1 << (i - 32)
	} else {
		a.largebinMapLo &^= 1 << i
	}
}
