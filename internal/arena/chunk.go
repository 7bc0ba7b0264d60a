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
	"unsafe"

	"github.com/cascadelang/cascade/internal/xunsafe"
)

// Chunk layout constants. Sizes are payload sizes: the header is always
// HeaderSize bytes on top.
const (
	// Align is the alignment of every payload the arena hands out.
	Align = 16

	// HeaderSize is the two-word chunk header: prevSize and size.
	HeaderSize = 2 * int(unsafe.Sizeof(uintptr(0)))

	// MinPayload is the smallest payload ever carved.
	MinPayload = 16
)

// Flag bits. prevInUse, mmapped and currInUse live in the low bits of
// size; gcMark lives in the low bits of prevSize. The three low bits are
// masked off when reading either field as a size.
const (
	flagPrevInUse uintptr = 0x1
	flagMmapped   uintptr = 0x2
	flagCurrInUse uintptr = 0x4

	flagGCMark uintptr = 0x2 // in prevSize

	flagBits  uintptr = 0x7
	sizeMask          = ^flagBits
)

// chunk is the allocator's unit: a two-word header followed by the payload.
//
// The four pointer fields overlay the payload and are only meaningful while
// the chunk is free: fd/bk link chunks within one bin, and nextBySize/prevBySize
// maintain the largebins' ascending size order. The layout mirrors the
// in-memory format exactly, so a *chunk may be pointed at any properly
// aligned position inside a heap region.
type chunk struct {
	prevSize uintptr // size of the previous chunk while that chunk is free
	size     uintptr // payload size plus flag bits

	fd, bk *chunk // same-bin doubly-linked list

	nextBySize *chunk // ascending size chain, largebins only
	prevBySize *chunk
}

// chunkAt reinterprets a raw address as a chunk header.
func chunkAt(a xunsafe.Addr[byte]) *chunk {
	return xunsafe.Cast[chunk](a.AssertValid())
}

// payloadChunk recovers the chunk whose payload starts at p. The pointer
// already refers to mapped memory, so it is hidden from escape analysis
// rather than letting the free path count as an escape of p.
func payloadChunk(p unsafe.Pointer) *chunk {
	return xunsafe.ByteAdd[chunk](xunsafe.NoEscape((*byte)(p)), -HeaderSize)
}

// payload returns the address of the first payload byte.
func (c *chunk) payload() unsafe.Pointer {
	return unsafe.Pointer(xunsafe.ByteAdd[byte](c, HeaderSize))
}

// addr returns the address of the chunk header.
func (c *chunk) addr() xunsafe.Addr[byte] {
	return xunsafe.AddrOf(xunsafe.Cast[byte](c))
}

func (c *chunk) payloadSize() uintptr  { return c.size & sizeMask }
func (c *chunk) prevPayload() uintptr  { return c.prevSize & sizeMask }
func (c *chunk) sizeFlags() uintptr    { return c.size & flagBits }
func (c *chunk) prevSizeBits() uintptr { return c.prevSize & flagBits }

// setSize stores a payload size plus the given flag bits.
func (c *chunk) setSize(size, flags uintptr) { c.size = size | flags }

// setPrevSize records the previous chunk's payload size, preserving the
// given flag bits.
func (c *chunk) setPrevSize(size, flags uintptr) { c.prevSize = size | flags }

func (c *chunk) prevInUse() bool  { return c.size&flagPrevInUse != 0 }
func (c *chunk) setPrevInUse()    { c.size |= flagPrevInUse }
func (c *chunk) clearPrevInUse()  { c.size &^= flagPrevInUse }
func (c *chunk) inUse() bool      { return c.size&flagCurrInUse != 0 }
func (c *chunk) setInUse()        { c.size |= flagCurrInUse }
func (c *chunk) clearInUse()      { c.size &^= flagCurrInUse }
func (c *chunk) mmapped() bool    { return c.size&flagMmapped != 0 }
func (c *chunk) setMmapped()      { c.size |= flagMmapped }
func (c *chunk) clearMmapped()    { c.size &^= flagMmapped }
func (c *chunk) marked() bool     { return c.prevSize&flagGCMark != 0 }
func (c *chunk) setMark()         { c.prevSize |= flagGCMark }
func (c *chunk) clearMark()       { c.prevSize &^= flagGCMark }

// next returns the physically following chunk.
func (c *chunk) next() *chunk {
	return xunsafe.ByteAdd[chunk](c, HeaderSize+int(c.payloadSize()))
}

// prev returns the physically preceding chunk. Only valid while that chunk
// is free, since prevSize is otherwise stale.
func (c *chunk) prev() *chunk {
	return xunsafe.ByteAdd[chunk](c, -(HeaderSize + int(c.prevPayload())))
}

// alignUp rounds a requested size up to the chunk granularity.
func alignUp(n uintptr) uintptr {
	return (n + Align - 1) &^ uintptr(Align-1)
}
