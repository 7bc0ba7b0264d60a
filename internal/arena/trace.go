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

// This file is the collector's window into an arena. The collector only
// calls in here while the world is stopped, so nothing below takes the
// arena lock except Release (which the sweeper reaches through SweepChunks
// on an uncontended mutex).

// Ref is an opaque handle on one chunk, valid only while the world stays
// stopped.
type Ref struct {
	c *chunk
}

// Valid reports whether the handle refers to a chunk at all.
func (r Ref) Valid() bool { return r.c != nil }

// InUse reports whether the chunk is currently allocated.
func (r Ref) InUse() bool { return r.c.inUse() }

// Marked reports whether the chunk carries the collector's mark bit.
func (r Ref) Marked() bool { return r.c.marked() }

// SetMark sets the collector's mark bit.
func (r Ref) SetMark() { r.c.setMark() }

// ClearMark clears the collector's mark bit.
func (r Ref) ClearMark() { r.c.clearMark() }

// Payload returns the chunk's payload bounds.
func (r Ref) Payload() (start, end xunsafe.Addr[byte]) {
	start = r.c.addr().ByteAdd(HeaderSize)
	return start, start.ByteAdd(int(r.c.payloadSize()))
}

// FindChunk classifies a candidate pointer: if it falls inside one of the
// arena's regions or oversized mappings, the enclosing chunk is located by
// scanning that range from its start (chunks self-describe their length).
// Returns an invalid Ref when the pointer hits no chunk.
func (a *Arena) FindChunk(p xunsafe.Addr[byte]) Ref {
	for _, r := range a.regions {
		if r.Contains(p) {
			return findInRange(r, p)
		}
	}
	for _, r := range a.mmapped {
		if r.Contains(p) {
			return findInRange(r, p)
		}
	}
	return Ref{}
}

// Contains reports whether p falls inside any of the arena's mapped memory.
func (a *Arena) Contains(p xunsafe.Addr[byte]) bool {
	for _, r := range a.regions {
		if r.Contains(p) {
			return true
		}
	}
	for _, r := range a.mmapped {
		if r.Contains(p) {
			return true
		}
	}
	return false
}

func findInRange(r Region, p xunsafe.Addr[byte]) Ref {
	scan := r.Start
	for scan < r.End {
		c := chunkAt(scan)
		size := c.payloadSize()

		if c.inUse() {
			start := scan.ByteAdd(HeaderSize)
			end := start.ByteAdd(int(size))
			if p >= start && p < end {
				return Ref{c}
			}
		}

		scan = scan.ByteAdd(HeaderSize + int(size))
	}
	return Ref{}
}

// SweepChunks visits every chunk in every region and oversized mapping.
// Chunks still carrying a mark are unmarked; unmarked in-use chunks are
// released back through the ordinary free path.
func (a *Arena) SweepChunks() (freed int) {
	// Oversized mappings first: releasing one mutates a.mmapped.
	for i := len(a.mmapped) - 1; i >= 0; i-- {
		c := chunkAt(a.mmapped[i].Start)
		if c.marked() {
			c.clearMark()
		} else if c.inUse() {
			a.Release(unsafe.Pointer(xunsafe.ByteAdd[byte](c, HeaderSize)))
			freed++
		}
	}

	for _, r := range a.regions {
		scan := r.Start
		for scan < r.End {
			c := chunkAt(scan)
			size := c.payloadSize()
			// Advance by the length read before releasing: a forward merge
			// grows the chunk under the cursor, and the old length lands on
			// the absorbed neighbour's stale header, which is free and so
			// skipped.
			next := scan.ByteAdd(HeaderSize + int(size))

			if c.marked() {
				c.clearMark()
			} else if c.inUse() {
				a.Release(unsafe.Pointer(xunsafe.ByteAdd[byte](c, HeaderSize)))
				freed++
			}

			scan = next
		}
	}
	return freed
}
