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

package arena_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadelang/cascade/internal/arena"
	"github.com/cascadelang/cascade/internal/xunsafe"
)

func addrOf(p unsafe.Pointer) xunsafe.Addr[byte] {
	return xunsafe.Addr[byte](uintptr(p))
}

func TestFindChunk(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(256)
	require.NotNil(t, p)

	// Interior pointers classify to the same chunk as the base.
	base := ar.FindChunk(addrOf(p))
	require.True(t, base.Valid())

	mid := ar.FindChunk(addrOf(unsafe.Add(p, 128)))
	require.True(t, mid.Valid())

	s1, e1 := base.Payload()
	s2, e2 := mid.Payload()
	assert.Equal(t, s1, s2)
	assert.Equal(t, e1, e2)

	// The payload starts at p and spans exactly the 256 bytes requested.
	assert.True(t, xunsafe.Addr[byte](uintptr(p)) == s1)
	assert.Equal(t, 256, e1.ByteSub(s1))
}

func TestFindChunkMisses(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(64)
	require.NotNil(t, p)

	var local int
	assert.False(t, ar.FindChunk(addrOf(unsafe.Pointer(&local))).Valid(),
		"pointer outside every region must not classify")

	// A freed chunk is not in use and must not classify either.
	require.NotNil(t, ar.Allocate(16)) // barrier
	ar.Release(p)
	assert.False(t, ar.FindChunk(addrOf(p)).Valid())
}

func TestFindChunkMmap(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(arena.MmapThreshold)
	require.NotNil(t, p)

	ref := ar.FindChunk(addrOf(p))
	require.True(t, ref.Valid())
	assert.True(t, ref.InUse())

	ar.Release(p)
}

func TestSweepFreesUnmarked(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	keep := ar.Allocate(256)
	drop := ar.Allocate(256)
	require.NotNil(t, ar.Allocate(16)) // barrier

	ar.FindChunk(addrOf(keep)).SetMark()

	freed := ar.SweepChunks()
	assert.GreaterOrEqual(t, freed, 1)

	// The marked chunk survived with its mark cleared; the unmarked one
	// went back to the allocator.
	ref := ar.FindChunk(addrOf(keep))
	require.True(t, ref.Valid())
	assert.False(t, ref.Marked())

	assert.False(t, ar.FindChunk(addrOf(drop)).Valid())
	assert.Equal(t, drop, ar.Allocate(256), "swept chunk must be reusable")
}

func TestSweepMmapChunks(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(arena.MmapThreshold)
	require.NotNil(t, p)

	before := ar.Snapshot().MmapChunks
	require.Equal(t, 1, before)

	ar.SweepChunks()

	assert.Zero(t, ar.Snapshot().MmapChunks, "unreachable mmap chunk must be unmapped")
}

func TestContains(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(64)
	assert.True(t, ar.Contains(addrOf(p)))

	var local int
	assert.False(t, ar.Contains(addrOf(unsafe.Pointer(&local))))
}
