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
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadelang/cascade/internal/arena"
)

func fill(p unsafe.Pointer, n int, pattern byte) {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		b[i] = pattern
	}
}

func check(p unsafe.Pointer, n int, pattern byte) bool {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		if b[i] != pattern {
			return false
		}
	}
	return true
}

func TestAlignment(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	for _, size := range []uintptr{1, 8, 16, 24, 32, 128, 1024, 5000} {
		p := ar.Allocate(size)
		require.NotNil(t, p, "size %d", size)
		assert.Zero(t, uintptr(p)%16, "payload for size %d not 16-byte aligned", size)

		// The full extent must be writable.
		fill(p, int(size), 0xAA)
	}
}

func TestZeroSize(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	assert.Nil(t, ar.Allocate(0))
}

func TestReleaseNilAndWild(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	ar.Release(nil)

	// Double free is a deliberate no-op.
	p := ar.Allocate(64)
	require.NotNil(t, p)
	ar.Release(p)
	ar.Release(p)
}

func TestNoOverlap(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	const n = 50
	ptrs := make([]unsafe.Pointer, n)
	sizes := make([]int, n)

	for i := range n {
		sizes[i] = (i + 1) * 8
		ptrs[i] = ar.Allocate(uintptr(sizes[i]))
		require.NotNil(t, ptrs[i])
		fill(ptrs[i], sizes[i], byte(i))
	}

	for i := range n {
		assert.True(t, check(ptrs[i], sizes[i], byte(i)), "pattern %d corrupted", i)
	}

	for i := range n {
		ar.Release(ptrs[i])
	}
}

func TestFastbinLIFO(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	const n = 10
	var ptrs [n]unsafe.Pointer
	for i := range n {
		ptrs[i] = ar.Allocate(32)
	}

	for i := range n {
		ar.Release(ptrs[i])
	}

	// Fastbin pops come back in reverse free order.
	for i := range n {
		got := ar.Allocate(32)
		assert.Equal(t, ptrs[n-i-1], got, "fastbin pop %d", i)
	}
}

func TestSmallbinSizedFIFO(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	// Three equal chunks separated by in-use barriers so frees cannot
	// coalesce.
	const size = 128
	var ptrs [3]unsafe.Pointer
	for i := range ptrs {
		ptrs[i] = ar.Allocate(size)
		require.NotNil(t, ar.Allocate(16)) // barrier
	}

	for i := range ptrs {
		ar.Release(ptrs[i])
	}

	// Unsorted-bin reuse is oldest-first.
	for i := range ptrs {
		assert.Equal(t, ptrs[i], ar.Allocate(size), "reuse %d", i)
	}
}

func TestSingleChunkReuse(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(256)
	require.NotNil(t, ar.Allocate(16)) // barrier against top merge
	ar.Release(p)

	assert.Equal(t, p, ar.Allocate(256))
}

func TestCoalesceForward(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	const s = 128
	p1 := ar.Allocate(s)
	p2 := ar.Allocate(s)
	require.NotNil(t, ar.Allocate(16)) // barrier

	ar.Release(p2)
	ar.Release(p1)

	// p1+header+p2 merged into one block starting at p1.
	merged := ar.Allocate(2*s + 16)
	assert.Equal(t, p1, merged)
}

func TestCoalesceBackward(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	const s = 128
	p1 := ar.Allocate(s)
	p2 := ar.Allocate(s)
	require.NotNil(t, ar.Allocate(16)) // barrier

	ar.Release(p1)
	ar.Release(p2)

	merged := ar.Allocate(2*s + 16)
	assert.Equal(t, p1, merged)
}

func TestCoalesceSandwich(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	const s = 128
	p1 := ar.Allocate(s)
	p2 := ar.Allocate(s)
	p3 := ar.Allocate(s)
	require.NotNil(t, ar.Allocate(16)) // barrier

	ar.Release(p1)
	ar.Release(p3)
	ar.Release(p2) // middle last: both merges fire

	merged := ar.Allocate(3*s + 2*16)
	assert.Equal(t, p1, merged)
}

func TestLargebinBestFit(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	// Three same-largebin sizes, freed out of order.
	sizes := []uintptr{544, 528, 560}
	ptrs := map[uintptr]unsafe.Pointer{}
	for _, size := range sizes {
		ptrs[size] = ar.Allocate(size)
		require.NotNil(t, ar.Allocate(16)) // barrier
	}
	for _, size := range sizes {
		ar.Release(ptrs[size])
	}

	// Nothing free fits this; the walk classifies all three into their
	// largebin on the way.
	require.NotNil(t, ar.Allocate(4096))

	// Best fit must come back smallest-first regardless of free order.
	assert.Equal(t, ptrs[528], ar.Allocate(528))
	assert.Equal(t, ptrs[544], ar.Allocate(544))
	assert.Equal(t, ptrs[560], ar.Allocate(560))
}

func TestLargebinSplit(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(2048)
	require.NotNil(t, ar.Allocate(16)) // barrier
	ar.Release(p)

	// Classify into the largebin.
	require.NotNil(t, ar.Allocate(8192))

	// A smaller request splits the 2048 block; the head is reused.
	got := ar.Allocate(1024)
	assert.Equal(t, p, got)
}

func TestMmapPath(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	p := ar.Allocate(arena.MmapThreshold)
	require.NotNil(t, p)
	assert.Zero(t, uintptr(p)%16)

	fill(p, arena.MmapThreshold, 0x5C)
	assert.True(t, check(p, arena.MmapThreshold, 0x5C))

	ar.Release(p)
}

func TestRegionGrowth(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	// Burn through more than the first 128 KiB region without crossing
	// the mmap threshold per allocation.
	var ptrs []unsafe.Pointer
	for range 64 {
		p := ar.Allocate(64 << 10)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}

	stats := ar.Snapshot()
	assert.Greater(t, stats.Regions, 1)

	for _, p := range ptrs {
		ar.Release(p)
	}
}

func TestConcurrentStress(t *testing.T) {
	t.Parallel()
	ar := arena.New(0)

	const (
		threads = 8
		iters   = 10000
	)

	var wg sync.WaitGroup
	for th := range threads {
		wg.Add(1)
		go func(th int) {
			defer wg.Done()

			canary := byte(0xC0 | th)
			var live []unsafe.Pointer
			var liveSizes []int

			for i := range iters {
				if i%5 < 3 || len(live) == 0 {
					size := 16 + (i%64)*16
					p := ar.Allocate(uintptr(size))
					if p == nil {
						continue
					}
					fill(p, size, canary)
					live = append(live, p)
					liveSizes = append(liveSizes, size)
				} else {
					last := len(live) - 1
					if !check(live[last], liveSizes[last], canary) {
						t.Errorf("thread %d: canary corrupted", th)
						return
					}
					ar.Release(live[last])
					live = live[:last]
					liveSizes = liveSizes[:last]
				}
			}

			for i, p := range live {
				if !check(p, liveSizes[i], canary) {
					t.Errorf("thread %d: canary corrupted at teardown", th)
					return
				}
				ar.Release(p)
			}
		}(th)
	}
	wg.Wait()
}
