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
	"unsafe"

	"github.com/cascadelang/cascade/internal/sched"
	"github.com/cascadelang/cascade/internal/xunsafe"
)

// Array is the array ABI shared with compiled code: contiguous data, a
// shape vector, a flat length and a rank. Element size is the caller's
// concern.
type Array struct {
	Data   *byte
	Shape  *int64
	Length int64
	Rank   int64
}

// Alloc returns size bytes of GC-managed memory from the calling worker's
// arena, or nil for a zero-size request.
func Alloc(size uintptr) unsafe.Pointer {
	return sched.CurrentArena().Allocate(size)
}

// AllocArray allocates a zero-initialised array with the given element
// size and dimensions. The header, data and shape live in one contiguous
// arena allocation, so a single reachable pointer keeps all three alive.
func AllocArray(elemSize int64, rank int64, dims ...int64) *Array {
	if elemSize <= 0 || rank < 0 || int64(len(dims)) != rank {
		return nil
	}

	count := int64(1)
	for _, d := range dims {
		if d < 0 {
			return nil
		}
		count *= d
	}

	headerSize := int64(unsafe.Sizeof(Array{}))
	dataSize := count * elemSize
	shapeSize := rank * int64(unsafe.Sizeof(int64(0)))

	p := sched.CurrentArena().Allocate(uintptr(headerSize + dataSize + shapeSize))
	if p == nil {
		return nil
	}

	arr := (*Array)(p)
	arr.Data = xunsafe.ByteAdd[byte]((*byte)(p), int(headerSize))
	arr.Length = count
	arr.Rank = rank

	xunsafe.Clear(arr.Data, int(dataSize))

	if rank > 0 {
		arr.Shape = xunsafe.ByteAdd[int64]((*byte)(p), int(headerSize+dataSize))
		shape := unsafe.Slice(arr.Shape, rank)
		copy(shape, dims)
	}

	return arr
}

// Len returns the flat element count of an array.
func Len(arr *Array) int64 {
	if arr == nil {
		return 0
	}
	return arr.Length
}

// Bytes exposes an array's data as a byte slice of n bytes.
func (a *Array) Bytes(n int) []byte {
	return unsafe.Slice(a.Data, n)
}
