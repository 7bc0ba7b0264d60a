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

package xunsafe

import "unsafe"

var (
	alwaysFalse bool
	sink        unsafe.Pointer //nolint:unused
)

// Escape forces p to the heap.
//
// The allocator stores pointers to Go objects (its bin sentinels) inside
// mapped memory Go's collector never traces. Such an object must not live
// in a stack frame: the only reference the compiler can see might be the
// one it is about to elide.
func Escape[P ~*E, E any](p P) P {
	if alwaysFalse {
		sink = unsafe.Pointer(p)
	}
	return p
}

// NoEscape hides a pointer from escape analysis, preventing it from
// escaping to the heap.
//
// Payload pointers handed back to the allocator already point into mapped
// memory; without this, every unsafe.Pointer argument on the free path is
// conservatively treated as escaping.
func NoEscape[P ~*E, E any](p P) P {
	//nolint:staticcheck // False positive: complains that p^0 does nothing.
	return P((AddrOf(p) ^ 0).AssertValid())
}
