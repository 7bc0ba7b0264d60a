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

package atomics

import (
	"sync/atomic"
	"unsafe"
)

// StorePointer atomically stores v at p.
func StorePointer(p *unsafe.Pointer, v unsafe.Pointer) {
	atomic.StorePointer(p, v)
}

// LoadPointer atomically loads the value at p.
func LoadPointer(p *unsafe.Pointer) unsafe.Pointer {
	return atomic.LoadPointer(p)
}

// ExchangePointer atomically stores v and returns the previous value.
func ExchangePointer(p *unsafe.Pointer, v unsafe.Pointer) unsafe.Pointer {
	return atomic.SwapPointer(p, v)
}

// CompareAndSwapPointer atomically stores new if p holds old.
func CompareAndSwapPointer(p *unsafe.Pointer, old, new unsafe.Pointer) bool {
	return atomic.CompareAndSwapPointer(p, old, new)
}
