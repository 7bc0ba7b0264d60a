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

// Package xunsafe provides a more convenient interface for performing unsafe
// operations than Go's built-in package unsafe.
//
// The allocator, the collector and the context-switch glue all traffic in
// raw addresses; this package is the single place where those addresses are
// manufactured and torn apart.
package xunsafe

import (
	"sync"
	"unsafe"

	"github.com/cascadelang/cascade/internal/xunsafe/layout"
)

// NoCopy is a type that go vet will complain about having been moved.
//
// It does so by being an array of [sync.Mutex], whose element type
// implements [sync.Locker].
type NoCopy [0]sync.Mutex

// Int is any integer type.
type Int = layout.Int

// BitCast performs an unsafe bitcast from one type to another.
func BitCast[To, From any](v From) To {
	return *(*To)(unsafe.Pointer(&v))
}

// FuncPC returns the entry PC of a func value.
//
// A func value is a pointer to a funcval whose first word is the code
// pointer. This is the address a primed context jumps to on its first
// switch.
func FuncPC(f any) uintptr {
	type iface struct {
		_    unsafe.Pointer
		data unsafe.Pointer
	}
	fv := (*iface)(unsafe.Pointer(&f)).data
	return *(*uintptr)(fv)
}
