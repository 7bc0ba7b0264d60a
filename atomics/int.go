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

// 8-bit.

// StoreUint8 atomically stores v at p.
func StoreUint8(p *uint8, v uint8) { storeSubword(unsafe.Pointer(p), 1, uint32(v)) }

// LoadUint8 atomically loads the value at p.
func LoadUint8(p *uint8) uint8 { return uint8(loadSubword(unsafe.Pointer(p), 1)) }

// AddUint8 atomically adds v and returns the previous value.
func AddUint8(p *uint8, v uint8) uint8 {
	return uint8(rmwSubword(unsafe.Pointer(p), 1, func(o uint32) uint32 { return o + uint32(v) }))
}

// SubUint8 atomically subtracts v and returns the previous value.
func SubUint8(p *uint8, v uint8) uint8 {
	return uint8(rmwSubword(unsafe.Pointer(p), 1, func(o uint32) uint32 { return o - uint32(v) }))
}

// AndUint8 atomically ANDs v in and returns the previous value.
func AndUint8(p *uint8, v uint8) uint8 {
	return uint8(rmwSubword(unsafe.Pointer(p), 1, func(o uint32) uint32 { return o & uint32(v) }))
}

// OrUint8 atomically ORs v in and returns the previous value.
func OrUint8(p *uint8, v uint8) uint8 {
	return uint8(rmwSubword(unsafe.Pointer(p), 1, func(o uint32) uint32 { return o | uint32(v) }))
}

// XorUint8 atomically XORs v in and returns the previous value.
func XorUint8(p *uint8, v uint8) uint8 {
	return uint8(rmwSubword(unsafe.Pointer(p), 1, func(o uint32) uint32 { return o ^ uint32(v) }))
}

// ExchangeUint8 atomically stores v and returns the previous value.
func ExchangeUint8(p *uint8, v uint8) uint8 {
	return uint8(rmwSubword(unsafe.Pointer(p), 1, func(uint32) uint32 { return uint32(v) }))
}

// CompareAndSwapUint8 atomically stores new if p holds old.
func CompareAndSwapUint8(p *uint8, old, new uint8) bool {
	return casSubword(unsafe.Pointer(p), 1, uint32(old), uint32(new))
}

// StoreInt8 atomically stores v at p.
func StoreInt8(p *int8, v int8) { StoreUint8((*uint8)(unsafe.Pointer(p)), uint8(v)) }

// LoadInt8 atomically loads the value at p.
func LoadInt8(p *int8) int8 { return int8(LoadUint8((*uint8)(unsafe.Pointer(p)))) }

// AddInt8 atomically adds v and returns the previous value.
func AddInt8(p *int8, v int8) int8 { return int8(AddUint8((*uint8)(unsafe.Pointer(p)), uint8(v))) }

// SubInt8 atomically subtracts v and returns the previous value.
func SubInt8(p *int8, v int8) int8 { return int8(SubUint8((*uint8)(unsafe.Pointer(p)), uint8(v))) }

// AndInt8 atomically ANDs v in and returns the previous value.
func AndInt8(p *int8, v int8) int8 { return int8(AndUint8((*uint8)(unsafe.Pointer(p)), uint8(v))) }

// OrInt8 atomically ORs v in and returns the previous value.
func OrInt8(p *int8, v int8) int8 { return int8(OrUint8((*uint8)(unsafe.Pointer(p)), uint8(v))) }

// XorInt8 atomically XORs v in and returns the previous value.
func XorInt8(p *int8, v int8) int8 { return int8(XorUint8((*uint8)(unsafe.Pointer(p)), uint8(v))) }

// ExchangeInt8 atomically stores v and returns the previous value.
func ExchangeInt8(p *int8, v int8) int8 {
	return int8(ExchangeUint8((*uint8)(unsafe.Pointer(p)), uint8(v)))
}

// CompareAndSwapInt8 atomically stores new if p holds old.
func CompareAndSwapInt8(p *int8, old, new int8) bool {
	return CompareAndSwapUint8((*uint8)(unsafe.Pointer(p)), uint8(old), uint8(new))
}

// 16-bit.

// StoreUint16 atomically stores v at p.
func StoreUint16(p *uint16, v uint16) { storeSubword(unsafe.Pointer(p), 2, uint32(v)) }

// LoadUint16 atomically loads the value at p.
func LoadUint16(p *uint16) uint16 { return uint16(loadSubword(unsafe.Pointer(p), 2)) }

// AddUint16 atomically adds v and returns the previous value.
func AddUint16(p *uint16, v uint16) uint16 {
	return uint16(rmwSubword(unsafe.Pointer(p), 2, func(o uint32) uint32 { return o + uint32(v) }))
}

// SubUint16 atomically subtracts v and returns the previous value.
func SubUint16(p *uint16, v uint16) uint16 {
	return uint16(rmwSubword(unsafe.Pointer(p), 2, func(o uint32) uint32 { return o - uint32(v) }))
}

// AndUint16 atomically ANDs v in and returns the previous value.
func AndUint16(p *uint16, v uint16) uint16 {
	return uint16(rmwSubword(unsafe.Pointer(p), 2, func(o uint32) uint32 { return o & uint32(v) }))
}

// OrUint16 atomically ORs v in and returns the previous value.
func OrUint16(p *uint16, v uint16) uint16 {
	return uint16(rmwSubword(unsafe.Pointer(p), 2, func(o uint32) uint32 { return o | uint32(v) }))
}

// XorUint16 atomically XORs v in and returns the previous value.
func XorUint16(p *uint16, v uint16) uint16 {
	return uint16(rmwSubword(unsafe.Pointer(p), 2, func(o uint32) uint32 { return o ^ uint32(v) }))
}

// ExchangeUint16 atomically stores v and returns the previous value.
func ExchangeUint16(p *uint16, v uint16) uint16 {
	return uint16(rmwSubword(unsafe.Pointer(p), 2, func(uint32) uint32 { return uint32(v) }))
}

// CompareAndSwapUint16 atomically stores new if p holds old.
func CompareAndSwapUint16(p *uint16, old, new uint16) bool {
	return casSubword(unsafe.Pointer(p), 2, uint32(old), uint32(new))
}

// StoreInt16 atomically stores v at p.
func StoreInt16(p *int16, v int16) { StoreUint16((*uint16)(unsafe.Pointer(p)), uint16(v)) }

// LoadInt16 atomically loads the value at p.
func LoadInt16(p *int16) int16 { return int16(LoadUint16((*uint16)(unsafe.Pointer(p)))) }

// AddInt16 atomically adds v and returns the previous value.
func AddInt16(p *int16, v int16) int16 {
	return int16(AddUint16((*uint16)(unsafe.Pointer(p)), uint16(v)))
}

// SubInt16 atomically subtracts v and returns the previous value.
func SubInt16(p *int16, v int16) int16 {
	return int16(SubUint16((*uint16)(unsafe.Pointer(p)), uint16(v)))
}

// AndInt16 atomically ANDs v in and returns the previous value.
func AndInt16(p *int16, v int16) int16 {
	return int16(AndUint16((*uint16)(unsafe.Pointer(p)), uint16(v)))
}

// OrInt16 atomically ORs v in and returns the previous value.
func OrInt16(p *int16, v int16) int16 {
	return int16(OrUint16((*uint16)(unsafe.Pointer(p)), uint16(v)))
}

// XorInt16 atomically XORs v in and returns the previous value.
func XorInt16(p *int16, v int16) int16 {
	return int16(XorUint16((*uint16)(unsafe.Pointer(p)), uint16(v)))
}

// ExchangeInt16 atomically stores v and returns the previous value.
func ExchangeInt16(p *int16, v int16) int16 {
	return int16(ExchangeUint16((*uint16)(unsafe.Pointer(p)), uint16(v)))
}

// CompareAndSwapInt16 atomically stores new if p holds old.
func CompareAndSwapInt16(p *int16, old, new int16) bool {
	return CompareAndSwapUint16((*uint16)(unsafe.Pointer(p)), uint16(old), uint16(new))
}

// 32-bit.

// StoreUint32 atomically stores v at p.
func StoreUint32(p *uint32, v uint32) { atomic.StoreUint32(p, v) }

// LoadUint32 atomically loads the value at p.
func LoadUint32(p *uint32) uint32 { return atomic.LoadUint32(p) }

// AddUint32 atomically adds v and returns the previous value.
func AddUint32(p *uint32, v uint32) uint32 { return atomic.AddUint32(p, v) - v }

// SubUint32 atomically subtracts v and returns the previous value.
func SubUint32(p *uint32, v uint32) uint32 { return atomic.AddUint32(p, ^(v - 1)) + v }

// AndUint32 atomically ANDs v in and returns the previous value.
func AndUint32(p *uint32, v uint32) uint32 { return atomic.AndUint32(p, v) }

// OrUint32 atomically ORs v in and returns the previous value.
func OrUint32(p *uint32, v uint32) uint32 { return atomic.OrUint32(p, v) }

// XorUint32 atomically XORs v in and returns the previous value.
func XorUint32(p *uint32, v uint32) uint32 {
	for {
		old := atomic.LoadUint32(p)
		if atomic.CompareAndSwapUint32(p, old, old^v) {
			return old
		}
	}
}

// ExchangeUint32 atomically stores v and returns the previous value.
func ExchangeUint32(p *uint32, v uint32) uint32 { return atomic.SwapUint32(p, v) }

// CompareAndSwapUint32 atomically stores new if p holds old.
func CompareAndSwapUint32(p *uint32, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(p, old, new)
}

// StoreInt32 atomically stores v at p.
func StoreInt32(p *int32, v int32) { atomic.StoreInt32(p, v) }

// LoadInt32 atomically loads the value at p.
func LoadInt32(p *int32) int32 { return atomic.LoadInt32(p) }

// AddInt32 atomically adds v and returns the previous value.
func AddInt32(p *int32, v int32) int32 { return atomic.AddInt32(p, v) - v }

// SubInt32 atomically subtracts v and returns the previous value.
func SubInt32(p *int32, v int32) int32 { return atomic.AddInt32(p, -v) + v }

// AndInt32 atomically ANDs v in and returns the previous value.
func AndInt32(p *int32, v int32) int32 { return atomic.AndInt32(p, v) }

// OrInt32 atomically ORs v in and returns the previous value.
func OrInt32(p *int32, v int32) int32 { return atomic.OrInt32(p, v) }

// XorInt32 atomically XORs v in and returns the previous value.
func XorInt32(p *int32, v int32) int32 {
	return int32(XorUint32((*uint32)(unsafe.Pointer(p)), uint32(v)))
}

// ExchangeInt32 atomically stores v and returns the previous value.
func ExchangeInt32(p *int32, v int32) int32 { return atomic.SwapInt32(p, v) }

// CompareAndSwapInt32 atomically stores new if p holds old.
func CompareAndSwapInt32(p *int32, old, new int32) bool {
	return atomic.CompareAndSwapInt32(p, old, new)
}

// 64-bit.

// StoreUint64 atomically stores v at p.
func StoreUint64(p *uint64, v uint64) { atomic.StoreUint64(p, v) }

// LoadUint64 atomically loads the value at p.
func LoadUint64(p *uint64) uint64 { return atomic.LoadUint64(p) }

// AddUint64 atomically adds v and returns the previous value.
func AddUint64(p *uint64, v uint64) uint64 { return atomic.AddUint64(p, v) - v }

// SubUint64 atomically subtracts v and returns the previous value.
func SubUint64(p *uint64, v uint64) uint64 { return atomic.AddUint64(p, ^(v - 1)) + v }

// AndUint64 atomically ANDs v in and returns the previous value.
func AndUint64(p *uint64, v uint64) uint64 { return atomic.AndUint64(p, v) }

// OrUint64 atomically ORs v in and returns the previous value.
func OrUint64(p *uint64, v uint64) uint64 { return atomic.OrUint64(p, v) }

// XorUint64 atomically XORs v in and returns the previous value.
func XorUint64(p *uint64, v uint64) uint64 {
	for {
		old := atomic.LoadUint64(p)
		if atomic.CompareAndSwapUint64(p, old, old^v) {
			return old
		}
	}
}

// ExchangeUint64 atomically stores v and returns the previous value.
func ExchangeUint64(p *uint64, v uint64) uint64 { return atomic.SwapUint64(p, v) }

// CompareAndSwapUint64 atomically stores new if p holds old.
func CompareAndSwapUint64(p *uint64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(p, old, new)
}

// StoreInt64 atomically stores v at p.
func StoreInt64(p *int64, v int64) { atomic.StoreInt64(p, v) }

// LoadInt64 atomically loads the value at p.
func LoadInt64(p *int64) int64 { return atomic.LoadInt64(p) }

// AddInt64 atomically adds v and returns the previous value.
func AddInt64(p *int64, v int64) int64 { return atomic.AddInt64(p, v) - v }

// SubInt64 atomically subtracts v and returns the previous value.
func SubInt64(p *int64, v int64) int64 { return atomic.AddInt64(p, -v) + v }

// AndInt64 atomically ANDs v in and returns the previous value.
func AndInt64(p *int64, v int64) int64 { return atomic.AndInt64(p, v) }

// OrInt64 atomically ORs v in and returns the previous value.
func OrInt64(p *int64, v int64) int64 { return atomic.OrInt64(p, v) }

// XorInt64 atomically XORs v in and returns the previous value.
func XorInt64(p *int64, v int64) int64 {
	return int64(XorUint64((*uint64)(unsafe.Pointer(p)), uint64(v)))
}

// ExchangeInt64 atomically stores v and returns the previous value.
func ExchangeInt64(p *int64, v int64) int64 { return atomic.SwapInt64(p, v) }

// CompareAndSwapInt64 atomically stores new if p holds old.
func CompareAndSwapInt64(p *int64, old, new int64) bool {
	return atomic.CompareAndSwapInt64(p, old, new)
}
