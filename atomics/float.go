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
	"math"
	"unsafe"

	"github.com/cascadelang/cascade/internal/sync2"
)

// Float16 is an IEEE 754 binary16 value carried as its bit pattern; the
// host language has no native half-float type.
type Float16 uint16

// Float32 returns the value widened to float32.
func (f Float16) Float32() float32 { return f16to32(uint16(f)) }

// Float16Of narrows a float32 (round-to-nearest-even).
func Float16Of(v float32) Float16 { return Float16(f32to16(v)) }

// StoreFloat64 atomically stores v at p.
func StoreFloat64(p *float64, v float64) {
	(*sync2.AtomicFloat64)(unsafe.Pointer(p)).Store(v)
}

// LoadFloat64 atomically loads the value at p.
func LoadFloat64(p *float64) float64 {
	return (*sync2.AtomicFloat64)(unsafe.Pointer(p)).Load()
}

// AddFloat64 atomically adds v and returns the previous value.
func AddFloat64(p *float64, v float64) float64 {
	x := (*sync2.AtomicFloat64)(unsafe.Pointer(p))
	for {
		old := x.Load()
		if x.BitwiseCompareAndSwap(old, old+v) {
			return old
		}
	}
}

// SubFloat64 atomically subtracts v and returns the previous value.
func SubFloat64(p *float64, v float64) float64 {
	x := (*sync2.AtomicFloat64)(unsafe.Pointer(p))
	for {
		old := x.Load()
		if x.BitwiseCompareAndSwap(old, old-v) {
			return old
		}
	}
}

// ExchangeFloat64 atomically stores v and returns the previous value.
func ExchangeFloat64(p *float64, v float64) float64 {
	return (*sync2.AtomicFloat64)(unsafe.Pointer(p)).Swap(v)
}

// CompareAndSwapFloat64 atomically stores new if p holds old's bit pattern.
func CompareAndSwapFloat64(p *float64, old, new float64) bool {
	return (*sync2.AtomicFloat64)(unsafe.Pointer(p)).BitwiseCompareAndSwap(old, new)
}

// StoreFloat32 atomically stores v at p.
func StoreFloat32(p *float32, v float32) {
	(*sync2.AtomicFloat32)(unsafe.Pointer(p)).Store(v)
}

// LoadFloat32 atomically loads the value at p.
func LoadFloat32(p *float32) float32 {
	return (*sync2.AtomicFloat32)(unsafe.Pointer(p)).Load()
}

// AddFloat32 atomically adds v and returns the previous value.
func AddFloat32(p *float32, v float32) float32 {
	x := (*sync2.AtomicFloat32)(unsafe.Pointer(p))
	for {
		old := x.Load()
		if x.BitwiseCompareAndSwap(old, old+v) {
			return old
		}
	}
}

// SubFloat32 atomically subtracts v and returns the previous value.
func SubFloat32(p *float32, v float32) float32 {
	x := (*sync2.AtomicFloat32)(unsafe.Pointer(p))
	for {
		old := x.Load()
		if x.BitwiseCompareAndSwap(old, old-v) {
			return old
		}
	}
}

// ExchangeFloat32 atomically stores v and returns the previous value.
func ExchangeFloat32(p *float32, v float32) float32 {
	return (*sync2.AtomicFloat32)(unsafe.Pointer(p)).Swap(v)
}

// CompareAndSwapFloat32 atomically stores new if p holds old's bit pattern.
func CompareAndSwapFloat32(p *float32, old, new float32) bool {
	return (*sync2.AtomicFloat32)(unsafe.Pointer(p)).BitwiseCompareAndSwap(old, new)
}

// StoreFloat16 atomically stores v at p.
func StoreFloat16(p *Float16, v Float16) {
	StoreUint16((*uint16)(p), uint16(v))
}

// LoadFloat16 atomically loads the value at p.
func LoadFloat16(p *Float16) Float16 {
	return Float16(LoadUint16((*uint16)(p)))
}

// AddFloat16 atomically adds v and returns the previous value. Arithmetic
// happens in float32 and narrows on the way back.
func AddFloat16(p *Float16, v Float16) Float16 {
	return Float16(rmwSubword(unsafe.Pointer(p), 2, func(o uint32) uint32 {
		return uint32(f32to16(f16to32(uint16(o)) + v.Float32()))
	}))
}

// SubFloat16 atomically subtracts v and returns the previous value.
func SubFloat16(p *Float16, v Float16) Float16 {
	return Float16(rmwSubword(unsafe.Pointer(p), 2, func(o uint32) uint32 {
		return uint32(f32to16(f16to32(uint16(o)) - v.Float32()))
	}))
}

// ExchangeFloat16 atomically stores v and returns the previous value.
func ExchangeFloat16(p *Float16, v Float16) Float16 {
	return Float16(ExchangeUint16((*uint16)(p), uint16(v)))
}

// CompareAndSwapFloat16 atomically stores new if p holds old's bit pattern.
func CompareAndSwapFloat16(p *Float16, old, new Float16) bool {
	return CompareAndSwapUint16((*uint16)(p), uint16(old), uint16(new))
}

// f16to32 widens a binary16 bit pattern.
func f16to32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
	}
}

// f32to16 narrows to a binary16 bit pattern, round-to-nearest-even.
func f32to16(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>31) << 15
	exp := int32(b>>23&0xff) - 127 + 15
	frac := b & 0x7fffff

	switch {
	case b&0x7fffffff == 0:
		return sign
	case exp >= 0x1f:
		if b&0x7f800000 == 0x7f800000 && frac != 0 {
			return sign | 0x7e00 // NaN
		}
		return sign | 0x7c00 // overflow to infinity
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		frac |= 0x800000
		shift := uint32(14 - exp)
		half := uint32(1) << (shift - 1)
		out := frac >> shift
		if frac&(half|(half-1)) > half || frac&(half<<1) != 0 && frac&(half|(half-1)) == half {
			out++
		}
		return sign | uint16(out)
	default:
		out := uint16(exp)<<10 | uint16(frac>>13)
		rem := frac & 0x1fff
		if rem > 0x1000 || rem == 0x1000 && out&1 != 0 {
			out++
		}
		return sign | out
	}
}
