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

package xunsafe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadelang/cascade/internal/xunsafe"
)

func TestAddrArithmetic(t *testing.T) {
	t.Parallel()

	buf := make([]uint64, 8)
	base := xunsafe.AddrOf(&buf[0])

	assert.Equal(t, &buf[3], base.Add(3).AssertValid())
	assert.Equal(t, 3, base.Add(3).Sub(base))
	assert.Equal(t, 24, base.Add(3).ByteSub(base))
	assert.Equal(t, xunsafe.EndOf(buf), base.Add(8))
}

func TestAddrAlignment(t *testing.T) {
	t.Parallel()

	a := xunsafe.Addr[byte](0x1001)
	assert.Equal(t, xunsafe.Addr[byte](0x1010), a.RoundUpTo(16))
	assert.Equal(t, 15, a.Padding(16))
	assert.False(t, a.IsAligned(16))
	assert.True(t, a.RoundUpTo(16).IsAligned(16))
}

func TestByteLoadStore(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 16)
	p := &buf[0]

	xunsafe.ByteStore[uint32](p, 4, 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), xunsafe.ByteLoad[uint32](p, 4))
	assert.Zero(t, buf[0])
	assert.Zero(t, buf[8])
}

func TestCast(t *testing.T) {
	t.Parallel()

	v := uint64(0x1122334455667788)
	lo := xunsafe.Cast[uint32](&v)
	assert.Equal(t, uint32(0x55667788), *lo)
}

func TestEscapeIdentity(t *testing.T) {
	t.Parallel()

	v := 42
	assert.Same(t, &v, xunsafe.Escape(&v))
	assert.Same(t, &v, xunsafe.NoEscape(&v))
	assert.Equal(t, 42, *xunsafe.NoEscape(&v))
}

func TestFuncPC(t *testing.T) {
	t.Parallel()

	f := func() {}
	g := func() {}

	require.NotZero(t, xunsafe.FuncPC(f))
	assert.NotEqual(t, xunsafe.FuncPC(f), xunsafe.FuncPC(g))
}
