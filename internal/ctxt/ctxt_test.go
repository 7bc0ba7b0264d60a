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

package ctxt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadelang/cascade/internal/ctxt"
)

func entryStub() {}

func TestMake(t *testing.T) {
	t.Parallel()

	var c ctxt.Context
	const lo, hi = uintptr(0x10000), uintptr(0x20000)
	c.Make(entryStub, lo, hi)

	require.NotZero(t, c.PC(), "entry PC must be primed")

	sp := c.SP()
	assert.Less(t, sp, hi, "SP starts below the stack top")
	assert.Greater(t, sp, lo)
	assert.Zero(t, sp%16, "SP keeps the platform stack alignment")

	gotLo, gotHi := c.Stack()
	assert.Equal(t, lo, gotLo)
	assert.Equal(t, hi, gotHi)
}

func TestRegsExposeSPAndPC(t *testing.T) {
	t.Parallel()

	var c ctxt.Context
	c.Make(entryStub, 0x10000, 0x20000)

	regs := c.Regs()
	assert.Equal(t, c.PC(), regs[ctxt.RegPC])
	assert.Equal(t, c.SP(), regs[ctxt.RegSP])

	// The scanner reads every slot; a fresh context has nothing but
	// zeroes beyond PC and SP.
	for i, r := range regs {
		if i == ctxt.RegPC || i == ctxt.RegSP {
			continue
		}
		assert.Zero(t, r, "reg %d", i)
	}
}

func TestMakeResetsOldState(t *testing.T) {
	t.Parallel()

	var c ctxt.Context
	c.Make(entryStub, 0x10000, 0x20000)
	first := c.SP()

	c.Make(entryStub, 0x30000, 0x40000)
	assert.NotEqual(t, first, c.SP())

	lo, hi := c.Stack()
	assert.Equal(t, uintptr(0x30000), lo)
	assert.Equal(t, uintptr(0x40000), hi)
}
