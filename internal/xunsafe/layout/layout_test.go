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

package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cascadelang/cascade/internal/xunsafe/layout"
)

func TestAlign(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, layout.RoundUp(8, 8))
	assert.Equal(t, 16, layout.RoundUp(9, 8))
	assert.Equal(t, 16, layout.RoundUp(15, 8))
	assert.Equal(t, 16, layout.RoundUp(16, 8))
	assert.Equal(t, 8, layout.RoundDown(15, 8))

	assert.Equal(t, 0, layout.Padding(8, 8))
	assert.Equal(t, 7, layout.Padding(9, 8))
	assert.Equal(t, 1, layout.Padding(15, 8))
	assert.Equal(t, 0, layout.Padding(16, 8))

	assert.True(t, layout.IsAligned(32, 16))
	assert.False(t, layout.IsAligned(40, 16))
}

func TestSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 8, layout.Size[uint64]())
	assert.Equal(t, 1, layout.Size[byte]())
	assert.Equal(t, 64, layout.Bits[uint64]())
}
