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

package cascade_test

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade"
)

// The synchronous I/O entry points are plain blocking syscalls; they need
// no booted runtime and no task context.

func TestSyncFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o600)
	require.NoError(t, err)
	defer unix.Close(fd)

	payload := "the quick brown fox"
	buf := cascade.AllocArray(1, 1, 64)
	require.NotNil(t, buf)
	copy(buf.Bytes(len(payload)), payload)

	n := cascade.SFWrite(fd, buf, len(payload), 0)
	assert.Equal(t, len(payload), n)

	out := cascade.AllocArray(1, 1, 64)
	n = cascade.SFRead(fd, out, len(payload), 0)
	require.Equal(t, len(payload), n)
	assert.Equal(t, payload, string(out.Bytes(n)))
}

func TestSyncFileReadAtOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	out := cascade.AllocArray(1, 1, 16)
	n := cascade.SFRead(fd, out, 4, 6)
	require.Equal(t, 4, n)
	assert.Equal(t, "6789", string(out.Bytes(n)))

	// Reading past EOF returns the short count.
	n = cascade.SFRead(fd, out, 16, 8)
	assert.Equal(t, 2, n)
}

func TestSyncFileBadArgs(t *testing.T) {
	buf := cascade.AllocArray(1, 1, 8)

	assert.Equal(t, -1, cascade.SFRead(-1, buf, 4, 0))
	assert.Equal(t, -1, cascade.SFRead(0, nil, 4, 0))
	assert.Equal(t, -1, cascade.SFRead(0, buf, 0, 0))
	assert.Equal(t, -1, cascade.SFRead(0, buf, 4, -1))
	assert.Equal(t, -1, cascade.SFWrite(-1, buf, 4, 0))
}

func TestSPrintfCount(t *testing.T) {
	// SPrintf reports the exact byte count of the formatted string.
	n := cascade.SPrintf("hello %d %s\n", 42, "world")
	assert.Equal(t, len("hello 42 world\n"), n)
}

func TestAllocArrayShape(t *testing.T) {
	arr := cascade.AllocArray(8, 2, 3, 4)
	require.NotNil(t, arr)

	assert.Equal(t, int64(12), arr.Length)
	assert.Equal(t, int64(12), cascade.Len(arr))
	assert.Equal(t, int64(2), arr.Rank)

	shape := unsafe.Slice(arr.Shape, arr.Rank)
	assert.Equal(t, []int64{3, 4}, shape)
}

func TestAllocArrayZeroed(t *testing.T) {
	arr := cascade.AllocArray(1, 1, 128)
	require.NotNil(t, arr)

	for i, b := range arr.Bytes(128) {
		require.Zero(t, b, "byte %d not zeroed", i)
	}
}

func TestAllocArrayBadArgs(t *testing.T) {
	assert.Nil(t, cascade.AllocArray(0, 1, 4))
	assert.Nil(t, cascade.AllocArray(8, 2, 4))     // rank/dims mismatch
	assert.Nil(t, cascade.AllocArray(8, 1, -1))    // negative dim
	assert.Nil(t, cascade.AllocArray(-8, 1, 4))    // negative element size
}
