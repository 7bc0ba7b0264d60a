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

package oscall_test

import (
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/oscall"
)

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "f")
	fd := oscall.Open(path, oscall.OS_CREAT|oscall.OS_RDWR, 0o600)
	require.GreaterOrEqual(t, fd, 0)

	msg := []byte("syscall thunks")
	n := oscall.Write(fd, unsafe.Pointer(&msg[0]), len(msg))
	assert.Equal(t, len(msg), n)

	pos := oscall.Seek(fd, 0, oscall.OS_SEEK_SET)
	assert.Zero(t, pos)

	out := make([]byte, len(msg))
	n = oscall.Read(fd, unsafe.Pointer(&out[0]), len(out))
	require.Equal(t, len(msg), n)
	assert.Equal(t, msg, out)

	assert.Zero(t, oscall.Close(fd))
}

func TestErrnoPreserved(t *testing.T) {
	fd := oscall.Open("/definitely/not/a/path", oscall.OS_RDONLY, 0)
	require.Equal(t, -1, fd)
	assert.Equal(t, int(unix.ENOENT), oscall.Errno())
}

func TestPipe(t *testing.T) {
	t.Parallel()

	r, w := oscall.Pipe()
	require.GreaterOrEqual(t, r, 0)
	require.GreaterOrEqual(t, w, 0)

	msg := []byte("x")
	require.Equal(t, 1, oscall.Write(w, unsafe.Pointer(&msg[0]), 1))

	out := make([]byte, 1)
	require.Equal(t, 1, oscall.Read(r, unsafe.Pointer(&out[0]), 1))
	assert.Equal(t, msg, out)

	oscall.Close(r)
	oscall.Close(w)
}

func TestPids(t *testing.T) {
	t.Parallel()

	assert.Positive(t, oscall.Getpid())
	assert.Positive(t, oscall.Getppid())
}
