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

package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

func TestEpollFlagMapping(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(unix.EPOLLIN|unix.EPOLLONESHOT), toEpoll(In|OneShot))
	assert.Equal(t, uint32(unix.EPOLLOUT), toEpoll(Out))
	assert.Equal(t, uint32(unix.EPOLLERR|unix.EPOLLHUP), toEpoll(Err|Hup))

	assert.Equal(t, In, fromEpoll(unix.EPOLLIN))
	assert.Equal(t, Out|Err, fromEpoll(unix.EPOLLOUT|unix.EPOLLERR))

	// The one-shot bit never comes back from the kernel.
	assert.Equal(t, In, fromEpoll(unix.EPOLLIN|unix.EPOLLONESHOT))
}

func TestEpollOneShotDelivery(t *testing.T) {
	t.Parallel()

	p, err := newPoller()
	require.NoError(t, err)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, p.Add(fds[0], In|OneShot))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	events := make([]Event, 4)
	n, err := p.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, fds[0], events[0].FD)
	assert.NotZero(t, events[0].Events&In)

	// One-shot: without a re-arm the second readiness never surfaces.
	_, err = unix.Write(fds[1], []byte("y"))
	require.NoError(t, err)

	n, err = p.Wait(events, 50)
	require.NoError(t, err)
	assert.Zero(t, n, "interest must be gone after delivery")

	// Re-arm and the event comes back.
	require.NoError(t, p.Mod(fds[0], In|OneShot))
	n, err = p.Wait(events, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
