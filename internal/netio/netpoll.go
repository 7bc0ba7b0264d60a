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

// Package netio drives socket I/O for tasks through a single readiness
// poller: epoll on Linux, kqueue on Darwin.
//
// Descriptors are registered one-shot. After every event the interest is
// gone; the per-op state machine in the netio worker re-arms on EAGAIN or
// partial progress and deregisters on any terminal outcome. A task issues
// at most one socket operation at a time, so one registration per
// descriptor is all the design ever needs.
package netio

import (
	"sync"

	"github.com/cascadelang/cascade/internal/task"
)

// Flag is a platform-independent readiness event mask.
type Flag uint32

const (
	In Flag = 1 << iota
	Out
	Err
	Hup
	OneShot
)

// Event is one readiness notification.
type Event struct {
	FD     int
	Events Flag
	T      *task.Task
}

// poller is the platform contract: one-shot readiness registration plus a
// blocking wait.
type poller interface {
	Add(fd int, ev Flag) error
	Mod(fd int, ev Flag) error
	Del(fd int) error
	Wait(events []Event, timeoutMs int) (int, error)
}

var (
	netpoll poller

	// Per-descriptor FIFO of waiting operations. The poller carries one
	// registration per descriptor (its user-data field cannot hold a Go
	// pointer anyway), so at most the head waiter is armed and in flight;
	// the rest queue behind it until the head reaches a terminal outcome.
	opsMu sync.Mutex
	ops   = map[int][]waiter{}
)

type waiter struct {
	t  *task.Task
	ev Flag
}

func lookup(fd int) *task.Task {
	opsMu.Lock()
	defer opsMu.Unlock()

	if q := ops[fd]; len(q) > 0 {
		return q[0].t
	}
	return nil
}

// Arm queues t's interest in ev for fd. The poller is armed only when t
// is first in line; otherwise the in-flight head's terminal outcome arms
// the next waiter.
func Arm(fd int, ev Flag, t *task.Task) error {
	opsMu.Lock()
	q := append(ops[fd], waiter{t, ev})
	ops[fd] = q
	first := len(q) == 1
	opsMu.Unlock()

	if !first {
		return nil
	}
	return armPoller(fd, ev)
}

func armPoller(fd int, ev Flag) error {
	err := netpoll.Add(fd, ev|OneShot)
	if err == nil {
		return nil
	}
	return netpoll.Mod(fd, ev|OneShot)
}

// disarm retires the head waiter after a terminal outcome and arms the
// next one, dropping the registration entirely when nobody is left.
func disarm(fd int) {
	opsMu.Lock()
	q := ops[fd]
	if len(q) > 0 {
		q = q[1:]
	}
	var next *waiter
	if len(q) == 0 {
		delete(ops, fd)
	} else {
		ops[fd] = q
		next = &q[0]
	}
	opsMu.Unlock()

	if next == nil {
		_ = netpoll.Del(fd)
		return
	}
	_ = armPoller(fd, next.ev)
}
