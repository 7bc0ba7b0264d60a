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
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/internal/sched"
	"github.com/cascadelang/cascade/internal/task"
)

const maxEvents = 128

// Init creates the poller and starts the netio worker thread.
func Init() {
	p, err := newPoller()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cascade: netpoll init failed: %v\n", err)
		os.Exit(1)
	}
	netpoll = p

	go run()
}

// Submit arms fd for t's pending operation, parks the task and yields until
// the worker delivers a terminal outcome.
func Submit(t *task.Task, ev Flag) error {
	if err := Arm(t.IO.FD, ev, t); err != nil {
		return err
	}

	sched.Park(t)
	sched.TaskYield()
	return nil
}

// run is the netio worker: wait for readiness, advance each op's state
// machine, and reschedule tasks on terminal outcomes.
func run() {
	events := make([]Event, maxEvents)

	for {
		n, err := netpoll.Wait(events, -1)
		if err != nil {
			continue
		}

		for i := range n {
			t := events[i].T
			if t == nil {
				continue
			}
			t.IO.Errno = 0

			switch t.IO.Op {
			case task.OpConnect:
				stepConnect(t)
			case task.OpAccept:
				stepAccept(t)
			case task.OpRead:
				stepRead(t)
			case task.OpWrite:
				stepWrite(t)
			}
		}
	}
}

// finish records a terminal outcome and hands the task back to its worker.
func finish(t *task.Task) {
	t.IO.Done = true
	sched.ByID(t.WorkerID).Ready.Push(t)
}

// fail records errno, drops the registration, finishes.
func fail(t *task.Task, errno unix.Errno) {
	t.IO.Errno = errno
	t.IO.DoneN = -1
	disarm(t.IO.FD)
	finish(t)
}

// rearm re-registers one-shot interest after EAGAIN or partial progress.
func rearm(t *task.Task, ev Flag) {
	if err := netpoll.Mod(t.IO.FD, ev|OneShot); err != nil {
		fail(t, unix.EBADF)
	}
}

func stepConnect(t *task.Task) {
	soerr, err := unix.GetsockoptInt(t.IO.FD, unix.SOL_SOCKET, unix.SO_ERROR)
	switch {
	case err != nil:
		fail(t, errnoOf(err))
	case soerr != 0:
		fail(t, unix.Errno(soerr))
	default:
		t.IO.DoneN = t.IO.FD
		disarm(t.IO.FD)
		finish(t)
	}
}

func stepAccept(t *task.Task) {
	cfd, err := acceptConn(t.IO.FD)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			rearm(t, In)
			return
		}
		fail(t, errnoOf(err))
		return
	}

	t.IO.DoneN = cfd
	disarm(t.IO.FD)
	finish(t)
}

func stepRead(t *task.Task) {
	buf := unsafe.Slice((*byte)(t.IO.Buf), t.IO.ReqN)

	n, err := unix.Read(t.IO.FD, buf[t.IO.Offset:])
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		rearm(t, In)
	case err != nil:
		fail(t, errnoOf(err))
	case n == 0:
		// Orderly shutdown from the peer.
		t.IO.DoneN = t.IO.Offset
		disarm(t.IO.FD)
		finish(t)
	default:
		t.IO.Offset += n
		t.IO.DoneN = t.IO.Offset
		if t.IO.Offset < t.IO.ReqN {
			rearm(t, In)
			return
		}
		disarm(t.IO.FD)
		finish(t)
	}
}

func stepWrite(t *task.Task) {
	buf := unsafe.Slice((*byte)(t.IO.Buf), t.IO.ReqN)

	// MSG_NOSIGNAL: a dead peer surfaces as EPIPE, never as a signal.
	n, err := unix.SendmsgN(t.IO.FD, buf[t.IO.Offset:], nil, nil, unix.MSG_NOSIGNAL)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		rearm(t, Out)
	case err != nil:
		fail(t, errnoOf(err))
	default:
		t.IO.Offset += n
		t.IO.DoneN = t.IO.Offset
		if t.IO.Offset < t.IO.ReqN {
			rearm(t, Out)
			return
		}
		disarm(t.IO.FD)
		finish(t)
	}
}

func errnoOf(err error) unix.Errno {
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.EIO
}
