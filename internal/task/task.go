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

// Package task defines the user-level task record and the queues the
// scheduler, the I/O workers and the collector move tasks through.
package task

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/internal/ctxt"
)

// State is a task's lifecycle state.
type State int32

const (
	Running State = iota
	Yielded
	Finished
)

// Op identifies the pending operation in a task's I/O record.
type Op int32

const (
	OpNone Op = iota
	OpRead
	OpWrite
	OpAccept
	OpConnect
)

// IO is the inline I/O record every task carries. A task has at most one
// operation in flight; the record is rewritten by each I/O entry point and
// read back after the scheduler resumes the task.
type IO struct {
	FD     int
	Buf    unsafe.Pointer
	ReqN   int
	DoneN  int
	Offset int
	Op     Op

	Errno unix.Errno
	Done  bool

	// Peer address slot for accept; the netio worker does not fill it.
	Addr unix.Sockaddr
}

// Reset rewrites the record for a fresh operation.
func (io *IO) Reset(fd int, buf unsafe.Pointer, reqN, offset int, op Op) {
	*io = IO{FD: fd, Buf: buf, ReqN: reqN, Offset: offset, Op: op}
}

// Task is a user-level coroutine: its own guard-paged stack, a saved
// machine context, and the bookkeeping the scheduler and collector need.
type Task struct {
	ID uint64

	Ctx ctxt.Context

	// The full mapping backing the stack. The first page is the PROT_NONE
	// guard; the usable stack is everything above it.
	StackMem []byte

	// Usable stack bounds, guard page excluded.
	StackLo, StackHi uintptr

	// Owning worker; tasks never migrate after placement.
	WorkerID int

	// Entry point and its boxed, pointer-sized arguments.
	Fn   func(args []unsafe.Pointer)
	Args []unsafe.Pointer

	IO IO

	state atomic.Int32

	// Back-pointers into the intrusive lists this task is a member of,
	// nil when not enlisted. Slots make unlinking O(1).
	nodes [slotCount]*node
}

// State returns the task's current state.
func (t *Task) State() State { return State(t.state.Load()) }

// SetState moves the task to s.
func (t *Task) SetState(s State) { t.state.Store(int32(s)) }
