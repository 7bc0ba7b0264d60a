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

package diskio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/internal/task"
	"github.com/cascadelang/cascade/internal/xsync"
)

// Raw io_uring constants. Requires a 5.6+ kernel (IORING_OP_READ/WRITE and
// IORING_FEAT_SINGLE_MMAP).
const (
	opRead  = 22 // IORING_OP_READ
	opWrite = 23 // IORING_OP_WRITE

	enterGetEvents = 1 << 0 // IORING_ENTER_GETEVENTS

	featSingleMmap = 1 << 0 // IORING_FEAT_SINGLE_MMAP

	offSQRing = 0x0
	offSQEs   = 0x10000000
)

// uringParams mirrors struct io_uring_params.
type uringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqringOffsets
	cqOff        cqringOffsets
}

type sqringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	resv2       uint64
}

type cqringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint64
	resv1       uint32
	resv2       uint64
}

// uringSQE mirrors struct io_uring_sqe (64 bytes).
type uringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	_           [2]uint64
}

// uringCQE mirrors struct io_uring_cqe.
type uringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

// uring is one kernel submission/completion ring. The submit side is
// locked: the owning worker submits and the completion thread never touches
// SQ state, but the back-off path can interleave retries.
type uring struct {
	workerID int
	fd       int

	mu sync.Mutex

	// In-flight submissions by token. CQE user-data cannot safely carry a
	// Go pointer, so tokens stand in for tasks.
	nextToken atomic.Uint64
	pending   xsync.Map[uint64, *task.Task]

	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqEntries uint32
	sqArray   *uint32
	sqes      []uringSQE

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   []uringCQE

	ringMem []byte
	sqeMem  []byte
}

// newRing sets up an io_uring of the given depth. Failure is fatal: the
// runtime cannot run programs without its I/O engine.
func newRing(workerID, depth int) ring {
	var params uringParams

	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP,
		uintptr(depth), uintptr(unsafe.Pointer(&params)), 0)
	if errno != 0 {
		fatalf("io_uring_setup failed: %v", errno)
	}
	if params.features&featSingleMmap == 0 {
		fatalf("kernel too old: io_uring lacks IORING_FEAT_SINGLE_MMAP")
	}

	r := &uring{workerID: workerID, fd: int(fd)}

	pageSize := uint32(unix.Getpagesize())

	sqSize := params.sqOff.array + params.sqEntries*4
	cqSize := params.cqOff.cqes + params.cqEntries*uint32(unsafe.Sizeof(uringCQE{}))
	ringSize := max(sqSize, cqSize)
	ringSize = (ringSize + pageSize - 1) &^ (pageSize - 1)

	ringMem, err := unix.Mmap(r.fd, offSQRing, int(ringSize),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		fatalf("io_uring ring mmap failed: %v", err)
	}
	r.ringMem = ringMem

	sqeBytes := params.sqEntries * uint32(unsafe.Sizeof(uringSQE{}))
	sqeMem, err := unix.Mmap(r.fd, offSQEs, int(sqeBytes),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		fatalf("io_uring sqe mmap failed: %v", err)
	}
	r.sqeMem = sqeMem

	r.sqHead = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.tail]))
	r.sqMask = *(*uint32)(unsafe.Pointer(&ringMem[params.sqOff.ringMask]))
	r.sqEntries = *(*uint32)(unsafe.Pointer(&ringMem[params.sqOff.ringEntries]))
	r.sqArray = (*uint32)(unsafe.Pointer(&ringMem[params.sqOff.array]))
	r.sqes = unsafe.Slice((*uringSQE)(unsafe.Pointer(&sqeMem[0])), params.sqEntries)

	r.cqHead = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&ringMem[params.cqOff.tail]))
	r.cqMask = *(*uint32)(unsafe.Pointer(&ringMem[params.cqOff.ringMask]))
	r.cqes = unsafe.Slice(
		(*uringCQE)(unsafe.Pointer(&ringMem[params.cqOff.cqes])), params.cqEntries)

	return r
}

// TrySubmit prepares and submits one SQE for t's pending operation.
func (r *uring) TrySubmit(t *task.Task) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := atomic.LoadUint32(r.sqTail)
	head := atomic.LoadUint32(r.sqHead)
	if tail-head >= r.sqEntries {
		return false
	}

	idx := tail & r.sqMask
	sqe := &r.sqes[idx]
	*sqe = uringSQE{}

	switch t.IO.Op {
	case task.OpWrite:
		sqe.opcode = opWrite
	default:
		sqe.opcode = opRead
	}
	sqe.fd = int32(t.IO.FD)
	sqe.addr = uint64(uintptr(t.IO.Buf))
	sqe.len = uint32(t.IO.ReqN)
	sqe.off = uint64(t.IO.Offset)

	token := r.nextToken.Add(1)
	sqe.userData = token
	r.pending.Store(token, t)

	*arrayAt(r.sqArray, idx) = idx
	atomic.StoreUint32(r.sqTail, tail+1)

	for {
		_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER,
			uintptr(r.fd), 1, 0, 0, 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			// Surface the submit failure to the task directly; nothing
			// will ever complete for it otherwise.
			r.pending.Delete(token)
			complete(t, -int(errno))
		}
		return true
	}
}

// Run is the completion worker: block for a CQE, resolve the issuing task,
// hand the result over.
func (r *uring) Run() {
	for {
		head := atomic.LoadUint32(r.cqHead)
		tail := atomic.LoadUint32(r.cqTail)

		for head == tail {
			_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER,
				uintptr(r.fd), 0, 1, enterGetEvents, 0, 0)
			if errno != 0 && errno != unix.EINTR && errno != unix.EAGAIN {
				fatalf("io_uring_enter failed: %v", errno)
			}
			tail = atomic.LoadUint32(r.cqTail)
		}

		cqe := r.cqes[head&r.cqMask]
		atomic.StoreUint32(r.cqHead, head+1)

		t, ok := r.pending.Load(cqe.userData)
		if !ok {
			continue
		}
		r.pending.Delete(cqe.userData)
		complete(t, int(cqe.res))
	}
}

func arrayAt(base *uint32, idx uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(base)) + uintptr(idx)*4))
}

func errnoFromRes(res int) unix.Errno {
	return unix.Errno(-res)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cascade: "+format+"\n", args...)
	os.Exit(1)
}
