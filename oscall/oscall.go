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

// Package oscall exposes the runtime's thin syscall surface.
//
// All functions are direct wrappers: no retries, no buffering, no
// allocation policy. Failures return -1 with the errno preserved for
// [Errno] to report, mirroring the C calling convention compiled programs
// expect.
package oscall

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Platform constants re-exported under the runtime's OS_ names.
const (
	OS_RDONLY = unix.O_RDONLY
	OS_WRONLY = unix.O_WRONLY
	OS_RDWR   = unix.O_RDWR
	OS_APPEND = unix.O_APPEND
	OS_CREAT  = unix.O_CREAT
	OS_EXCL   = unix.O_EXCL
	OS_TRUNC  = unix.O_TRUNC

	OS_SEEK_SET = 0
	OS_SEEK_CUR = 1
	OS_SEEK_END = 2

	OS_STDIN  = 0
	OS_STDOUT = 1
	OS_STDERR = 2
)

// The last errno observed by any wrapper. This is one process-wide slot, not
// one per thread: a failure on another thread overwrites it. The runtime's tasks
// do not migrate mid-call, so goroutine-keyed storage is unnecessary; a
// single slot per OS thread id would be overkill too. A plain mutex-guarded
// slot matches the "inspect immediately after the call" contract.
var (
	errnoMu   sync.Mutex
	lastErrno unix.Errno
)

func fail(err error) int {
	errnoMu.Lock()
	if errno, ok := err.(unix.Errno); ok {
		lastErrno = errno
	} else {
		lastErrno = unix.EIO
	}
	errnoMu.Unlock()
	return -1
}

// Errno returns the errno of the most recent failed wrapper call.
func Errno() int {
	errnoMu.Lock()
	defer errnoMu.Unlock()
	return int(lastErrno)
}

// Open opens path with the given OS_ flags and mode.
func Open(path string, flags int, mode uint32) int {
	fd, err := unix.Open(path, flags, mode)
	if err != nil {
		return fail(err)
	}
	return fd
}

// Close closes a descriptor.
func Close(fd int) int {
	if err := unix.Close(fd); err != nil {
		return fail(err)
	}
	return 0
}

// Read reads up to n bytes into buf.
func Read(fd int, buf unsafe.Pointer, n int) int {
	r, err := unix.Read(fd, unsafe.Slice((*byte)(buf), n))
	if err != nil {
		return fail(err)
	}
	return r
}

// Write writes n bytes from buf.
func Write(fd int, buf unsafe.Pointer, n int) int {
	w, err := unix.Write(fd, unsafe.Slice((*byte)(buf), n))
	if err != nil {
		return fail(err)
	}
	return w
}

// Pread reads at an explicit offset.
func Pread(fd int, buf unsafe.Pointer, n int, off int64) int {
	r, err := unix.Pread(fd, unsafe.Slice((*byte)(buf), n), off)
	if err != nil {
		return fail(err)
	}
	return r
}

// Pwrite writes at an explicit offset.
func Pwrite(fd int, buf unsafe.Pointer, n int, off int64) int {
	w, err := unix.Pwrite(fd, unsafe.Slice((*byte)(buf), n), off)
	if err != nil {
		return fail(err)
	}
	return w
}

// Seek repositions a descriptor's offset.
func Seek(fd int, off int64, whence int) int64 {
	pos, err := unix.Seek(fd, off, whence)
	if err != nil {
		return int64(fail(err))
	}
	return pos
}

// Pipe creates a pipe, returning the read and write descriptors.
func Pipe() (r, w int) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return fail(err), -1
	}
	return fds[0], fds[1]
}

// Getpid returns the process id.
func Getpid() int { return unix.Getpid() }

// Getppid returns the parent process id.
func Getppid() int { return unix.Getppid() }

// Exit terminates the process immediately.
func Exit(code int) { unix.Exit(code) }
