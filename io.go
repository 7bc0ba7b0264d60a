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

package cascade

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/internal/diskio"
	"github.com/cascadelang/cascade/internal/sched"
	"github.com/cascadelang/cascade/internal/task"
)

// Synchronous I/O: plain blocking syscalls with EINTR retries and
// short-read/short-write loops. These block the whole worker thread; the
// async variants below suspend only the calling task.

// SScan reads up to n bytes from stdin into a fresh array. The data is
// NUL-terminated at the number of bytes actually read.
func SScan(n int) *Array {
	if n <= 0 {
		return nil
	}

	buf := AllocArray(1, 1, int64(n)+1)
	if buf == nil {
		return nil
	}

	var r int
	for {
		var err error
		r, err = unix.Read(0, buf.Bytes(n))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil
		}
		break
	}

	buf.Bytes(n + 1)[r] = 0
	return buf
}

// SPrintf formats and writes to stdout, retrying partial writes until the
// whole formatted string is out. Returns the byte count written, -1 on
// error.
func SPrintf(format string, args ...any) int {
	s := fmt.Sprintf(format, args...)
	return writeFull(1, []byte(s))
}

// SFRead reads up to n bytes from fd at offset into buf, looping through
// partial reads until n bytes arrived or EOF. Returns bytes read, -1 on
// error.
func SFRead(fd int, buf *Array, n, offset int) int {
	if fd < 0 || buf == nil || n <= 0 || offset < 0 {
		return -1
	}

	data := buf.Bytes(n)
	total := 0
	for total < n {
		r, err := unix.Pread(fd, data[total:], int64(offset))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1
		}
		if r == 0 {
			break // EOF
		}
		total += r
		offset += r
	}
	return total
}

// SFWrite writes n bytes from buf to fd at offset, looping through partial
// writes. Returns bytes written, -1 on error.
func SFWrite(fd int, buf *Array, n, offset int) int {
	if fd < 0 || buf == nil || n <= 0 || offset < 0 {
		return -1
	}

	data := buf.Bytes(n)
	total := 0
	for total < n {
		w, err := unix.Pwrite(fd, data[total:], int64(offset+total))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1
		}
		total += w
	}
	return total
}

func writeFull(fd int, data []byte) int {
	total := 0
	for total < len(data) {
		w, err := unix.Write(fd, data[total:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1
		}
		total += w
	}
	return total
}

// Asynchronous I/O: the calling task fills its inline I/O record, submits
// on its worker's ring and suspends; the completion worker resumes it.

// currentTask returns the calling task or dies: async I/O has nothing to
// suspend outside one.
func currentTask(op string) *task.Task {
	t := sched.CurrentTask()
	if t == nil {
		RuntimeError("cascade: " + op + " called outside a task")
	}
	return t
}

// AScan reads up to n bytes from stdin, suspending the calling task until
// the read completes. The result is NUL-terminated at the byte count read.
func AScan(n int) *Array {
	if n <= 0 {
		return nil
	}

	t := currentTask("ascan")

	buf := AllocArray(1, 1, int64(n)+1)
	if buf == nil {
		return nil
	}

	t.IO.Reset(0, unsafe.Pointer(buf.Data), n, 0, task.OpRead)
	diskio.Submit(t)

	if t.IO.DoneN < 0 {
		return nil
	}

	done := min(t.IO.DoneN, n)
	buf.Bytes(n + 1)[done] = 0
	return buf
}

// APrintf formats into an arena buffer and writes it to stdout,
// suspending the calling task until the write completes. Returns bytes
// written, -1 on error.
func APrintf(format string, args ...any) int {
	t := currentTask("aprintf")

	s := fmt.Sprintf(format, args...)
	if len(s) == 0 {
		return 0
	}

	// The buffer must outlive the suspension, and the kernel writes from
	// it directly: it comes from the task's arena, kept alive by the task
	// record being a GC root.
	buf := sched.CurrentArena().Allocate(uintptr(len(s)))
	if buf == nil {
		return -1
	}
	copy(unsafe.Slice((*byte)(buf), len(s)), s)

	t.IO.Reset(1, buf, len(s), 0, task.OpWrite)
	diskio.Submit(t)

	if t.IO.DoneN < 0 {
		return -1
	}
	return t.IO.DoneN
}

// AFRead reads up to n bytes from fd at offset into buf, suspending the
// calling task. Partial counts are returned as the kernel reported them.
func AFRead(fd int, buf *Array, n, offset int) int {
	if fd < 0 || buf == nil || n <= 0 || offset < 0 {
		return -1
	}

	t := currentTask("afread")

	t.IO.Reset(fd, unsafe.Pointer(buf.Data), n, offset, task.OpRead)
	diskio.Submit(t)

	if t.IO.DoneN < 0 {
		return -1
	}
	return t.IO.DoneN
}

// AFWrite writes up to n bytes from buf to fd at offset, suspending the
// calling task. Partial counts are returned as the kernel reported them.
func AFWrite(fd int, buf *Array, n, offset int) int {
	if fd < 0 || buf == nil || n <= 0 || offset < 0 {
		return -1
	}

	t := currentTask("afwrite")

	t.IO.Reset(fd, unsafe.Pointer(buf.Data), n, offset, task.OpWrite)
	diskio.Submit(t)

	if t.IO.DoneN < 0 {
		return -1
	}
	return t.IO.DoneN
}
