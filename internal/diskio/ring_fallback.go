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

//go:build !linux

package diskio

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade/internal/task"
)

// threadRing is the blocking fallback for hosts without io_uring: a bounded
// submission channel drained by the completion worker, which performs each
// operation with plain positional syscalls.
type threadRing struct {
	workerID int
	subs     chan *task.Task
}

func newRing(workerID, depth int) ring {
	return &threadRing{
		workerID: workerID,
		subs:     make(chan *task.Task, depth),
	}
}

func (r *threadRing) TrySubmit(t *task.Task) bool {
	select {
	case r.subs <- t:
		return true
	default:
		return false
	}
}

func (r *threadRing) Run() {
	for t := range r.subs {
		buf := unsafe.Slice((*byte)(t.IO.Buf), t.IO.ReqN)

		var (
			n   int
			err error
		)
		switch t.IO.Op {
		case task.OpWrite:
			n, err = unix.Pwrite(t.IO.FD, buf, int64(t.IO.Offset))
			if err == unix.ESPIPE {
				n, err = unix.Write(t.IO.FD, buf)
			}
		default:
			n, err = unix.Pread(t.IO.FD, buf, int64(t.IO.Offset))
			if err == unix.ESPIPE {
				n, err = unix.Read(t.IO.FD, buf)
			}
		}

		if err != nil {
			if errno, ok := err.(unix.Errno); ok {
				complete(t, -int(errno))
			} else {
				complete(t, -int(unix.EIO))
			}
			continue
		}
		complete(t, n)
	}
}

func errnoFromRes(res int) unix.Errno {
	return unix.Errno(-res)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cascade: "+format+"\n", args...)
	os.Exit(1)
}
