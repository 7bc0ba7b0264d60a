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

// Package diskio drives file and standard-stream I/O through one
// submission/completion ring per scheduler worker.
//
// On Linux each ring is a raw io_uring; elsewhere a blocking fallback ring
// provides the same submit/complete contract. Either way a dedicated
// completion worker thread collects results, fills the issuing task's I/O
// record and pushes the task back onto its worker's ready queue.
package diskio

import (
	"github.com/cascadelang/cascade/internal/sched"
	"github.com/cascadelang/cascade/internal/task"
)

// ring is the per-worker submission/completion contract.
type ring interface {
	// TrySubmit queues the operation described by t's I/O record. Returns
	// false when the ring is full.
	TrySubmit(t *task.Task) bool

	// Run drives completions forever. Runs on a dedicated thread.
	Run()
}

var rings []ring

// Init creates one ring of the given depth per worker and starts their
// completion workers. Ring setup failure during startup is fatal.
func Init(workerCount, depth int) {
	rings = make([]ring, workerCount)
	for i := range rings {
		rings[i] = newRing(i, depth)
		go rings[i].Run()
	}
}

// Submit issues the operation in t's I/O record on t's worker ring and
// suspends the task until the completion worker resumes it.
//
// The task parks on its worker's wait list before the submission becomes
// visible, so a completion can never race past the yield.
func Submit(t *task.Task) {
	r := rings[t.WorkerID]
	for {
		sched.Park(t)
		if r.TrySubmit(t) {
			sched.TaskYield()
			return
		}

		// Ring full: back off cooperatively and retry. The scheduler
		// unparks the task when it next resumes it.
		sched.ByID(t.WorkerID).Ready.Push(t)
		sched.TaskYield()
	}
}

// complete finishes one operation: res is the kernel-reported byte count,
// negative errno on failure.
func complete(t *task.Task, res int) {
	if res < 0 {
		t.IO.Errno = errnoFromRes(res)
		t.IO.DoneN = -1
	} else {
		t.IO.DoneN = res
		t.IO.Errno = 0
	}
	t.IO.Done = true

	sched.ByID(t.WorkerID).Ready.Push(t)
}
