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

package sched

import (
	"time"

	"github.com/cascadelang/cascade/internal/ctxt"
	"github.com/cascadelang/cascade/internal/gc"
	"github.com/cascadelang/cascade/internal/task"
)

// TaskYield suspends the current task and returns to the scheduler loop.
//
// The task is not re-enqueued: the caller must already have parked it
// somewhere something will push it back from (a wait list, a sync
// primitive's waiter queue).
func TaskYield() {
	w := tlsWorker.Get()
	t := w.Current
	if t == nil {
		return
	}
	t.SetState(task.Yielded)
	ctxt.Switch(&t.Ctx, &w.SchedCtx)
}

// Park places the current task on its worker's wait list. The matching
// TaskYield hands the thread back to the scheduler; a completion worker
// makes the task runnable again.
func Park(t *task.Task) {
	ByID(t.WorkerID).Wait.Push(t)
}

// YieldNow requeues the current task behind everything already runnable on
// its worker and gives up the thread.
func YieldNow() {
	w := tlsWorker.Get()
	if w == nil || w.Current == nil {
		return
	}
	w.Ready.Push(w.Current)
	TaskYield()
}

// SelfYield is the cooperative safepoint the compiler inserts at function
// entry. It honours a pending world stop, and otherwise gives up the
// thread only when this worker's preemption flag was raised.
func SelfYield() {
	w := tlsWorker.Get()
	if w == nil || w.Current == nil {
		return
	}

	if !gc.StopRequested() {
		if w.preempt.Swap(false) {
			w.Ready.Push(w.Current)
			TaskYield()
		}
		return
	}

	gc.Safepoint()
}

// StartPreemption arms every worker's preemption timer. The flag is the
// only thing the timer touches; the next SelfYield observes it.
func StartPreemption(interval time.Duration) {
	for _, w := range workers {
		go func(w *Worker) {
			tick := time.NewTicker(interval)
			defer tick.Stop()
			for range tick.C {
				w.preempt.Store(true)
			}
		}(w)
	}
}
