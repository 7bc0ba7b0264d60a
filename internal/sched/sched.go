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

// Package sched multiplexes user-level tasks over a fixed pool of worker
// OS threads.
//
// Each worker owns a ready queue and a wait list and runs a cooperative
// loop: pop a task, enroll as a mutator, switch into the task, and deal
// with the aftermath when the task switches back. Tasks are placed on a
// random worker at creation and never migrate; there is no work stealing.
package sched

import (
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	rtdebug "runtime/debug"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/timandy/routine"

	"github.com/cascadelang/cascade/internal/arena"
	"github.com/cascadelang/cascade/internal/ctxt"
	"github.com/cascadelang/cascade/internal/debug"
	"github.com/cascadelang/cascade/internal/gc"
	"github.com/cascadelang/cascade/internal/task"
)

// Worker is one kernel thread of the scheduler pool.
type Worker struct {
	ID int

	// Where a task switch returns to; the worker loop lives on this
	// context's native goroutine stack.
	SchedCtx ctxt.Context

	// Currently running task, nil between tasks.
	Current *task.Task

	Ready *task.ReadyQueue

	// Tasks owned by this worker that are parked waiting on I/O.
	Wait *task.List

	// Program allocations made by tasks on this worker come from here.
	Arena *arena.Arena

	preempt atomic.Bool
}

var (
	workers []*Worker

	// Live (unfinished) tasks across all workers. Poison is broadcast when
	// this hits zero.
	taskCount atomic.Int64

	nextTaskID atomic.Uint64

	stackSize int

	// The worker running the calling OS thread, nil on non-worker threads.
	tlsWorker = routine.NewThreadLocal[*Worker]()

	joinWG sync.WaitGroup
)

// Init creates the worker pool and starts its threads.
func Init(poolSize, taskStackSize int) {
	stackSize = taskStackSize

	workers = make([]*Worker, poolSize)
	for i := range workers {
		workers[i] = &Worker{
			ID:    i,
			Ready: task.NewReadyQueue(),
			Wait:  task.NewList(task.SlotWait),
		}
	}

	joinWG.Add(poolSize)
	for _, w := range workers {
		go w.run()
	}
}

// Workers returns the pool. The slice is fixed after Init.
func Workers() []*Worker { return workers }

// ByID returns the worker with the given id.
func ByID(id int) *Worker { return workers[id] }

// CurrentWorker returns the worker bound to the calling thread, or nil when
// called off the pool.
func CurrentWorker() *Worker { return tlsWorker.Get() }

// CurrentTask returns the task running on the calling thread, or nil.
func CurrentTask() *task.Task {
	if w := tlsWorker.Get(); w != nil {
		return w.Current
	}
	return nil
}

// CurrentArena returns the arena program allocations on this thread come
// from: the worker's own arena on the pool, the global arena elsewhere.
func CurrentArena() *arena.Arena {
	if w := tlsWorker.Get(); w != nil && w.Arena != nil {
		return w.Arena
	}
	return gc.GlobalArena()
}

// Wait blocks until every worker has exited, which happens once the live
// task count reaches zero.
func Wait() { joinWG.Wait() }

// run is the per-worker scheduler loop.
func (w *Worker) run() {
	defer joinWG.Done()

	// A worker is an OS thread: tasks switch stacks underneath it, so the
	// goroutine must never migrate.
	runtime.LockOSThread()
	tlsWorker.Set(w)

	// Guard-page hits must be observable as faults, not silent death.
	rtdebug.SetPanicOnFault(true)

	w.Arena = gc.CreateArena()

	for {
		t := w.Ready.Pop()
		if t == nil {
			return // poison
		}

		gc.EnrollMutator()

		// No-op unless the task was parked; completion workers push tasks
		// that may still sit on the wait list.
		w.Wait.Remove(t)

		t.SetState(task.Running)
		w.resume(t)

		if t.State() == task.Finished {
			destroy(t)
			if taskCount.Add(-1) == 0 {
				for _, other := range workers {
					other.Ready.Push(nil)
				}
				gc.DepartMutator()
				return
			}
		}

		gc.DepartMutator()
	}
}

// resume switches into t and returns when the task switches back.
func (w *Worker) resume(t *task.Task) {
	w.Current = t
	ctxt.Switch(&w.SchedCtx, &t.Ctx)
	w.Current = nil
}

// trampoline is the first frame of every task. It runs on the task's own
// stack, invokes the entry function, and hands control back for good.
//
// Memory faults inside the task (a guard-page hit included) surface as
// panics thanks to SetPanicOnFault; they are fatal, reported with a stack
// and the conventional 128+SIGSEGV exit status.
func trampoline() {
	w := tlsWorker.Get()
	t := w.Current

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "task %d: fatal fault: %v\n", t.ID, r)
			fmt.Fprintln(os.Stderr, "===== STACK TRACE =====")
			fmt.Fprint(os.Stderr, debug.Stack(3))
			os.Exit(128 + 11)
		}
	}()

	t.Fn(t.Args)

	t.SetState(task.Finished)
	for {
		ctxt.Switch(&t.Ctx, &w.SchedCtx)
	}
}

// Spawn creates a task for fn, places it on a random worker's ready queue
// and returns it. Each argument is pointer-sized, boxed by the caller.
func Spawn(fn func(args []unsafe.Pointer), args []unsafe.Pointer) *task.Task {
	t := &task.Task{
		ID:   nextTaskID.Add(1) - 1,
		Fn:   fn,
		Args: args,
	}

	lo, hi, mem := mapStack(stackSize)
	t.StackMem = mem
	t.StackLo, t.StackHi = lo, hi
	t.Ctx.Make(trampoline, lo, hi)

	wid := rand.IntN(len(workers))
	t.WorkerID = wid

	gc.RegisterRoot(t)
	taskCount.Add(1)

	debug.Log([]any{"task %d", t.ID}, "spawn", "worker %d, stack %#x..%#x", wid, lo, hi)

	workers[wid].Ready.Push(t)
	return t
}

// destroy tears down a finished task observed by its worker.
func destroy(t *task.Task) {
	gc.UnregisterRoot(t)
	unmapStack(t.StackMem)
	t.StackMem = nil
}
