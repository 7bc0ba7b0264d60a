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
	"sync"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cascadelang/cascade/internal/config"
	"github.com/cascadelang/cascade/internal/debug"
	"github.com/cascadelang/cascade/internal/diskio"
	"github.com/cascadelang/cascade/internal/gc"
	"github.com/cascadelang/cascade/internal/netio"
	"github.com/cascadelang/cascade/internal/sched"
)

var (
	bootOnce sync.Once

	// BootID identifies this runtime instance in traces and fatal reports.
	BootID uuid.UUID
)

// Boot initialises the runtime and runs start as task zero, blocking until
// every task has finished.
//
// Initialisation order: global arena, disk rings, net poller, scheduler
// workers, collector. The process is expected to exit shortly after Boot
// returns.
func Boot(start func()) {
	bootOnce.Do(initRuntime)

	Spawn(func([]unsafe.Pointer) { start() })

	sched.Wait()
}

func initRuntime() {
	// Size the thread budget to the CPU quota before any pool spins up.
	_, _ = maxprocs.Set()

	cfg, err := config.Load()
	if err != nil {
		RuntimeError("bad runtime config: " + err.Error())
	}

	BootID = uuid.New()
	debug.Log(nil, "boot", "instance %s, %d workers", BootID, cfg.Scheduler.Workers)

	gc.Init(cfg.Heap.MaxBytes)

	diskio.Init(cfg.Scheduler.Workers, cfg.DiskIO.RingDepth)
	netio.Init()

	sched.Init(cfg.Scheduler.Workers, cfg.Scheduler.StackSize)

	gc.Start(cfg.GC.Period)

	if cfg.Scheduler.Preempt {
		sched.StartPreemption(cfg.Scheduler.PreemptInterval)
	}
}

// Spawn creates a task running fn and schedules it on a random worker.
// Every argument is passed by pointer, boxed into a pointer-sized slot.
func Spawn(fn func(args []unsafe.Pointer), args ...unsafe.Pointer) {
	sched.Spawn(fn, args)
}

// SelfYield is the cooperative safepoint the compiler inserts at function
// entry: it honours a pending collector stop and, when preemption is
// armed, gives up the worker.
func SelfYield() {
	sched.SelfYield()
}

// Yield unconditionally requeues the calling task behind everything
// already runnable on its worker.
func Yield() {
	sched.YieldNow()
}

// GC forces a synchronous collection cycle. When called from a task the
// caller steps out of the mutator count for the duration, since it cannot
// park at a safepoint while it is the one collecting.
func GC() {
	if sched.CurrentTask() == nil {
		gc.Collect()
		return
	}

	gc.DepartMutator()
	gc.Collect()
	gc.EnrollMutator()
}
