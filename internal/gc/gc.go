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

// Package gc implements the tracing collector: a periodic, stop-the-world,
// conservative mark-and-sweep over the arenas in internal/arena.
//
// Roots are the stacks and saved register files of every live task. Any
// word-aligned value in a root that lands inside a known heap region and
// hits an in-use chunk keeps that chunk (and everything reachable from its
// payload) alive for the cycle; everything else in use gets released back
// through the allocator.
package gc

import (
	"sync"
	"time"

	"github.com/cascadelang/cascade/internal/arena"
	"github.com/cascadelang/cascade/internal/debug"
	"github.com/cascadelang/cascade/internal/task"
)

// maxArenas bounds the per-worker arena registry.
const maxArenas = 12

var (
	arenasMu sync.Mutex
	arenas   []*arena.Arena

	// The global arena backs the runtime's own bookkeeping. It is
	// deliberately outside the collected set: the runtime releases its own
	// allocations explicitly.
	global *arena.Arena

	heapLimit uint64

	roots = task.NewList(task.SlotRoot)
)

// Init sets the per-arena heap ceiling and creates the global arena.
func Init(limit uint64) *arena.Arena {
	arenasMu.Lock()
	defer arenasMu.Unlock()

	heapLimit = limit
	if global == nil {
		global = arena.New(limit)
	}
	return global
}

// GlobalArena returns the arena backing runtime-internal allocations,
// creating it on first use when Init has not run yet.
func GlobalArena() *arena.Arena {
	arenasMu.Lock()
	defer arenasMu.Unlock()

	if global == nil {
		global = arena.New(heapLimit)
	}
	return global
}

// CreateArena creates and registers a collected arena. Program allocations
// come from these, one per worker.
func CreateArena() *arena.Arena {
	arenasMu.Lock()
	defer arenasMu.Unlock()

	if len(arenas) >= maxArenas {
		return nil
	}

	ar := arena.New(heapLimit)
	arenas = append(arenas, ar)
	return ar
}

// RegisterRoot enlists a task for root scanning. Called on task creation.
func RegisterRoot(t *task.Task) { roots.Push(t) }

// UnregisterRoot delists a task. Called on task destruction.
func UnregisterRoot(t *task.Task) { roots.Remove(t) }

// Start launches the collector thread; it wakes every period and runs one
// full stop/mark/sweep/resume cycle.
func Start(period time.Duration) {
	if period <= 0 {
		period = 10 * time.Second
	}

	go func() {
		for {
			time.Sleep(period)
			Collect()
		}
	}()
}

// Collect runs one synchronous collection cycle.
func Collect() {
	stopTheWorld()

	marked := markRoots()
	freed := 0
	arenasMu.Lock()
	snapshot := make([]*arena.Arena, len(arenas))
	copy(snapshot, arenas)
	arenasMu.Unlock()
	for _, ar := range snapshot {
		freed += ar.SweepChunks()
	}

	resumeWorld()

	debug.Log(nil, "collect", "marked %d chunks, freed %d", marked, freed)
}
