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

package gc

import (
	"sync"
	"sync/atomic"
)

// world implements the stop-the-world handshake.
//
// A worker counts as a mutator only while it is actually running a task:
// it enrolls right before resuming one and departs after the task yields,
// so totalThreads is exactly the number of threads the collector must wait
// for. Enrollment is serialized against a stop through addMu, which the
// collector holds across the entire stopped window.
type world struct {
	stopped      atomic.Int32 // 0 = running, 1 = stop requested
	stoppedCount atomic.Int32
	totalThreads atomic.Int32 // mutators only

	mu              sync.Mutex
	mutatorsStopped *sync.Cond
	worldResumed    *sync.Cond

	addMu sync.Mutex
}

var theWorld = newWorld()

func newWorld() *world {
	w := new(world)
	w.mutatorsStopped = sync.NewCond(&w.mu)
	w.worldResumed = sync.NewCond(&w.mu)
	return w
}

// EnrollMutator counts the calling thread as a running mutator. Blocks
// while a stop is in progress.
func EnrollMutator() {
	theWorld.addMu.Lock()
	theWorld.totalThreads.Add(1)
	theWorld.addMu.Unlock()
}

// DepartMutator removes the calling thread from the mutator count.
func DepartMutator() {
	theWorld.totalThreads.Add(-1)
}

// StopRequested reports whether a stop-the-world is pending. Mutators poll
// this at every safepoint.
func StopRequested() bool {
	return theWorld.stopped.Load() != 0
}

// Safepoint parks the calling mutator for the duration of a pending stop.
// The last mutator to park wakes the collector.
func Safepoint() {
	w := theWorld

	w.mu.Lock()
	if w.stoppedCount.Add(1) == w.totalThreads.Load() {
		w.mutatorsStopped.Signal()
	}
	for w.stopped.Load() != 0 {
		w.worldResumed.Wait()
	}
	w.mu.Unlock()
}

// stopTheWorld requests a stop and blocks until every enrolled mutator has
// parked. It leaves addMu held so no new mutator can slip in while the
// world is stopped.
func stopTheWorld() {
	w := theWorld

	w.mu.Lock()
	w.stopped.Store(1)
	for w.stoppedCount.Load() < w.totalThreads.Load() {
		w.mutatorsStopped.Wait()
	}
	w.mu.Unlock()

	w.addMu.Lock()
}

// resumeWorld releases every parked mutator and drops the enrollment lock.
func resumeWorld() {
	w := theWorld

	w.mu.Lock()
	w.stopped.Store(0)
	w.stoppedCount.Store(0)
	w.worldResumed.Broadcast()
	w.mu.Unlock()

	w.addMu.Unlock()
}
