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

	"github.com/cascadelang/cascade/internal/sched"
	"github.com/cascadelang/cascade/internal/task"
)

// Task-aware synchronisation primitives. A task that loses the race parks
// on the primitive's waiter queue and yields its worker; unlocking moves a
// waiter back onto its owner's ready queue. The worker thread is never
// blocked on someone else's critical section.

// Mutex is a mutual-exclusion lock for tasks.
type Mutex struct {
	mu      sync.Mutex
	held    bool
	waiters *task.ReadyQueue
}

// NewMutex returns an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{waiters: task.NewReadyQueue()}
}

// Lock acquires the mutex, suspending the calling task while someone else
// holds it.
func (m *Mutex) Lock() {
	t := currentTask("mutex_lock")

	for {
		m.mu.Lock()
		if !m.held {
			m.held = true
			m.mu.Unlock()
			return
		}

		m.waiters.Push(t)
		m.mu.Unlock()
		sched.TaskYield()
	}
}

// Unlock releases the mutex and wakes the longest-waiting task, which
// competes for the lock again when its worker resumes it.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	m.held = false
	if w, ok := m.waiters.TryPop(); ok {
		makeReady(w)
	}
	m.mu.Unlock()
}

// RWMutex is a readers-writer lock for tasks. Writers take priority:
// arriving readers queue behind a waiting writer.
type RWMutex struct {
	mu sync.Mutex

	readers        int
	writer         bool
	writersWaiting int

	readQ  *task.ReadyQueue
	writeQ *task.ReadyQueue
}

// NewRWMutex returns an unlocked readers-writer lock.
func NewRWMutex() *RWMutex {
	return &RWMutex{
		readQ:  task.NewReadyQueue(),
		writeQ: task.NewReadyQueue(),
	}
}

// RLock acquires the lock shared.
func (rw *RWMutex) RLock() {
	t := currentTask("rwmutex_rlock")

	for {
		rw.mu.Lock()
		if !rw.writer && rw.writersWaiting == 0 {
			rw.readers++
			rw.mu.Unlock()
			return
		}

		rw.readQ.Push(t)
		rw.mu.Unlock()
		sched.TaskYield()
	}
}

// RUnlock releases a shared hold; the last reader out wakes one writer.
func (rw *RWMutex) RUnlock() {
	rw.mu.Lock()
	rw.readers--
	if rw.readers == 0 {
		if w, ok := rw.writeQ.TryPop(); ok {
			rw.writersWaiting--
			makeReady(w)
		}
	}
	rw.mu.Unlock()
}

// Lock acquires the lock exclusive.
func (rw *RWMutex) Lock() {
	t := currentTask("rwmutex_lock")

	for {
		rw.mu.Lock()
		if !rw.writer && rw.readers == 0 {
			rw.writer = true
			rw.mu.Unlock()
			return
		}

		rw.writersWaiting++
		rw.writeQ.Push(t)
		rw.mu.Unlock()
		sched.TaskYield()
	}
}

// Unlock releases an exclusive hold: the next writer gets the worker,
// otherwise every parked reader does.
func (rw *RWMutex) Unlock() {
	rw.mu.Lock()
	rw.writer = false

	if w, ok := rw.writeQ.TryPop(); ok {
		rw.writersWaiting--
		makeReady(w)
	} else {
		for {
			r, ok := rw.readQ.TryPop()
			if !ok {
				break
			}
			makeReady(r)
		}
	}
	rw.mu.Unlock()
}

// makeReady pushes a woken task back onto its owning worker's ready queue.
func makeReady(t *task.Task) {
	sched.ByID(t.WorkerID).Ready.Push(t)
}
