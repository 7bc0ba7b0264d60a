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

package task

import (
	"sync"

	"github.com/cascadelang/cascade/internal/sync2"
)

// ReadyQueue is the thread-safe FIFO a worker pops runnable tasks from.
//
// A nil entry is the poison pill: Pop returns it to the caller, which is
// how workers are told to exit.
type ReadyQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	head, tail *qnode
}

type qnode struct {
	t    *Task
	next *qnode
}

// Queue nodes churn at every push/pop; recycle them.
var qnodes = sync2.Pool[qnode]{
	Reset: func(n *qnode) { n.t, n.next = nil, nil },
}

// NewReadyQueue returns an empty queue.
func NewReadyQueue() *ReadyQueue {
	q := new(ReadyQueue)
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends t and wakes one waiter. t may be nil (poison).
func (q *ReadyQueue) Push(t *Task) {
	n := qnodes.Get()
	n.t = t

	q.mu.Lock()
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		q.tail.next = n
		q.tail = n
	}
	q.cond.Signal()
	q.mu.Unlock()
}

// Pop blocks until an entry is available and dequeues it. A nil result is
// the poison pill.
func (q *ReadyQueue) Pop() *Task {
	q.mu.Lock()
	for q.head == nil {
		q.cond.Wait()
	}

	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.mu.Unlock()

	t := n.t
	qnodes.Put(n)
	return t
}

// TryPop dequeues without blocking; ok is false when the queue is empty.
func (q *ReadyQueue) TryPop() (t *Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.head
	if n == nil {
		return nil, false
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	t = n.t
	qnodes.Put(n)
	return t, true
}
