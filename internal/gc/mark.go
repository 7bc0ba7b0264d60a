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
	"unsafe"

	"github.com/cascadelang/cascade/internal/arena"
	"github.com/cascadelang/cascade/internal/debug"
	"github.com/cascadelang/cascade/internal/task"
	"github.com/cascadelang/cascade/internal/xunsafe"
)

const ptrAlign = unsafe.Alignof(uintptr(0))

// markRoots scans every live task's stack and saved register file, marking
// reachable chunks transitively. Runs with the world stopped.
func markRoots() (marked int) {
	for _, t := range roots.Snapshot() {
		if t.State() == task.Finished {
			continue
		}
		marked += markTask(t)
	}
	return marked
}

func markTask(t *task.Task) (marked int) {
	sp := t.Ctx.SP()
	if sp != 0 && (sp < t.StackLo || sp > t.StackHi) {
		// A context whose SP left its declared stack is corrupt; scanning
		// it would chase garbage. Skip the task and say so.
		debug.Log(nil, "mark", "task %d: SP %#x outside stack [%#x,%#x), skipping",
			t.ID, sp, t.StackLo, t.StackHi)
		return 0
	}

	marked += markRegion(t.StackLo, t.StackHi)

	for _, reg := range t.Ctx.Regs() {
		if reg != 0 {
			marked += tryMark(reg)
		}
	}
	return marked
}

// markRegion scans [start, end) as a sequence of machine words and treats
// every non-zero, pointer-aligned value as a candidate reference.
func markRegion(start, end uintptr) (marked int) {
	for p := start; p+ptrAlign <= end; p += ptrAlign {
		val := xunsafe.ByteLoad[uintptr]((*byte)(unsafe.Pointer(p)), 0)
		if val == 0 {
			continue
		}
		marked += tryMark(val)
	}
	return marked
}

// tryMark classifies a single candidate pointer against every collected
// arena. On a hit the chunk is marked and its payload scanned, depth-first.
func tryMark(val uintptr) (marked int) {
	if val%ptrAlign != 0 {
		return 0
	}

	addr := xunsafe.Addr[byte](val)

	arenasMu.Lock()
	snapshot := arenas
	arenasMu.Unlock()

	for _, ar := range snapshot {
		ref := ar.FindChunk(addr)
		if !ref.Valid() {
			continue
		}
		return markChunk(ref)
	}
	return 0
}

// markChunk marks ref and walks its payload iteratively. The worklist
// replaces recursion so that arbitrarily deep object graphs cannot blow the
// collector's own stack.
func markChunk(root arena.Ref) (marked int) {
	if root.Marked() {
		return 0
	}
	root.SetMark()
	marked++

	work := []arena.Ref{root}
	for len(work) > 0 {
		ref := work[len(work)-1]
		work = work[:len(work)-1]

		start, end := ref.Payload()
		for p := start; p.ByteAdd(int(ptrAlign)) <= end; p = p.ByteAdd(int(ptrAlign)) {
			val := xunsafe.ByteLoad[uintptr](p.AssertValid(), 0)
			if val == 0 || val%ptrAlign != 0 {
				continue
			}

			addr := xunsafe.Addr[byte](val)
			for _, ar := range arenas {
				child := ar.FindChunk(addr)
				if !child.Valid() || child.Marked() {
					continue
				}
				child.SetMark()
				marked++
				work = append(work, child)
				break
			}
		}
	}
	return marked
}
