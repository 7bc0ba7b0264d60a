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

package cascade_test

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
	"unsafe"

	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/cascadelang/cascade"
	"github.com/cascadelang/cascade/atomics"
)

// failures collects assertion messages from inside tasks; testing.T is not
// safe to use from a task that outlives the harness's expectations.
type failures struct {
	mu   sync.Mutex
	msgs []string
}

func (f *failures) addf(format string, args ...any) {
	f.mu.Lock()
	f.msgs = append(f.msgs, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

// waitZero spins the calling task until the counter drains, yielding its
// worker so the tasks it waits on can run there too.
func waitZero(counter *int64) {
	for atomics.LoadInt64(counter) > 0 {
		cascade.Yield()
	}
}

// TestRuntime boots the full runtime once and drives every end-to-end
// scenario inside it: the scheduler, both I/O paths, the sync primitives
// and a forced collection.
func TestRuntime(t *testing.T) {
	// Pipe "dummy input from user\n" into stdin before the rings spin up.
	var stdinPipe [2]int
	require.NoError(t, unix.Pipe(stdinPipe[:]))
	_, err := unix.Write(stdinPipe[1], []byte("dummy input from user\n"))
	require.NoError(t, err)
	require.NoError(t, unix.Dup2(stdinPipe[0], 0))

	var fails failures

	// E1 clients: plain goroutines outside the runtime, dialling once the
	// listener is up.
	const conns = 100
	listening := make(chan struct{})

	var clients errgroup.Group
	clients.SetLimit(16)
	go func() {
		<-listening
		for range conns {
			clients.Go(func() error {
				var conn net.Conn
				var err error
				for range 50 {
					conn, err = net.Dial("tcp", "127.0.0.1:8000")
					if err == nil {
						break
					}
					time.Sleep(10 * time.Millisecond)
				}
				if err != nil {
					return err
				}
				defer conn.Close()
				_, err = conn.Write([]byte("hello\n"))
				return err
			})
		}
	}()

	cascade.Boot(func() {
		runSpawnChain(&fails)
		runSpawnFanout(&fails)
		runAsyncStdio(&fails)
		runRWMutexStress(&fails)
		runGCSurvival(&fails)
		runNetEcho(&fails, listening, conns)
	})

	require.NoError(t, clients.Wait())

	for _, msg := range fails.msgs {
		t.Error(msg)
	}
}

// runSpawnChain spawns a chain of tasks, each creating the next; the
// program terminating at all proves liveness.
func runSpawnChain(f *failures) {
	const depth = 100

	var reached int64 = 1
	var chain func(args []unsafe.Pointer)
	chain = func(args []unsafe.Pointer) {
		n := *(*int)(args[0])
		if n == 0 {
			atomics.StoreInt64(&reached, 0)
			return
		}
		next := n - 1
		cascade.Spawn(chain, unsafe.Pointer(&next))
	}

	n := depth
	cascade.Spawn(chain, unsafe.Pointer(&n))
	waitZero(&reached)
}

// runSpawnFanout spawns tasks that complete immediately, with boxed
// arguments observed by each.
func runSpawnFanout(f *failures) {
	const n = 100

	var remaining int64 = n
	for i := range n {
		arg := i
		cascade.Spawn(func(args []unsafe.Pointer) {
			got := *(*int)(args[0])
			if got != arg {
				f.addf("fanout: arg %d arrived as %d", arg, got)
			}
			atomics.SubInt64(&remaining, 1)
		}, unsafe.Pointer(&arg))
	}
	waitZero(&remaining)
}

// runAsyncStdio exercises ascan against the piped stdin and aprintf's
// return contract.
func runAsyncStdio(f *failures) {
	var remaining int64 = 1
	cascade.Spawn(func([]unsafe.Pointer) {
		defer atomics.SubInt64(&remaining, 1)

		arr := cascade.AScan(11)
		if arr == nil {
			f.addf("ascan returned nil")
			return
		}
		got := string(arr.Bytes(11))
		if got != "dummy input" {
			f.addf("ascan: got %q, want %q", got, "dummy input")
		}

		n := cascade.APrintf("hello %d %s", 42, "world")
		if n != 14 {
			f.addf("aprintf: wrote %d bytes, want 14", n)
		}
	})
	waitZero(&remaining)
}

// runRWMutexStress runs R=W=10 tasks over one rwmutex and counts
// exclusion violations with atomic observers.
func runRWMutexStress(f *failures) {
	const (
		readers = 10
		writers = 10
		iters   = 100
	)

	rw := cascade.NewRWMutex()

	var (
		activeReaders int64
		activeWriters int64
		violations    int64
		remaining     int64 = readers + writers
	)

	for range readers {
		cascade.Spawn(func([]unsafe.Pointer) {
			defer atomics.SubInt64(&remaining, 1)
			for range iters {
				rw.RLock()
				atomics.AddInt64(&activeReaders, 1)
				if atomics.LoadInt64(&activeWriters) != 0 {
					atomics.AddInt64(&violations, 1)
				}
				atomics.SubInt64(&activeReaders, 1)
				rw.RUnlock()
				cascade.Yield()
			}
		})
	}

	for range writers {
		cascade.Spawn(func([]unsafe.Pointer) {
			defer atomics.SubInt64(&remaining, 1)
			for range iters {
				rw.Lock()
				if atomics.AddInt64(&activeWriters, 1) != 0 {
					atomics.AddInt64(&violations, 1)
				}
				if atomics.LoadInt64(&activeReaders) != 0 {
					atomics.AddInt64(&violations, 1)
				}
				atomics.SubInt64(&activeWriters, 1)
				rw.Unlock()
				cascade.Yield()
			}
		})
	}

	waitZero(&remaining)

	if v := atomics.LoadInt64(&violations); v != 0 {
		f.addf("rwmutex: %d exclusion violations", v)
	}
}

// runGCSurvival checks the soundness direction observable from inside: a
// chunk reachable from this task's stack survives a forced collection with
// its contents intact.
func runGCSurvival(f *failures) {
	p := cascade.Alloc(256)
	if p == nil {
		f.addf("gc: alloc failed")
		return
	}

	b := unsafe.Slice((*byte)(p), 256)
	for i := range b {
		b[i] = byte(i)
	}

	cascade.GC()

	for i := range b {
		if b[i] != byte(i) {
			f.addf("gc: reachable chunk lost byte %d", i)
			return
		}
	}
}

// runNetEcho is scenario E1: one listener, 100 acceptor tasks, 100
// external clients each writing "hello\n" and closing.
func runNetEcho(f *failures, listening chan<- struct{}, conns int) {
	lfd := cascade.NetListen("127.0.0.1", 8000, 4096, nil)
	if lfd < 0 {
		f.addf("net_listen failed")
		close(listening)
		return
	}
	close(listening)

	var remaining = int64(conns)
	for range conns {
		cascade.Spawn(func([]unsafe.Pointer) {
			defer atomics.SubInt64(&remaining, 1)

			cfd := cascade.NetAccept(lfd)
			if cfd < 0 {
				f.addf("net_accept failed")
				return
			}
			defer unix.Close(cfd)

			buf := cascade.AllocArray(1, 1, 16)
			n := cascade.NetRead(cfd, buf, 9)
			if n < len("hello\n") {
				f.addf("net_read: got %d bytes", n)
				return
			}
			if got := string(buf.Bytes(n)); !strings.HasPrefix(got, "hello\n") {
				f.addf("net_read: got %q", got)
			}
		})
	}

	waitZero(&remaining)
	unix.Close(lfd)
}
