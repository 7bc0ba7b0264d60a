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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestStopTheWorldHandshake drives two fake mutators through the park
// protocol: both must be parked before Collect proceeds, and both resume
// afterwards.
func TestStopTheWorldHandshake(t *testing.T) {
	const mutators = 2

	var (
		parked  atomic.Int32
		resumed atomic.Int32
		done    atomic.Bool
		wg      sync.WaitGroup
	)

	for range mutators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EnrollMutator()
			defer DepartMutator()

			for !done.Load() {
				if StopRequested() {
					parked.Add(1)
					Safepoint()
					resumed.Add(1)
				}
			}
		}()
	}

	// Give the mutators a moment to spin up, then stop the world around
	// an empty collection.
	time.Sleep(10 * time.Millisecond)
	Collect()

	done.Store(true)
	wg.Wait()

	assert.Equal(t, int32(mutators), parked.Load(), "every mutator parked")
	assert.Equal(t, int32(mutators), resumed.Load(), "every mutator resumed")
}

// TestEnrollBlockedDuringStop verifies the add-lock rule: a mutator cannot
// enroll while the world is stopped.
func TestEnrollBlockedDuringStop(t *testing.T) {
	stopTheWorld()

	enrolled := make(chan struct{})
	go func() {
		EnrollMutator()
		close(enrolled)
		DepartMutator()
	}()

	select {
	case <-enrolled:
		t.Fatal("enrollment slipped through a stopped world")
	case <-time.After(20 * time.Millisecond):
	}

	resumeWorld()

	select {
	case <-enrolled:
	case <-time.After(time.Second):
		t.Fatal("enrollment never resumed")
	}
}
