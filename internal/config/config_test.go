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

package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascadelang/cascade/internal/config"
)

// quotaWorkers is what the pool default should come out as: the CPU
// budget GOMAXPROCS reflects, bounded by the arena registry.
func quotaWorkers() int {
	return min(runtime.GOMAXPROCS(0), 12)
}

func TestDefaults(t *testing.T) {
	c := config.Default()

	assert.Equal(t, quotaWorkers(), c.Scheduler.Workers)
	assert.Equal(t, config.DefaultStackSize, c.Scheduler.StackSize)
	assert.Equal(t, config.DefaultGCPeriod, c.GC.Period)
	assert.Equal(t, config.DefaultRingDepth, c.DiskIO.RingDepth)
	assert.False(t, c.Scheduler.Preempt)

	assert.NotZero(t, c.Heap.MaxBytes)
	assert.LessOrEqual(t, c.Heap.MaxBytes, uint64(config.DefaultHeapMax))
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scheduler:
  workers: 2
  stack_size: 262144
  preempt: true
  preempt_interval: 10ms
gc:
  period: 1s
diskio:
  ring_depth: 64
`), 0o600))
	t.Setenv(config.EnvVar, path)

	c, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 2, c.Scheduler.Workers)
	assert.Equal(t, 262144, c.Scheduler.StackSize)
	assert.True(t, c.Scheduler.Preempt)
	assert.Equal(t, 10*time.Millisecond, c.Scheduler.PreemptInterval)
	assert.Equal(t, time.Second, c.GC.Period)
	assert.Equal(t, 64, c.DiskIO.RingDepth)

	// Unset fields keep their defaults.
	assert.NotZero(t, c.Heap.MaxBytes)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(config.EnvVar, filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadNoEnv(t *testing.T) {
	t.Setenv(config.EnvVar, "")

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, quotaWorkers(), c.Scheduler.Workers)
}
