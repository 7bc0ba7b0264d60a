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

// Package config holds the runtime's tunables.
//
// Tunables ship with defaults matching the runtime's reference constants and
// may be overridden by a YAML file named by the CASCADE_CONFIG environment
// variable. The heap ceiling additionally honours the machine's actual
// memory budget: the cgroup limit when one is set, physical RAM otherwise.
package config

import (
	"os"
	"runtime"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pbnjay/memory"
	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable pointing at an optional YAML
// config file.
const EnvVar = "CASCADE_CONFIG"

const (
	// DefaultWorkers is the last-resort size of the scheduler's worker
	// pool, used only when the CPU budget cannot be read. The working
	// default is the quota-aware thread budget; see defaultWorkers.
	DefaultWorkers = 4

	// maxWorkers caps the pool: each worker owns a collected arena, and
	// the collector's arena registry is bounded.
	maxWorkers = 12

	// DefaultStackSize is the usable stack allocated per task, excluding the
	// guard page.
	DefaultStackSize = 1 << 20

	// DefaultGCPeriod is how often the collector wakes up.
	DefaultGCPeriod = 10 * time.Second

	// DefaultRingDepth is the per-worker disk submission ring depth.
	DefaultRingDepth = 256

	// DefaultHeapMax is the hard cap on a single arena's heap growth.
	DefaultHeapMax = 10 << 30

	// DefaultPreemptInterval is the tick of the optional preemption timer.
	DefaultPreemptInterval = 50 * time.Millisecond
)

// Config is the full set of runtime tunables.
type Config struct {
	Scheduler struct {
		Workers   int `yaml:"workers"`
		StackSize int `yaml:"stack_size"`

		Preempt         bool          `yaml:"preempt"`
		PreemptInterval time.Duration `yaml:"preempt_interval"`
	} `yaml:"scheduler"`

	GC struct {
		Period time.Duration `yaml:"period"`
	} `yaml:"gc"`

	DiskIO struct {
		RingDepth int `yaml:"ring_depth"`
	} `yaml:"diskio"`

	Heap struct {
		MaxBytes uint64 `yaml:"max_bytes"`
	} `yaml:"heap"`
}

// Default returns the built-in configuration: the worker pool sized to the
// CPU quota and the heap ceiling clamped to the machine's memory budget.
func Default() *Config {
	c := new(Config)
	c.Scheduler.Workers = defaultWorkers()
	c.Scheduler.StackSize = DefaultStackSize
	c.Scheduler.PreemptInterval = DefaultPreemptInterval
	c.GC.Period = DefaultGCPeriod
	c.DiskIO.RingDepth = DefaultRingDepth
	c.Heap.MaxBytes = min(uint64(DefaultHeapMax), memoryBudget())
	return c
}

// Load returns the active configuration: the defaults, overlaid with the
// file named by CASCADE_CONFIG if one is set.
func Load() (*Config, error) {
	c := Default()

	path := os.Getenv(EnvVar)
	if path == "" {
		return c, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, err
	}

	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = defaultWorkers()
	}
	if c.Scheduler.StackSize <= 0 {
		c.Scheduler.StackSize = DefaultStackSize
	}
	if c.GC.Period <= 0 {
		c.GC.Period = DefaultGCPeriod
	}
	if c.DiskIO.RingDepth <= 0 {
		c.DiskIO.RingDepth = DefaultRingDepth
	}
	if c.Heap.MaxBytes == 0 {
		c.Heap.MaxBytes = min(uint64(DefaultHeapMax), memoryBudget())
	}

	return c, nil
}

// defaultWorkers sizes the pool from the CPU budget. Boot runs
// maxprocs.Set before loading the config, so GOMAXPROCS already reflects
// the cgroup CPU quota by the time this reads it.
func defaultWorkers() int {
	n := runtime.GOMAXPROCS(0)
	if n <= 0 {
		return DefaultWorkers
	}
	return min(n, maxWorkers)
}

// memoryBudget reports how much memory the process may reasonably claim:
// the cgroup limit when the process runs under one, physical RAM otherwise.
func memoryBudget() uint64 {
	if limit, err := memlimit.FromCgroup(); err == nil && limit > 0 {
		return limit
	}
	if total := memory.TotalMemory(); total > 0 {
		return total
	}
	return DefaultHeapMax
}
