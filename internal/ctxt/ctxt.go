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

// Package ctxt implements the machine-level context switch tasks run on.
//
// The contract is small and per-platform assembly implements all of it:
// [Switch] stores the caller's callee-saved register file (plus SP and the
// return PC) into from, then loads to's file and jumps. [Make] primes a
// fresh context so its first resume lands at an entry function on the
// task's own stack; the entry function must never return, it must switch
// away instead.
//
// The collector reads contexts through [Context.Regs]: whatever layout the
// platform produces, every saved word is exposed for conservative scanning
// alongside the stack bounds.
package ctxt

import "github.com/cascadelang/cascade/internal/xunsafe"

// Shared register-file indices. The remaining slots are platform-specific
// callee-saved registers laid out by the assembly.
const (
	RegPC = 0
	RegSP = 1
)

// Context is a saved register file plus the bounds of the stack it runs on.
type Context struct {
	_ xunsafe.NoCopy

	regs [numRegs]uintptr

	stackLo, stackHi uintptr
}

// Switch saves the current register file at from and loads the one at to.
// It returns when something switches back into from.
//
// Implemented in assembly.
//
//go:noescape
func Switch(from, to *Context)

// Make primes c so that its first resume jumps to entry with SP at the top
// of stack. entry must be a niladic function that never returns.
func (c *Context) Make(entry func(), stackLo, stackHi uintptr) {
	for i := range c.regs {
		c.regs[i] = 0
	}

	// Reserve a spill slot below the top and keep the mandated alignment.
	sp := (stackHi - 2*ptrSize) &^ (stackAlign - 1)

	c.regs[RegPC] = xunsafe.FuncPC(entry)
	c.regs[RegSP] = sp
	c.stackLo, c.stackHi = stackLo, stackHi
}

// SetStack records the stack bounds without touching the register file.
func (c *Context) SetStack(lo, hi uintptr) {
	c.stackLo, c.stackHi = lo, hi
}

// Regs exposes every saved word, PC and SP included, for the conservative
// scanner.
func (c *Context) Regs() []uintptr { return c.regs[:] }

// SP returns the saved stack pointer.
func (c *Context) SP() uintptr { return c.regs[RegSP] }

// PC returns the saved program counter.
func (c *Context) PC() uintptr { return c.regs[RegPC] }

// Stack returns the declared stack bounds, lowest address first.
func (c *Context) Stack() (lo, hi uintptr) { return c.stackLo, c.stackHi }

const ptrSize = 8
