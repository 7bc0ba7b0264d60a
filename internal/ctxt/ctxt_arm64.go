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

package ctxt

// Register-file layout on arm64. The assembly in ctxt_arm64.s hardcodes
// these slot offsets; keep the two in sync.
//
//	0: PC    1: SP    2: R29 (FP)
//	3-12:  R19..R28
//	13-20: F8..F15
const numRegs = 21

const stackAlign = 16
