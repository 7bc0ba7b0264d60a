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

// Register-file layout on amd64. The assembly in ctxt_amd64.s hardcodes
// these slot offsets; keep the two in sync.
//
//	0: PC   1: SP   2: BP   3: BX   4: R12   5: R13   6: R14   7: R15
const numRegs = 8

const stackAlign = 16
