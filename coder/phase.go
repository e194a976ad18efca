// Copyright 2025 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package coder

import "fmt"

// Phase describes what a [Coder] is doing. It is published through
// [Coder.Phase].
type Phase int

// Coder phases.
const (
	Idle Phase = iota
	Acquiring
	Compiling
	Debugging
	Refactoring
	Finished
	Aborted
)

// Done returns true if the coder's goroutine has stopped, or is about
// to.
func (p Phase) Done() bool {
	return p == Finished || p == Aborted
}

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Compiling:
		return "compiling"
	case Debugging:
		return "debugging"
	case Refactoring:
		return "refactoring"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
