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

// Package clock measures simulation time.
package clock

import "time"

// An Epoch marks the start of a simulation. All durations are taken
// from the monotonic clock reading embedded in the start time.
type Epoch struct {
	start time.Time
}

// Start returns an Epoch beginning now.
func Start() Epoch {
	return Epoch{start: time.Now()}
}

// Since returns the simulation time elapsed so far.
func (e Epoch) Since() time.Duration {
	return time.Since(e.start)
}

// Time converts simulation time back into an instant.
func (e Epoch) Time(d time.Duration) time.Time {
	return e.start.Add(d)
}
