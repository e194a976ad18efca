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

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/codexion/clock"
)

// Liveness records when a coder last started compiling. It is written
// by the coder and read by the watchdog without taking any dongle lock.
type Liveness struct {
	epoch   clock.Epoch
	last    atomic.Int64 // Simulation time, in nanoseconds.
	retired atomic.Bool
}

// newLiveness starts the grace period at the current instant.
func newLiveness(epoch clock.Epoch) *Liveness {
	l := &Liveness{epoch: epoch}
	l.Touch()
	return l
}

// Idle returns the time since the last compile started. The boolean is
// false once the coder has retired.
func (l *Liveness) Idle() (time.Duration, bool) {
	return l.epoch.Since() - l.Last(), !l.retired.Load()
}

// Last returns the simulation time at which the last compile started.
func (l *Liveness) Last() time.Duration {
	return time.Duration(l.last.Load())
}

// Retire excludes the coder from further liveness checks.
func (l *Liveness) Retire() {
	l.retired.Store(true)
}

// Touch records the current simulation time and returns it.
func (l *Liveness) Touch() time.Duration {
	now := l.epoch.Since()
	l.last.Store(int64(now))
	return now
}
