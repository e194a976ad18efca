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

// Package halt provides a one-shot stop signal that is shared by every
// component of a simulation.
package halt

import (
	"sync"
	"sync/atomic"
)

// A Switch starts out open and may be tripped exactly once. It is never
// reset.
//
// A Switch is safe for concurrent use. A Switch should not be copied
// after it has been created.
type Switch struct {
	ch      chan struct{}
	once    sync.Once
	tripped atomic.Bool
}

// New constructs an open Switch.
func New() *Switch {
	return &Switch{ch: make(chan struct{})}
}

// Done returns a channel that is closed once the Switch has been
// tripped.
func (s *Switch) Done() <-chan struct{} {
	return s.ch
}

// Trip sets the Switch. It returns true only for the call that
// performed the transition; concurrent or repeated calls return false.
func (s *Switch) Trip() bool {
	won := false
	s.once.Do(func() {
		s.tripped.Store(true)
		close(s.ch)
		won = true
	})
	return won
}

// Tripped returns true if [Switch.Trip] has been called.
func (s *Switch) Tripped() bool {
	return s.tripped.Load()
}
