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

// Package notify contains a variable that announces changes to its
// value.
package notify

import "sync"

// Var holds a value of type T. Callers may wait for the value to be
// replaced by selecting on the channel returned from [Var.Get].
//
// The zero value is ready to use. A Var is safe for concurrent use and
// should not be copied after it has been created.
type Var[T any] struct {
	mu struct {
		sync.Mutex
		changed chan struct{}
		value   T
	}
}

// VarOf constructs a Var with the given initial value.
func VarOf[T any](value T) *Var[T] {
	v := &Var[T]{}
	v.mu.value = value
	return v
}

// Get returns the current value and a channel that will be closed the
// next time [Var.Set] is called.
func (v *Var[T]) Get() (T, <-chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mu.changed == nil {
		v.mu.changed = make(chan struct{})
	}
	return v.mu.value, v.mu.changed
}

// Set replaces the value and wakes every caller waiting on a channel
// previously returned from [Var.Get].
func (v *Var[T]) Set(value T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mu.value = value
	if v.mu.changed != nil {
		close(v.mu.changed)
		v.mu.changed = nil
	}
}
