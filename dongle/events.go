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

package dongle

import "time"

// Events provides a [Dongle] with optional callbacks to monitor
// acquisitions. Callbacks are invoked without holding any dongle lock.
//
// See [Dongle.SetEvents].
type Events struct {
	OnAbort   func(dongle int, waiter Waiter, waited time.Duration)
	OnAcquire func(dongle int, waiter Waiter, waited time.Duration)
	OnRelease func(dongle int, waiter Waiter, held time.Duration)
}

func (e *Events) doAbort(dongle int, waiter Waiter, waited time.Duration) {
	if e != nil && e.OnAbort != nil {
		e.OnAbort(dongle, waiter, waited)
	}
}

func (e *Events) doAcquire(dongle int, waiter Waiter, waited time.Duration) {
	if e != nil && e.OnAcquire != nil {
		e.OnAcquire(dongle, waiter, waited)
	}
}

func (e *Events) doRelease(dongle int, waiter Waiter, held time.Duration) {
	if e != nil && e.OnRelease != nil {
		e.OnRelease(dongle, waiter, held)
	}
}
