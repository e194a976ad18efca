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

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"
)

// Policy selects how a [Queue] orders the waiters of a single [Dongle].
type Policy int

// Supported queue policies.
const (
	// PolicyFIFO grants the dongle strictly in arrival order.
	PolicyFIFO Policy = iota
	// PolicyEDF grants the dongle to the waiter with the earliest
	// deadline. Waiters with equal deadlines are served in arrival
	// order.
	PolicyEDF
)

// ParsePolicy accepts "fifo" or "edf".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fifo":
		return PolicyFIFO, nil
	case "edf":
		return PolicyEDF, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicyFIFO:
		return "fifo"
	case PolicyEDF:
		return "edf"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// A Waiter identifies the caller of [Dongle.Acquire].
type Waiter struct {
	ID       int       // Ring position of the acquiring coder.
	Deadline time.Time // Consulted by PolicyEDF only.
}

// A Ticket is a queued request for a [Dongle]. Tickets are compared by
// identity, so the same Waiter may be queued at several dongles at once.
type Ticket struct {
	Waiter
	seq uint64
}

// A Queue orders the pending tickets of one [Dongle]. Implementations
// need not be internally synchronized; the owning Dongle serializes
// all calls.
type Queue interface {
	// Len returns the number of queued tickets.
	Len() int
	// Peek returns the ticket that is next in line, if any.
	Peek() (*Ticket, bool)
	// Push adds a ticket.
	Push(t *Ticket)
	// Remove deletes the ticket from any position in the queue. It
	// returns false if the ticket was not queued.
	Remove(t *Ticket) bool
}

// NewQueue constructs an empty Queue with the given ordering.
func NewQueue(p Policy) Queue {
	if p == PolicyEDF {
		return &edfQueue{}
	}
	return &fifoQueue{}
}

// list holds tickets in grant order.
type list struct {
	entries []*Ticket
}

func (l *list) Len() int { return len(l.entries) }

func (l *list) Peek() (*Ticket, bool) {
	if len(l.entries) == 0 {
		return nil, false
	}
	return l.entries[0], true
}

func (l *list) Remove(t *Ticket) bool {
	idx := slices.Index(l.entries, t)
	if idx < 0 {
		return false
	}
	// The head is removed in the common case; a waiter that gave up
	// may leave from the middle.
	l.entries = slices.Delete(l.entries, idx, idx+1)
	return true
}

type fifoQueue struct {
	list
}

var _ Queue = (*fifoQueue)(nil)

func (q *fifoQueue) Push(t *Ticket) {
	q.entries = append(q.entries, t)
}

type edfQueue struct {
	list
}

var _ Queue = (*edfQueue)(nil)

func (q *edfQueue) Push(t *Ticket) {
	// Insert ahead of the first strictly-later deadline so that equal
	// deadlines retain their arrival order.
	idx := slices.IndexFunc(q.entries, func(e *Ticket) bool {
		return e.Deadline.After(t.Deadline)
	})
	if idx < 0 {
		q.entries = append(q.entries, t)
		return
	}
	q.entries = slices.Insert(q.entries, idx, t)
}
