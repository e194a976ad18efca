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

// Package dongle implements a binary-exclusive, cooldown-gated lock
// with a fairness queue.
//
// A Dongle is either held by exactly one caller or cooling down until
// some instant, after which it may be acquired by the waiter at the
// head of its [Queue]:
//
//	sw := halt.New()
//	d := dongle.New(dongle.Config{ID: 0, Cooldown: 5 * time.Millisecond}, sw)
//
//	h, err := d.Acquire(ctx, dongle.Waiter{ID: 1})
//	if err != nil {
//		return err // dongle.ErrAborted once sw has been tripped
//	}
//	defer h.Release()
//
// Waiters never poll. A blocked call to [Dongle.Acquire] sleeps until a
// release, a new arrival, a departure, or [Dongle.Wake] changes the
// dongle's state, or until the cooldown of a head-of-line waiter
// elapses.
package dongle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/codexion/halt"
)

var (
	// ErrAborted is returned from [Dongle.Acquire] once the shared
	// [halt.Switch] has been tripped.
	ErrAborted = errors.New("dongle acquisition aborted by shutdown")
	// ErrUnknownPolicy is returned by [ParsePolicy].
	ErrUnknownPolicy = errors.New("unknown scheduler policy")
)

// Config describes a single Dongle.
type Config struct {
	ID       int           // Ring index.
	Cooldown time.Duration // Minimum idle time after each release.
	Queue    Queue         // If nil, a FIFO queue is used.
}

// A Dongle is a shared, mutually-exclusive resource. The lock embedded
// in the Dongle protects only its state transitions; it is never held
// while the dongle itself is in use.
//
// A Dongle is internally synchronized and is safe for concurrent use.
// A Dongle should not be copied after it has been created.
type Dongle struct {
	cooldown time.Duration
	events   *Events
	id       int
	stop     *halt.Switch

	mu struct {
		sync.Mutex
		availableAt time.Time     // Cooldown deadline; only meaningful if !held.
		held        bool          // True while a Handle is outstanding.
		queue       Queue         // Pending tickets.
		seq         uint64        // Ticket counter.
		wake        chan struct{} // Closed and replaced on every broadcast.
	}
}

// New constructs a Dongle that may be acquired immediately. Calls to
// [Dongle.Acquire] observe the given Switch.
func New(cfg Config, stop *halt.Switch) *Dongle {
	d := &Dongle{
		cooldown: cfg.Cooldown,
		id:       cfg.ID,
		stop:     stop,
	}
	d.mu.availableAt = time.Now()
	d.mu.queue = cfg.Queue
	if d.mu.queue == nil {
		d.mu.queue = NewQueue(PolicyFIFO)
	}
	d.mu.wake = make(chan struct{})
	return d
}

// Acquire blocks until the waiter is at the head of the queue, the
// dongle is not held, and its cooldown has elapsed. The returned
// [Handle] must be released.
//
// If the shared Switch is tripped while waiting, Acquire returns
// [ErrAborted]. If the context is canceled, the context's error is
// returned. In both cases the waiter has left the queue.
func (d *Dongle) Acquire(ctx context.Context, w Waiter) (*Handle, error) {
	enqueued := time.Now()

	d.mu.Lock()
	d.mu.seq++
	t := &Ticket{Waiter: w, seq: d.mu.seq}
	d.mu.queue.Push(t)
	d.broadcastLocked()

	for {
		var err error
		if d.stop.Tripped() {
			err = ErrAborted
		} else {
			err = ctx.Err()
		}
		if err != nil {
			left := d.leaveLocked(t)
			d.mu.Unlock()
			if !left {
				panic(fmt.Sprintf("dongle %d: departing ticket %d missing from queue", d.id, t.seq))
			}
			d.events.doAbort(d.id, w, time.Since(enqueued))
			return nil, err
		}

		var timer *time.Timer
		if head, ok := d.mu.queue.Peek(); ok && head == t && !d.mu.held {
			now := time.Now()
			wait := d.mu.availableAt.Sub(now)
			if wait <= 0 {
				if !d.mu.queue.Remove(t) {
					d.mu.Unlock()
					panic(fmt.Sprintf("dongle %d: granted ticket %d missing from queue", d.id, t.seq))
				}
				d.mu.held = true
				d.mu.Unlock()

				d.events.doAcquire(d.id, w, now.Sub(enqueued))
				return &Handle{acquired: now, dongle: d, waiter: w}, nil
			}
			// Head of line, but still cooling down.
			timer = time.NewTimer(wait)
		}
		wake := d.mu.wake
		d.mu.Unlock()

		var expired <-chan time.Time
		if timer != nil {
			expired = timer.C
		}
		select {
		case <-wake:
		case <-expired:
		case <-ctx.Done():
		}
		if timer != nil {
			timer.Stop()
		}

		d.mu.Lock()
	}
}

// Held returns true if a Handle is outstanding.
func (d *Dongle) Held() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mu.held
}

// ID returns the ring index of the Dongle.
func (d *Dongle) ID() int { return d.id }

// SetEvents allows monitoring callbacks to be injected into the Dongle.
// This method should be called prior to any call to [Dongle.Acquire].
func (d *Dongle) SetEvents(events *Events) {
	d.events = events
}

// Waiting returns the number of queued calls to [Dongle.Acquire].
func (d *Dongle) Waiting() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mu.queue.Len()
}

// Wake causes every blocked call to [Dongle.Acquire] to re-check its
// eligibility. It is used to deliver shutdown.
func (d *Dongle) Wake() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcastLocked()
}

func (d *Dongle) broadcastLocked() {
	close(d.mu.wake)
	d.mu.wake = make(chan struct{})
}

// leaveLocked removes a ticket that will not be granted and returns
// false if the queue had lost it. Departure of the head lets the next
// waiter proceed, so everyone is woken.
func (d *Dongle) leaveLocked(t *Ticket) bool {
	ok := d.mu.queue.Remove(t)
	d.broadcastLocked()
	return ok
}

func (d *Dongle) release(h *Handle) {
	now := time.Now()

	d.mu.Lock()
	if !d.mu.held {
		d.mu.Unlock()
		panic(fmt.Sprintf("dongle %d released while not held", d.id))
	}
	d.mu.held = false
	d.mu.availableAt = now.Add(d.cooldown)
	d.broadcastLocked()
	d.mu.Unlock()

	d.events.doRelease(d.id, h.waiter, now.Sub(h.acquired))
}

// A Handle represents possession of a [Dongle]. Release should be
// deferred immediately after a successful acquisition so that every
// exit path gives the dongle back.
type Handle struct {
	acquired time.Time
	dongle   *Dongle
	released atomic.Bool
	waiter   Waiter
}

// Release returns the dongle and starts its cooldown. Calls after the
// first, and calls on a nil Handle, are no-ops.
func (h *Handle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.dongle.release(h)
}
