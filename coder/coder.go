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

// Package coder implements the work cycle of a single simulated coder.
//
// A coder repeatedly acquires both of its neighboring dongles,
// compiles while holding them, releases them, and then debugs and
// refactors. Dongles are always acquired in ascending ring-index order,
// which is a global total order: no cycle of coders can each hold one
// dongle while waiting for the next.
package coder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/codexion/clock"
	"github.com/cockroachdb/codexion/dongle"
	"github.com/cockroachdb/codexion/halt"
	"github.com/cockroachdb/codexion/notify"
	"github.com/cockroachdb/codexion/report"
)

// ErrFault is returned from [Coder.Run] if an internal invariant was
// violated. It is never retried.
var ErrFault = errors.New("internal coordination fault")

// Config holds the per-coder timings.
type Config struct {
	ID       int           // One-based position at the table.
	Compiles int           // Number of compiles required.
	Compile  time.Duration // Time spent holding both dongles.
	Debug    time.Duration
	Refactor time.Duration
	Burnout  time.Duration // Used to compute deadlines for dongle.PolicyEDF.
}

// Env holds the state that is shared by every coder at a table.
type Env struct {
	Epoch clock.Epoch
	Sink  report.Sink // If nil, events are discarded.
	Stop  *halt.Switch
}

// A Coder runs the work cycle. Its methods, other than [Coder.Run],
// are safe to call from other goroutines.
type Coder struct {
	cfg      Config
	compiled atomic.Int64
	dongles  []*dongle.Dongle // In acquisition order.
	env      Env
	live     *Liveness
	phase    *notify.Var[Phase]
}

// New constructs a Coder seated between two dongles. The coder's grace
// period before its first compile begins now.
func New(cfg Config, left, right *dongle.Dongle, env Env) *Coder {
	if env.Sink == nil {
		env.Sink = report.Discard
	}
	return &Coder{
		cfg:     cfg,
		dongles: Order(left, right),
		env:     env,
		live:    newLiveness(env.Epoch),
		phase:   notify.VarOf(Idle),
	}
}

// Order returns the dongles in the order in which they must be
// acquired: lowest ring index first. If both arguments are the same
// dongle, it is returned once.
func Order(a, b *dongle.Dongle) []*dongle.Dongle {
	switch {
	case a == b:
		return []*dongle.Dongle{a}
	case a.ID() > b.ID():
		return []*dongle.Dongle{b, a}
	default:
		return []*dongle.Dongle{a, b}
	}
}

// Compiled returns the number of completed compiles.
func (c *Coder) Compiled() int { return int(c.compiled.Load()) }

// Dongles returns the coder's dongles in acquisition order.
func (c *Coder) Dongles() []*dongle.Dongle { return c.dongles }

// ID returns the coder's one-based id.
func (c *Coder) ID() int { return c.cfg.ID }

// Idle returns the time since the coder last started compiling and
// whether the coder is still running.
func (c *Coder) Idle() (time.Duration, bool) { return c.live.Idle() }

// Phase returns the coder's current activity.
func (c *Coder) Phase() *notify.Var[Phase] { return c.phase }

// Run executes work cycles until the required number of compiles has
// been reached or the shared Switch is tripped. Shutdown is not an
// error. A panic within the cycle is reported as [ErrFault].
func (c *Coder) Run(ctx context.Context) error {
	defer c.live.Retire()
	err := tryCall(func() error { return c.cycle(ctx) })
	if err != nil {
		c.phase.Set(Aborted)
	}
	return err
}

func (c *Coder) cycle(ctx context.Context) error {
	for left := c.cfg.Compiles; left > 0; left-- {
		if !c.compile(ctx) ||
			!c.pause(ctx, Debugging, report.Debugging, c.cfg.Debug) ||
			!c.pause(ctx, Refactoring, report.Refactoring, c.cfg.Refactor) {
			c.phase.Set(Aborted)
			return nil
		}
	}
	c.phase.Set(Finished)
	return nil
}

// compile returns false if the coder should stop.
func (c *Coder) compile(ctx context.Context) bool {
	if c.stopping(ctx) {
		return false
	}
	c.phase.Set(Acquiring)

	w := dongle.Waiter{
		ID:       c.cfg.ID,
		Deadline: c.env.Epoch.Time(c.live.Last() + c.cfg.Burnout),
	}
	for _, d := range c.dongles {
		h, err := d.Acquire(ctx, w)
		if err != nil {
			// Aborted by shutdown or cancellation. Any dongle already
			// taken is returned by the deferred release.
			return false
		}
		defer h.Release()
		c.emit(c.env.Epoch.Since(), report.TookDongle)
	}

	// Publish liveness before any dongle is given back.
	c.phase.Set(Compiling)
	c.emit(c.live.Touch(), report.Compiling)
	if !c.sleep(ctx, c.cfg.Compile) {
		return false
	}
	c.compiled.Add(1)
	return true
}

func (c *Coder) emit(at time.Duration, kind report.Kind) {
	c.env.Sink.Emit(report.Event{At: at, Coder: c.cfg.ID, Kind: kind})
}

// pause spends a fixed amount of time without holding any dongle.
func (c *Coder) pause(ctx context.Context, p Phase, kind report.Kind, d time.Duration) bool {
	if c.stopping(ctx) {
		return false
	}
	c.phase.Set(p)
	c.emit(c.env.Epoch.Since(), kind)
	return c.sleep(ctx, d)
}

// sleep returns false if interrupted by shutdown.
func (c *Coder) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.env.Stop.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Coder) stopping(ctx context.Context) bool {
	return c.env.Stop.Tripped() || ctx.Err() != nil
}

// tryCall invokes the function with a panic handler.
func tryCall(fn func() error) (err error) {
	defer func() {
		x := recover()
		switch t := x.(type) {
		case nil:
		// Success.
		case error:
			err = fmt.Errorf("%w: %w", ErrFault, t)
		default:
			err = fmt.Errorf("%w: %v", ErrFault, t)
		}
	}()

	return fn()
}
