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

// Package table seats coders around a ring of dongles and runs the
// simulation to completion.
//
// With N coders there are N dongles. The coder at ring position i is
// seated between dongles (i-1) mod N and (i+1) mod N. Every component
// shares a single [halt.Switch], which is tripped either by the
// watchdog on burnout, by cancellation of the context passed to
// [Table.Run], or by an internal fault in a coder.
package table

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/codexion/clock"
	"github.com/cockroachdb/codexion/coder"
	"github.com/cockroachdb/codexion/config"
	"github.com/cockroachdb/codexion/dongle"
	"github.com/cockroachdb/codexion/halt"
	"github.com/cockroachdb/codexion/report"
	"github.com/cockroachdb/codexion/watchdog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Result summarizes a completed run.
type Result struct {
	Burnout  *watchdog.Burnout // Nil unless a coder burned out.
	Compiles []int             // Completed compiles, indexed by coder id - 1.
	Elapsed  time.Duration
}

// A Table owns the topology and shutdown state of one simulation. A
// Table is single-use.
type Table struct {
	cfg      config.Config
	coders   []*coder.Coder
	dongles  []*dongle.Dongle
	epoch    clock.Epoch
	logger   *zap.Logger
	stop     *halt.Switch
	watchdog *watchdog.Watchdog
}

// New builds the ring. Simulation time, and every coder's grace period,
// starts now. The sink receives all observable events.
func New(cfg *config.Config, sink report.Sink, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sink == nil {
		sink = report.Discard
	}
	t := &Table{
		cfg:    *cfg,
		epoch:  clock.Start(),
		logger: logger,
		stop:   halt.New(),
	}

	n := cfg.Coders
	t.dongles = make([]*dongle.Dongle, n)
	for i := range t.dongles {
		t.dongles[i] = dongle.New(dongle.Config{
			ID:       i,
			Cooldown: cfg.Cooldown,
			Queue:    dongle.NewQueue(cfg.Scheduler),
		}, t.stop)
	}

	env := coder.Env{Epoch: t.epoch, Sink: sink, Stop: t.stop}
	t.coders = make([]*coder.Coder, n)
	for i := range t.coders {
		left, right := Seat(i, n)
		t.coders[i] = coder.New(coder.Config{
			ID:       i + 1,
			Compiles: cfg.CompilesRequired,
			Compile:  cfg.Compile,
			Debug:    cfg.Debug,
			Refactor: cfg.Refactor,
			Burnout:  cfg.Burnout,
		}, t.dongles[left], t.dongles[right], env)
	}

	t.watchdog = watchdog.New(watchdog.Config{
		Burnout:  cfg.Burnout,
		Interval: cfg.PollInterval,
	}, t.epoch, t.stop, sink, logger.Named("watchdog"))
	for _, c := range t.coders {
		t.watchdog.Watch(c)
	}
	for _, d := range t.dongles {
		t.watchdog.Notify(d)
	}
	return t
}

// Seat returns the indexes of the dongles to the left and right of ring
// position i at a table of n.
func Seat(i, n int) (left, right int) {
	return (i - 1 + n) % n, (i + 1) % n
}

// Coders returns the coders, ordered by id.
func (t *Table) Coders() []*coder.Coder { return t.coders }

// Dongles returns the dongles, ordered by ring index.
func (t *Table) Dongles() []*dongle.Dongle { return t.dongles }

// SetDongleEvents installs monitoring callbacks on every dongle. This
// method should be called prior to [Table.Run].
func (t *Table) SetDongleEvents(events *dongle.Events) {
	for _, d := range t.dongles {
		d.SetEvents(events)
	}
}

// Shutdown trips the shared Switch and wakes every dongle. It returns
// true if this call performed the transition.
func (t *Table) Shutdown() bool {
	if !t.stop.Trip() {
		return false
	}
	for _, d := range t.dongles {
		d.Wake()
	}
	return true
}

// Run starts one goroutine per coder and one for the watchdog, and
// waits for all of them. It returns once every coder has completed its
// compiles or shutdown has been observed by all of them. A burnout is
// reported through the Result; the error is non-nil only if a coder
// failed.
func (t *Table) Run(ctx context.Context) (*Result, error) {
	t.logger.Info("simulation starting",
		zap.Int("coders", t.cfg.Coders),
		zap.Duration("burnout", t.cfg.Burnout),
		zap.Duration("compile", t.cfg.Compile),
		zap.Duration("debug", t.cfg.Debug),
		zap.Duration("refactor", t.cfg.Refactor),
		zap.Int("compiles", t.cfg.CompilesRequired),
		zap.Duration("cooldown", t.cfg.Cooldown),
		zap.Stringer("scheduler", t.cfg.Scheduler))

	stopOnCancel := context.AfterFunc(ctx, func() {
		if t.Shutdown() {
			t.logger.Info("simulation interrupted", zap.Error(context.Cause(ctx)))
		}
	})
	defer stopOnCancel()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	burnout := make(chan *watchdog.Burnout, 1)
	go func() { burnout <- t.watchdog.Run(watchCtx) }()

	var eg errgroup.Group
	for _, c := range t.coders {
		eg.Go(func() error {
			if err := c.Run(ctx); err != nil {
				t.logger.Error("coder failed", zap.Int("coder", c.ID()), zap.Error(err))
				t.Shutdown()
				return fmt.Errorf("coder %d: %w", c.ID(), err)
			}
			return nil
		})
	}
	err := eg.Wait()
	cancelWatch()

	res := &Result{
		Burnout:  <-burnout,
		Compiles: make([]int, len(t.coders)),
		Elapsed:  t.epoch.Since(),
	}
	total := 0
	for i, c := range t.coders {
		res.Compiles[i] = c.Compiled()
		total += res.Compiles[i]
	}
	t.logger.Info("simulation finished",
		zap.Bool("burnout", res.Burnout != nil),
		zap.Int("compiles", total),
		zap.Duration("elapsed", res.Elapsed))
	return res, err
}
