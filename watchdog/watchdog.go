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

// Package watchdog detects coders that have gone too long without
// compiling and shuts the simulation down.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/codexion/clock"
	"github.com/cockroachdb/codexion/halt"
	"github.com/cockroachdb/codexion/report"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultInterval is used if [Config.Interval] is not positive.
const DefaultInterval = time.Millisecond

// A Subject is a monitored coder.
type Subject interface {
	// ID returns the one-based coder id.
	ID() int
	// Idle returns the time since the subject last started compiling.
	// The boolean is false once the subject has stopped running and
	// should no longer be checked.
	Idle() (time.Duration, bool)
}

// A Waker is woken once shutdown has been triggered, so that blocked
// callers can observe it.
type Waker interface {
	Wake()
}

// Config controls the polling loop.
type Config struct {
	Burnout  time.Duration // Maximum idle time.
	Interval time.Duration // Time between scans.
}

// Burnout describes the liveness breach that ended a simulation.
type Burnout struct {
	At    time.Duration // Simulation time of detection.
	Coder int
	Idle  time.Duration
}

func (b *Burnout) String() string {
	return fmt.Sprintf("coder %d burned out at %s after %s idle", b.Coder, b.At, b.Idle)
}

// A Watchdog scans its subjects until one of them burns out, every
// subject has stopped, or shutdown is triggered elsewhere.
type Watchdog struct {
	cfg      Config
	epoch    clock.Epoch
	logger   *zap.Logger
	scanLog  rate.Sometimes
	sink     report.Sink
	stop     *halt.Switch
	subjects []Subject
	wakers   []Waker
}

// New constructs a Watchdog. The Switch is tripped on burnout and the
// burnout event is delivered to the sink.
func New(
	cfg Config, epoch clock.Epoch, stop *halt.Switch, sink report.Sink, logger *zap.Logger,
) *Watchdog {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if sink == nil {
		sink = report.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		cfg:     cfg,
		epoch:   epoch,
		logger:  logger,
		scanLog: rate.Sometimes{Interval: time.Second},
		sink:    sink,
		stop:    stop,
	}
}

// Notify registers Wakers to be woken on burnout. This method should
// be called prior to [Watchdog.Run].
func (w *Watchdog) Notify(wakers ...Waker) {
	w.wakers = append(w.wakers, wakers...)
}

// Watch registers Subjects. This method should be called prior to
// [Watchdog.Run].
func (w *Watchdog) Watch(subjects ...Subject) {
	w.subjects = append(w.subjects, subjects...)
}

// Run polls until a subject burns out, in which case the breach is
// returned. It returns nil if every subject stops, the Switch is
// tripped by someone else, or the context is canceled.
func (w *Watchdog) Run(ctx context.Context) *Burnout {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Debug("watchdog started",
		zap.Duration("burnout", w.cfg.Burnout),
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("subjects", len(w.subjects)))

	for {
		if b, done := w.scan(); done {
			return b
		}
		select {
		case <-ticker.C:
		case <-w.stop.Done():
			w.logger.Debug("watchdog stopping due to shutdown")
			return nil
		case <-ctx.Done():
			w.logger.Debug("watchdog stopping due to context cancellation")
			return nil
		}
	}
}

// scan checks every running subject once.
func (w *Watchdog) scan() (*Burnout, bool) {
	active := 0
	for _, s := range w.subjects {
		idle, running := s.Idle()
		if !running {
			continue
		}
		active++
		if idle > w.cfg.Burnout {
			return w.breach(s.ID(), idle), true
		}
	}
	if active == 0 && len(w.subjects) > 0 {
		w.logger.Debug("watchdog stopping; no running subjects")
		return nil, true
	}
	w.scanLog.Do(func() {
		w.logger.Debug("liveness scan", zap.Int("running", active))
	})
	return nil, false
}

func (w *Watchdog) breach(id int, idle time.Duration) *Burnout {
	if !w.stop.Trip() {
		// Shutdown was already underway; nothing to report.
		return nil
	}
	for _, wk := range w.wakers {
		wk.Wake()
	}
	b := &Burnout{At: w.epoch.Since(), Coder: id, Idle: idle}
	w.sink.Emit(report.Event{At: b.At, Coder: id, Kind: report.BurnedOut})
	w.logger.Info("coder burned out",
		zap.Int("coder", id),
		zap.Duration("idle", idle),
		zap.Duration("limit", w.cfg.Burnout))
	return b
}
