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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/codexion/clock"
	"github.com/cockroachdb/codexion/dongle"
	"github.com/cockroachdb/codexion/halt"
	"github.com/cockroachdb/codexion/report"
	"github.com/stretchr/testify/require"
)

// awaitPhase blocks until the coder publishes the expected phase.
func awaitPhase(ctx context.Context, r *require.Assertions, c *Coder, want Phase) {
	for {
		p, changed := c.Phase().Get()
		if p == want {
			return
		}
		r.False(p.Done() && !want.Done(), "coder stopped in phase %s", p)
		select {
		case <-changed:
		case <-ctx.Done():
			r.FailNow("timed out waiting for phase", "want %s, have %s", want, p)
		}
	}
}

func newTestCoder(cfg Config, ids ...int) (*Coder, Env, *report.Recorder) {
	sw := halt.New()
	rec := &report.Recorder{}
	env := Env{Epoch: clock.Start(), Sink: rec, Stop: sw}
	left := dongle.New(dongle.Config{ID: ids[0]}, sw)
	right := left
	if len(ids) > 1 {
		right = dongle.New(dongle.Config{ID: ids[1]}, sw)
	}
	return New(cfg, left, right, env), env, rec
}

func TestOrder(t *testing.T) {
	r := require.New(t)
	sw := halt.New()

	low := dongle.New(dongle.Config{ID: 2}, sw)
	high := dongle.New(dongle.Config{ID: 5}, sw)

	r.Equal([]*dongle.Dongle{low, high}, Order(low, high))
	r.Equal([]*dongle.Dongle{low, high}, Order(high, low))
	r.Equal([]*dongle.Dongle{low}, Order(low, low))
}

// Each compile is followed by exactly one debug and one refactor.
func TestQuota(t *testing.T) {
	const compiles = 3
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, _, rec := newTestCoder(Config{
		ID:       1,
		Compiles: compiles,
		Compile:  time.Millisecond,
		Debug:    time.Millisecond,
		Refactor: time.Millisecond,
		Burnout:  time.Hour,
	}, 0, 1)

	r.NoError(c.Run(ctx))
	r.Equal(compiles, c.Compiled())

	var want []report.Kind
	for range compiles {
		want = append(want,
			report.TookDongle, report.TookDongle,
			report.Compiling, report.Debugging, report.Refactoring)
	}
	r.Equal(want, rec.For(1))

	p, _ := c.Phase().Get()
	r.Equal(Finished, p)
	_, active := c.Idle()
	r.False(active)
	for _, d := range c.Dongles() {
		r.False(d.Held())
	}
}

func TestSingleDongleSeat(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, _, rec := newTestCoder(Config{ID: 1, Compiles: 2}, 0)
	r.Len(c.Dongles(), 1)
	r.NoError(c.Run(ctx))
	r.Equal(2, c.Compiled())
	r.Equal([]report.Kind{
		report.TookDongle, report.Compiling, report.Debugging, report.Refactoring,
		report.TookDongle, report.Compiling, report.Debugging, report.Refactoring,
	}, rec.For(1))
}

func TestZeroCompiles(t *testing.T) {
	r := require.New(t)

	c, _, rec := newTestCoder(Config{ID: 1}, 0, 1)
	r.NoError(c.Run(context.Background()))
	r.Equal(0, c.Compiled())
	r.Empty(rec.Events())
}

// Liveness is published when the coder starts holding both dongles.
func TestLivenessWhileCompiling(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, env, _ := newTestCoder(Config{ID: 1, Compiles: 1, Compile: time.Hour}, 0, 1)
	time.Sleep(20 * time.Millisecond)
	before, active := c.Idle()
	r.True(active)
	r.GreaterOrEqual(before, 20*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	awaitPhase(ctx, r, c, Compiling)

	idle, active := c.Idle()
	r.True(active)
	r.Less(idle, before)
	for _, d := range c.Dongles() {
		r.True(d.Held())
	}

	// Shutdown interrupts the compile and gives the dongles back.
	env.Stop.Trip()
	r.NoError(<-done)
	r.Equal(0, c.Compiled())
	for _, d := range c.Dongles() {
		r.False(d.Held())
	}
	p, _ := c.Phase().Get()
	r.Equal(Aborted, p)
}

func TestAbortWhileWaiting(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, env, rec := newTestCoder(Config{ID: 2, Compiles: 5}, 0, 1)
	low, high := c.Dongles()[0], c.Dongles()[1]

	// Someone else holds the second dongle.
	h, err := high.Acquire(ctx, dongle.Waiter{ID: 9})
	r.NoError(err)
	defer h.Release()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	r.Eventually(func() bool { return high.Waiting() == 1 }, 10*time.Second, time.Millisecond)
	r.True(low.Held())

	env.Stop.Trip()
	high.Wake()
	r.NoError(<-done)

	r.False(low.Held())
	r.Equal(0, high.Waiting())
	r.Equal(0, c.Compiled())
	r.Equal([]report.Kind{report.TookDongle}, rec.For(2))
}

func TestAbortDuringDebug(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, env, _ := newTestCoder(Config{ID: 1, Compiles: 2, Debug: time.Hour}, 0, 1)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	awaitPhase(ctx, r, c, Debugging)

	env.Stop.Trip()
	r.NoError(<-done)
	r.Equal(1, c.Compiled())
}

func TestContextCancel(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())

	c, _, _ := newTestCoder(Config{ID: 1, Compiles: 1, Refactor: time.Hour}, 0, 1)

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	awaitPhase(ctx, r, c, Refactoring)
	cancel()
	r.NoError(<-done)
}

func TestPanic(t *testing.T) {
	r := require.New(t)

	err := tryCall(func() error { panic("boom") })
	r.ErrorIs(err, ErrFault)
	r.ErrorContains(err, "boom")

	cause := errors.New("bang")
	err = tryCall(func() error { panic(cause) })
	r.ErrorIs(err, ErrFault)
	r.ErrorIs(err, cause)

	r.NoError(tryCall(func() error { return nil }))
}
