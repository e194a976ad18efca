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
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/codexion/halt"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAcquireRelease(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()

	var acquired, released atomic.Int32
	d := New(Config{ID: 3, Cooldown: time.Millisecond}, halt.New())
	d.SetEvents(&Events{
		OnAcquire: func(dongle int, _ Waiter, _ time.Duration) {
			r.Equal(3, dongle)
			acquired.Add(1)
		},
		OnRelease: func(int, Waiter, time.Duration) { released.Add(1) },
	})

	// A fresh dongle is immediately acquirable.
	h, err := d.Acquire(ctx, Waiter{ID: 1})
	r.NoError(err)
	r.True(d.Held())
	r.Equal(0, d.Waiting())

	h.Release()
	h.Release() // Duplicate release is a no-op.
	r.False(d.Held())
	r.Equal(int32(1), acquired.Load())
	r.Equal(int32(1), released.Load())

	var nilHandle *Handle
	nilHandle.Release()
}

// Many goroutines contend for one dongle; hold intervals never overlap.
func TestMutualExclusion(t *testing.T) {
	const workers = 8
	const rounds = 50
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := New(Config{}, halt.New())
	var owner atomic.Int32
	eg, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= workers; i++ {
		eg.Go(func() error {
			for range rounds {
				h, err := d.Acquire(ctx, Waiter{ID: i})
				if err != nil {
					return err
				}
				if !owner.CompareAndSwap(0, int32(i)) {
					h.Release()
					return errors.New("collision detected")
				}
				runtime.Gosched()
				owner.Store(0)
				h.Release()
			}
			return nil
		})
	}
	r.NoError(eg.Wait())
}

func TestCooldown(t *testing.T) {
	const cooldown = 25 * time.Millisecond
	r := require.New(t)
	ctx := context.Background()

	d := New(Config{Cooldown: cooldown}, halt.New())
	h, err := d.Acquire(ctx, Waiter{ID: 1})
	r.NoError(err)

	beforeRelease := time.Now()
	h.Release()

	h, err = d.Acquire(ctx, Waiter{ID: 2})
	r.NoError(err)
	defer h.Release()
	r.GreaterOrEqual(time.Since(beforeRelease), cooldown)
}

// Waiters that enqueue in a known order are granted in that order, and
// each grant waits out the cooldown that follows the previous release.
func TestFIFO(t *testing.T) {
	const cooldown = 10 * time.Millisecond
	const waiters = 5
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := New(Config{Cooldown: cooldown}, halt.New())
	blocker, err := d.Acquire(ctx, Waiter{ID: 0})
	r.NoError(err)

	var mu sync.Mutex
	var order []int
	var gaps []time.Duration
	var lastRelease time.Time
	eg, _ := errgroup.WithContext(ctx)
	for i := 1; i <= waiters; i++ {
		eg.Go(func() error {
			h, err := d.Acquire(ctx, Waiter{ID: i})
			if err != nil {
				return err
			}
			acquired := time.Now()
			mu.Lock()
			order = append(order, i)
			gaps = append(gaps, acquired.Sub(lastRelease))
			lastRelease = time.Now()
			mu.Unlock()
			h.Release()
			return nil
		})
		// Wait for the waiter to be queued before starting the next.
		r.Eventually(func() bool { return d.Waiting() == i },
			10*time.Second, time.Millisecond)
	}

	mu.Lock()
	lastRelease = time.Now()
	mu.Unlock()
	blocker.Release()
	r.NoError(eg.Wait())
	r.Equal([]int{1, 2, 3, 4, 5}, order)
	r.Len(gaps, waiters)
	for i, gap := range gaps {
		r.GreaterOrEqual(gap, cooldown, "grant %d", i+1)
	}
}

func TestEDFGrantsEarliestDeadline(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := New(Config{Queue: NewQueue(PolicyEDF)}, halt.New())
	blocker, err := d.Acquire(ctx, Waiter{ID: 0})
	r.NoError(err)

	now := time.Now()
	deadlines := map[int]time.Duration{1: time.Hour, 2: time.Minute, 3: time.Second}

	var mu sync.Mutex
	var order []int
	eg, _ := errgroup.WithContext(ctx)
	for id := 1; id <= 3; id++ {
		eg.Go(func() error {
			h, err := d.Acquire(ctx, Waiter{ID: id, Deadline: now.Add(deadlines[id])})
			if err != nil {
				return err
			}
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			h.Release()
			return nil
		})
		r.Eventually(func() bool { return d.Waiting() == id },
			10*time.Second, time.Millisecond)
	}

	blocker.Release()
	r.NoError(eg.Wait())
	r.Equal([]int{3, 2, 1}, order)
}

func TestShutdownAbortsWaiters(t *testing.T) {
	const waiters = 3
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sw := halt.New()
	var aborts atomic.Int32
	d := New(Config{}, sw)
	d.SetEvents(&Events{
		OnAbort: func(int, Waiter, time.Duration) { aborts.Add(1) },
	})

	blocker, err := d.Acquire(ctx, Waiter{ID: 0})
	r.NoError(err)
	defer blocker.Release()

	results := make(chan error, waiters)
	for i := 1; i <= waiters; i++ {
		go func() {
			h, err := d.Acquire(ctx, Waiter{ID: i})
			h.Release()
			results <- err
		}()
	}
	r.Eventually(func() bool { return d.Waiting() == waiters },
		10*time.Second, time.Millisecond)

	r.True(sw.Trip())
	d.Wake()
	for range waiters {
		select {
		case err := <-results:
			r.ErrorIs(err, ErrAborted)
		case <-ctx.Done():
			r.FailNow("waiter was not woken")
		}
	}
	r.Equal(0, d.Waiting())
	r.Equal(int32(waiters), aborts.Load())

	// New arrivals never get past the shutdown check.
	_, err = d.Acquire(ctx, Waiter{ID: 9})
	r.ErrorIs(err, ErrAborted)
	r.Equal(0, d.Waiting())
}

// A head-of-line waiter that gives up must not block those behind it.
func TestCanceledHeadLeavesQueue(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d := New(Config{}, halt.New())
	blocker, err := d.Acquire(ctx, Waiter{ID: 0})
	r.NoError(err)

	headCtx, cancelHead := context.WithCancel(ctx)
	headErr := make(chan error, 1)
	go func() {
		_, err := d.Acquire(headCtx, Waiter{ID: 1})
		headErr <- err
	}()
	r.Eventually(func() bool { return d.Waiting() == 1 }, 10*time.Second, time.Millisecond)

	nextErr := make(chan error, 1)
	go func() {
		h, err := d.Acquire(ctx, Waiter{ID: 2})
		h.Release()
		nextErr <- err
	}()
	r.Eventually(func() bool { return d.Waiting() == 2 }, 10*time.Second, time.Millisecond)

	cancelHead()
	r.ErrorIs(<-headErr, context.Canceled)
	r.Equal(1, d.Waiting())

	blocker.Release()
	r.NoError(<-nextErr)
	r.Equal(0, d.Waiting())
}

func TestReleaseWhileNotHeldPanics(t *testing.T) {
	r := require.New(t)

	d := New(Config{}, halt.New())
	h, err := d.Acquire(context.Background(), Waiter{ID: 1})
	r.NoError(err)
	h.Release()

	r.PanicsWithValue("dongle 0 released while not held", func() { d.release(h) })
}

// lossyQueue forgets every ticket that tries to leave it.
type lossyQueue struct {
	fifoQueue
}

func (q *lossyQueue) Remove(*Ticket) bool { return false }

// A corrupt queue is a fault, but it must not leave the dongle locked
// for the callers that deliver shutdown.
func TestLostTicketDoesNotWedge(t *testing.T) {
	r := require.New(t)

	sw := halt.New()
	d := New(Config{Queue: &lossyQueue{}}, sw)
	r.True(sw.Trip())

	r.PanicsWithValue("dongle 0: departing ticket 1 missing from queue", func() {
		_, _ = d.Acquire(context.Background(), Waiter{ID: 1})
	})

	woke := make(chan struct{})
	go func() {
		defer close(woke)
		d.Wake()
	}()
	select {
	case <-woke:
	case <-time.After(10 * time.Second):
		r.Fail("Wake blocked after a fault")
	}
	r.False(d.Held())
}
