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

// Package report formats the observable event stream of a simulation.
//
// Each event is rendered as a single line:
//
//	<elapsed_ms> <coder_id> <event>
package report

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Kind enumerates observable events.
type Kind int

// Observable events, in the order a coder normally produces them.
const (
	TookDongle Kind = iota
	Compiling
	Debugging
	Refactoring
	BurnedOut
)

func (k Kind) String() string {
	switch k {
	case TookDongle:
		return "has taken a dongle"
	case Compiling:
		return "is compiling"
	case Debugging:
		return "is debugging"
	case Refactoring:
		return "is refactoring"
	case BurnedOut:
		return "burned out"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// An Event is something a coder did at a point in simulation time.
type Event struct {
	At    time.Duration // Since the start of the simulation.
	Coder int           // One-based coder id.
	Kind  Kind
}

func (e Event) String() string {
	return fmt.Sprintf("%d %d %s", e.At.Milliseconds(), e.Coder, e.Kind)
}

// A Sink receives events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit implements Sink.
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Multi returns a Sink that delivers each event to every given Sink,
// in order.
func Multi(sinks ...Sink) Sink {
	sinks = append([]Sink(nil), sinks...)
	return SinkFunc(func(ev Event) {
		for _, s := range sinks {
			s.Emit(ev)
		}
	})
}

// Printer writes one line per event. Once a [BurnedOut] event has been
// written, the Printer is sealed and later events are dropped, so the
// burnout line is always the last line of output.
type Printer struct {
	w io.Writer

	mu struct {
		sync.Mutex
		err    error
		sealed bool
	}
}

var _ Sink = (*Printer)(nil)

// NewPrinter constructs a Printer.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Emit implements Sink.
func (p *Printer) Emit(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mu.sealed || p.mu.err != nil {
		return
	}
	if ev.Kind == BurnedOut {
		p.mu.sealed = true
	}
	if _, err := fmt.Fprintln(p.w, ev.String()); err != nil {
		p.mu.err = err
	}
}

// Err returns the first write error, if any. The Printer stops writing
// after an error.
func (p *Printer) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mu.err
}

// Recorder is a Sink that retains every event in memory.
type Recorder struct {
	mu struct {
		sync.Mutex
		events []Event
	}
}

var _ Sink = (*Recorder)(nil)

// Emit implements Sink.
func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.events = append(r.mu.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.mu.events...)
}

// For returns the kinds of events recorded for one coder, in order.
func (r *Recorder) For(coder int) []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []Kind
	for _, ev := range r.mu.events {
		if ev.Coder == coder {
			ret = append(ret, ev.Kind)
		}
	}
	return ret
}
