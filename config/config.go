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

// Package config parses and validates the parameters of a simulation.
package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/cockroachdb/codexion/dongle"
)

// The largest millisecond count that fits in a time.Duration.
const maxMillis = int64(math.MaxInt64 / time.Millisecond)

// MaxCoders bounds the size of the table.
const MaxCoders = 10000

// NumArgs is the number of positional arguments accepted by [Parse].
const NumArgs = 8

// Usage names the positional arguments, in order.
const Usage = "<number_of_coders> <time_to_burnout> <time_to_compile> <time_to_debug> " +
	"<time_to_refactor> <number_of_compiles_required> <dongle_cooldown> <scheduler>"

var (
	// ErrArgCount is returned if the wrong number of arguments is given.
	ErrArgCount = errors.New("wrong number of arguments")
	// ErrInvalid is returned by [Config.Validate].
	ErrInvalid = errors.New("invalid configuration")
	// ErrNotNumeric is returned if a numeric argument cannot be parsed.
	ErrNotNumeric = errors.New("not a non-negative integer")
	// ErrScheduler is returned for an unrecognized scheduler name.
	ErrScheduler = errors.New("invalid scheduler")
)

// Config describes one simulation run. Durations are given in
// milliseconds on the command line.
type Config struct {
	Coders           int
	Burnout          time.Duration
	Compile          time.Duration
	Debug            time.Duration
	Refactor         time.Duration
	CompilesRequired int
	Cooldown         time.Duration
	Scheduler        dongle.Policy

	// PollInterval is the watchdog scan period. It is not a positional
	// argument. Zero selects the watchdog's default.
	PollInterval time.Duration
}

// Parse builds a Config from exactly [NumArgs] positional arguments.
// The returned Config has been validated.
func Parse(args []string) (*Config, error) {
	if len(args) != NumArgs {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrArgCount, NumArgs, len(args))
	}

	names := [...]string{
		"number_of_coders",
		"time_to_burnout",
		"time_to_compile",
		"time_to_debug",
		"time_to_refactor",
		"number_of_compiles_required",
		"dongle_cooldown",
	}
	var nums [len(names)]int64
	for i, name := range names {
		n, err := strconv.ParseInt(args[i], 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %s=%q", ErrNotNumeric, name, args[i])
		}
		nums[i] = n
	}

	sched, err := dongle.ParsePolicy(args[7])
	if err != nil {
		return nil, fmt.Errorf("%w: scheduler=%q (want fifo or edf)", ErrScheduler, args[7])
	}

	ms := func(n int64) time.Duration { return time.Duration(n) * time.Millisecond }
	for _, i := range []int{1, 2, 3, 4, 6} {
		if nums[i] > maxMillis {
			return nil, fmt.Errorf("%w: %s=%d out of range", ErrInvalid, names[i], nums[i])
		}
	}
	cfg := &Config{
		Coders:           int(nums[0]),
		Burnout:          ms(nums[1]),
		Compile:          ms(nums[2]),
		Debug:            ms(nums[3]),
		Refactor:         ms(nums[4]),
		CompilesRequired: int(nums[5]),
		Cooldown:         ms(nums[6]),
		Scheduler:        sched,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the Config for values that cannot be simulated.
func (c *Config) Validate() error {
	switch {
	case c.Coders < 1:
		return fmt.Errorf("%w: at least one coder is required", ErrInvalid)
	case c.Coders > MaxCoders:
		return fmt.Errorf("%w: at most %d coders are supported", ErrInvalid, MaxCoders)
	case c.CompilesRequired < 0:
		return fmt.Errorf("%w: negative number_of_compiles_required", ErrInvalid)
	case c.PollInterval < 0:
		return fmt.Errorf("%w: negative poll interval", ErrInvalid)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"time_to_burnout", c.Burnout},
		{"time_to_compile", c.Compile},
		{"time_to_debug", c.Debug},
		{"time_to_refactor", c.Refactor},
		{"dongle_cooldown", c.Cooldown},
	} {
		if d.value < 0 {
			return fmt.Errorf("%w: negative %s", ErrInvalid, d.name)
		}
	}
	return nil
}
