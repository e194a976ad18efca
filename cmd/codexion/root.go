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

package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/codexion/config"
	"github.com/cockroachdb/codexion/metrics"
	"github.com/cockroachdb/codexion/report"
	"github.com/cockroachdb/codexion/table"
	"github.com/cockroachdb/codexion/version"
	"github.com/cockroachdb/codexion/watchdog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type flags struct {
	metrics bool
	poll    time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:     "codexion " + config.Usage,
		Short:   "Simulate coders sharing USB dongles",
		Version: version.Current().Banner(),
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse(args)
			if err != nil {
				return err
			}
			cfg.PollInterval = f.poll
			if err := cfg.Validate(); err != nil {
				return err
			}
			// The arguments are good; later failures are not usage errors.
			cmd.SilenceUsage = true
			return run(cmd, cfg, f)
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.Flags().BoolVar(&f.metrics, "metrics", false,
		"log simulation metrics on exit")
	cmd.Flags().DurationVar(&f.poll, "poll", watchdog.DefaultInterval,
		"the interval at which the watchdog checks for burnout")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false,
		"enable debug logging")
	return cmd
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core).Named("codexion")
}

func run(cmd *cobra.Command, cfg *config.Config, f flags) error {
	logger := newLogger(cmd.ErrOrStderr(), f.verbose)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	printer := report.NewPrinter(cmd.OutOrStdout())

	tbl := table.New(cfg, report.Multi(printer, m), logger.Named("table"))
	tbl.SetDongleEvents(m.DongleEvents())

	res, err := tbl.Run(ctx)
	if err != nil {
		return err
	}
	if err := printer.Err(); err != nil {
		return fmt.Errorf("could not write events: %w", err)
	}
	if f.metrics {
		if err := metrics.Log(reg, logger.Named("metrics")); err != nil {
			return err
		}
	}
	if res.Burnout != nil {
		logger.Debug("simulation ended by burnout", zap.Stringer("burnout", res.Burnout))
	}
	return nil
}
