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

// Package metrics records simulation activity in Prometheus
// collectors.
package metrics

import (
	"time"

	"github.com/cockroachdb/codexion/dongle"
	"github.com/cockroachdb/codexion/report"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var latencyBuckets = prometheus.ExponentialBuckets(0.0005, 2, 16)

// Metrics is a [report.Sink] that also provides [dongle.Events].
type Metrics struct {
	aborts prometheus.Counter
	events *prometheus.CounterVec
	holds  prometheus.Histogram
	waits  prometheus.Histogram
}

var _ report.Sink = (*Metrics)(nil)

// New constructs Metrics and registers its collectors. The registerer
// may be nil for unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codexion_dongle_aborts_total",
			Help: "Dongle acquisitions abandoned because of shutdown or cancellation.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codexion_events_total",
			Help: "Observable coder events, by kind.",
		}, []string{"event"}),
		holds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codexion_dongle_hold_seconds",
			Help:    "Time a dongle was held before release.",
			Buckets: latencyBuckets,
		}),
		waits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codexion_dongle_wait_seconds",
			Help:    "Time spent queued for a dongle before acquiring it.",
			Buckets: latencyBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.aborts, m.events, m.holds, m.waits)
	}
	return m
}

// DongleEvents returns callbacks to be installed with
// [dongle.Dongle.SetEvents].
func (m *Metrics) DongleEvents() *dongle.Events {
	return &dongle.Events{
		OnAbort: func(int, dongle.Waiter, time.Duration) {
			m.aborts.Inc()
		},
		OnAcquire: func(_ int, _ dongle.Waiter, waited time.Duration) {
			m.waits.Observe(waited.Seconds())
		},
		OnRelease: func(_ int, _ dongle.Waiter, held time.Duration) {
			m.holds.Observe(held.Seconds())
		},
	}
}

// Emit implements [report.Sink].
func (m *Metrics) Emit(ev report.Event) {
	m.events.WithLabelValues(ev.Kind.String()).Inc()
}

// Log writes one entry per collected series.
func Log(g prometheus.Gatherer, logger *zap.Logger) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("name", mf.GetName())}
			for _, lp := range m.GetLabel() {
				fields = append(fields, zap.String(lp.GetName(), lp.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				fields = append(fields, zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				fields = append(fields, zap.Float64("value", m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fields = append(fields,
					zap.Uint64("count", h.GetSampleCount()),
					zap.Float64("sum", h.GetSampleSum()))
			}
			logger.Info("metric", fields...)
		}
	}
	return nil
}
