// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package turn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Ticks counts completed tick iterations by outcome. The stage label is
// empty for successful ticks and names the failed stage otherwise.
// Use RegisterMetrics to register this with a Prometheus registry.
var Ticks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "holosim_ticks_total",
		Help: "Total number of tick iterations by outcome",
	},
	[]string{"status", "stage"},
)

// TickDuration is the histogram of full tick iteration duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var TickDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "holosim_tick_duration_seconds",
		Help:    "Tick iteration duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// FragmentsHarvested counts fragments handed to the commit callback.
// Use RegisterMetrics to register this with a Prometheus registry.
var FragmentsHarvested = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "holosim_fragments_harvested_total",
		Help: "Total number of fragments harvested and committed",
	},
)

// RegisterMetrics registers turn package metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Ticks)
	reg.MustRegister(TickDuration)
	reg.MustRegister(FragmentsHarvested)
}

func recordTick(failedStage Stage, d time.Duration) {
	status := "success"
	if failedStage != "" {
		status = "error"
	}
	Ticks.WithLabelValues(status, string(failedStage)).Inc()
	TickDuration.Observe(d.Seconds())
}

func recordHarvest(n int) {
	FragmentsHarvested.Add(float64(n))
}
