// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ocs_custodian"

// Metrics are the Prometheus collectors of an Orchestrator.
type Metrics struct {
	runs            *prometheus.CounterVec
	inFlight        prometheus.Gauge
	duration        *prometheus.HistogramVec
	downloadedBytes prometheus.Counter
	cacheHits       prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Finished runs by outcome and, for failures, the failing stage.",
			},
			[]string{"outcome", "stage"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "runs_in_flight",
				Help:      "Runs that have not reached a terminal state.",
			},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Wall time from submission to the terminal state.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"outcome"},
		),
		downloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "fetch",
				Name:      "downloaded_bytes_total",
				Help:      "Bytes received from download endpoints.",
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Artifacts taken from the local cache instead of the network.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.inFlight, m.duration, m.downloadedBytes, m.cacheHits)
	}
	return m
}

func (m *Metrics) started() {
	m.inFlight.Inc()
}

func (m *Metrics) finished(o *Outcome, seconds float64) {
	m.inFlight.Dec()
	m.runs.WithLabelValues(string(o.State), string(o.Stage())).Inc()
	m.duration.WithLabelValues(string(o.State)).Observe(seconds)
}
