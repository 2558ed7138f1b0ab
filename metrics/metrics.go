// Copyright 2025 Google LLC
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

// Package metrics exposes the coordinator's counters through
// prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Handle is the set of instruments the coordinator updates. A plain
// struct of registered collectors rather than an interface: there is only
// ever one backend.
type Handle struct {
	InFlightRequests prometheus.Gauge
	FetchLatency     prometheus.Histogram
	Timeouts         prometheus.Counter
	Coalesced        prometheus.Counter
	Completions      *prometheus.CounterVec
}

// NewHandle builds and registers a Handle against reg. Passing a fresh
// prometheus.NewRegistry() in tests avoids colliding with the default
// global registry across parallel test runs.
func NewHandle(reg prometheus.Registerer) *Handle {
	h := &Handle{
		InFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "autofsd",
			Name:      "in_flight_requests",
			Help:      "Number of accessor calls (submitters and joiners) currently waiting on a trigger request.",
		}),
		FetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "autofsd",
			Name:      "trigger_latency_seconds",
			Help:      "Time from request submission to daemon completion.",
			Buckets:   prometheus.DefBuckets,
		}),
		Timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autofsd",
			Name:      "trigger_timeouts_total",
			Help:      "Requests force-completed by the timeout timer.",
		}),
		Coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autofsd",
			Name:      "trigger_coalesced_total",
			Help:      "Accessor calls that joined an already-outstanding request.",
		}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autofsd",
			Name:      "daemon_completions_total",
			Help:      "Daemon completions, labeled by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		h.InFlightRequests,
		h.FetchLatency,
		h.Timeouts,
		h.Coalesced,
		h.Completions,
	)
	return h
}

// RecordSubmit marks the start of a new, non-joined request.
func (h *Handle) RecordSubmit() {
	h.InFlightRequests.Inc()
}

// RecordJoin marks an accessor coalescing onto an existing request.
func (h *Handle) RecordJoin() {
	h.InFlightRequests.Inc()
	h.Coalesced.Inc()
}

// RecordWaiterLeft marks one waiter (joined or original) leaving a
// request, balancing exactly one prior RecordSubmit or RecordJoin call.
func (h *Handle) RecordWaiterLeft() {
	h.InFlightRequests.Dec()
}

// RecordOutcome marks a request's terminal state, once per request
// regardless of how many waiters had joined it.
func (h *Handle) RecordOutcome(elapsedSeconds float64, outcome string) {
	h.FetchLatency.Observe(elapsedSeconds)
	h.Completions.WithLabelValues(outcome).Inc()
}

// RecordTimeout marks a request force-completed by its timeout timer.
func (h *Handle) RecordTimeout() {
	h.Timeouts.Inc()
}
