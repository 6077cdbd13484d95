// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

// Package metrics exports Improv session activity as Prometheus metrics.
//
// A Recorder is an improv.Observer:
//
//	reg := prometheus.NewRegistry()
//	rec, _ := metrics.NewRecorder(reg)
//	session, _ := improv.NewSession(transport, improv.WithObserver(rec))
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZaparooProject/go-improv"
)

const namespace = "improv"

// Recorder counts commands, their latency and device error codes.
type Recorder struct {
	commands     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	deviceErrors *prometheus.CounterVec
	lastSuccess  *prometheus.GaugeVec
}

// NewRecorder creates a recorder and registers its collectors with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "commands_total",
				Help:      "Commands sent to Improv devices by outcome.",
			},
			[]string{"port", "command", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "command_duration_seconds",
				Help:      "Time from sending a command until it resolved.",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"command", "outcome"},
		),
		deviceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "device",
				Name:      "errors_total",
				Help:      "Error codes reported by devices.",
			},
			[]string{"port", "command", "code"},
		),
		lastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful command.",
			},
			[]string{"port", "command"},
		),
	}

	for _, c := range []prometheus.Collector{r.commands, r.duration, r.deviceErrors, r.lastSuccess} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register improv metrics: %w", err)
		}
	}
	return r, nil
}

// CommandFinished implements improv.Observer.
func (r *Recorder) CommandFinished(port string, cmd improv.Command, elapsed time.Duration, err error) {
	outcome := improv.Classify(err)
	name := cmd.String()

	r.commands.WithLabelValues(port, name, outcome).Inc()
	r.duration.WithLabelValues(name, outcome).Observe(elapsed.Seconds())

	var devErr *improv.DeviceError
	if errors.As(err, &devErr) {
		r.deviceErrors.WithLabelValues(port, name, "0x"+strconv.FormatUint(uint64(devErr.Code), 16)).Inc()
	}
	if err == nil {
		r.lastSuccess.WithLabelValues(port, name).SetToCurrentTime()
	}
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for the node_exporter textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

var _ improv.Observer = (*Recorder)(nil)
