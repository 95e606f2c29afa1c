// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exports the listener activity to Prometheus.
package metrics

import (
	"github.com/bassosimone/dnssteal"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements [dnssteal.Observer] using Prometheus collectors.
type Metrics struct {
	fragments        prometheus.Counter
	rejected         *prometheus.CounterVec
	files            prometheus.Counter
	assemblyFailures *prometheus.CounterVec
	inflight         prometheus.Gauge
}

var _ dnssteal.Observer = &Metrics{}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnssteal_fragments_total",
			Help: "Total number of fragments stored.",
		}),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnssteal_rejected_fragments_total",
				Help: "Total number of data queries that could not be decoded.",
			},
			[]string{"reason"},
		),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dnssteal_files_total",
			Help: "Total number of files successfully assembled.",
		}),
		assemblyFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dnssteal_assembly_failures_total",
				Help: "Total number of transfers discarded by the sweeper.",
			},
			[]string{"reason"},
		),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dnssteal_inflight_transfers",
			Help: "Number of transfers waiting for more fragments.",
		}),
	}

	collectors := []prometheus.Collector{
		m.fragments,
		m.rejected,
		m.files,
		m.assemblyFailures,
		m.inflight,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FragmentAccepted implements [dnssteal.Observer].
func (m *Metrics) FragmentAccepted(dnssteal.Fragment) {
	m.fragments.Inc()
}

// FragmentRejected implements [dnssteal.Observer].
func (m *Metrics) FragmentRejected(err error) {
	m.rejected.WithLabelValues(dnssteal.ErrorReason(err)).Inc()
}

// FileCompleted implements [dnssteal.Observer].
func (m *Metrics) FileCompleted(dnssteal.CompletedFile) {
	m.files.Inc()
}

// AssemblyFailed implements [dnssteal.Observer].
func (m *Metrics) AssemblyFailed(_ string, err error) {
	m.assemblyFailures.WithLabelValues(dnssteal.ErrorReason(err)).Inc()
}

// InflightTransfers implements [dnssteal.Observer].
func (m *Metrics) InflightTransfers(count int) {
	m.inflight.Set(float64(count))
}
