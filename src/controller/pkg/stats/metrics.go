// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "openflow_firewall"

// Decision labels for the decisions counter
const (
	DecisionBlocked   = "blocked"
	DecisionFlooded   = "flooded"
	DecisionForwarded = "forwarded"
)

type metrics struct {
	latency      prometheus.Histogram
	blockedTotal prometheus.Gauge
	decisions    *prometheus.CounterVec
	flowInstalls prometheus.Counter
	statsReplies prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "packet_in_latency_milliseconds",
			Help:      "Time spent handling a packet-in, from decode to packet-out.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		}),
		blockedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocked_packets",
			Help:      "Running total of blocked packets, reconciled from switch drop-rule counters.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_in_decisions_total",
			Help:      "Packet-in decisions taken by the controller.",
		}, []string{"decision"}),
		flowInstalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learned_flows_installed_total",
			Help:      "Learned forwarding rules installed on switches.",
		}),
		statsReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flow_stats_replies_total",
			Help:      "Flow statistics replies reconciled.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.latency, m.blockedTotal, m.decisions, m.flowInstalls, m.statsReplies)
	}
	return m
}
