// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package stats owns the controller's telemetry: packet-in latency samples,
// the blocked-packet total and the poller that keeps that total honest by
// reading drop-rule counters back from the switches.
package stats

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/flow"
)

// Sample is the blocked total observed after one reconciliation
type Sample struct {
	Time    time.Time `json:"time"`
	Blocked uint64    `json:"blocked"`
}

// Statistics is a point-in-time view of the counters
type Statistics struct {
	BlockedTotal    uint64            `json:"blocked_total"`
	Blocked         uint64            `json:"blocked"`
	Flooded         uint64            `json:"flooded"`
	Forwarded       uint64            `json:"forwarded"`
	FlowInstalls    uint64            `json:"flow_installs"`
	LatencySamples  int               `json:"latency_samples"`
	Reconciliations int               `json:"reconciliations"`
	PerSwitch       map[string]uint64 `json:"per_switch_blocked"`
}

// Report summarises a run. The zero value means nothing was recorded.
type Report struct {
	LatencySamples  int     `json:"latency_samples"`
	MinLatencyMs    float64 `json:"min_latency_ms"`
	MeanLatencyMs   float64 `json:"mean_latency_ms"`
	P95LatencyMs    float64 `json:"p95_latency_ms"`
	MaxLatencyMs    float64 `json:"max_latency_ms"`
	BlockedTotal    uint64  `json:"blocked_total"`
	Reconciliations int     `json:"reconciliations"`
}

// Collector accumulates telemetry. Safe for concurrent use.
type Collector struct {
	clock   clock.PassiveClock
	metrics *metrics

	mu        sync.Mutex
	latencies []float64
	blocked   uint64
	perSwitch map[uint64]uint64
	samples   []Sample

	// controller-side decision tallies, never reconciled
	decBlocked   uint64
	decFlooded   uint64
	decForwarded uint64
	installs     uint64
}

// NewCollector creates a collector. Metrics are registered on reg when it
// is not nil.
func NewCollector(reg prometheus.Registerer, clk clock.PassiveClock) *Collector {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Collector{
		clock:     clk,
		metrics:   newMetrics(reg),
		perSwitch: make(map[uint64]uint64),
	}
}

// IncBlocked counts one packet blocked by the controller
func (c *Collector) IncBlocked() {
	c.mu.Lock()
	c.blocked++
	c.decBlocked++
	total := c.blocked
	c.mu.Unlock()

	c.metrics.decisions.WithLabelValues(DecisionBlocked).Inc()
	c.metrics.blockedTotal.Set(float64(total))
}

// IncFlooded counts one packet flooded because the destination was unknown
func (c *Collector) IncFlooded() {
	c.mu.Lock()
	c.decFlooded++
	c.mu.Unlock()
	c.metrics.decisions.WithLabelValues(DecisionFlooded).Inc()
}

// IncForwarded counts one packet sent to a learned port
func (c *Collector) IncForwarded() {
	c.mu.Lock()
	c.decForwarded++
	c.mu.Unlock()
	c.metrics.decisions.WithLabelValues(DecisionForwarded).Inc()
}

// IncFlowInstall counts one learned rule installed
func (c *Collector) IncFlowInstall() {
	c.mu.Lock()
	c.installs++
	c.mu.Unlock()
	c.metrics.flowInstalls.Inc()
}

// RecordLatency appends one packet-in handling time
func (c *Collector) RecordLatency(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)

	c.mu.Lock()
	c.latencies = append(c.latencies, ms)
	c.mu.Unlock()

	c.metrics.latency.Observe(ms)
}

// Reconcile replaces the drop count of switch id with the sum of packet
// counts over its drop rules, sets the blocked total to the sum over all
// switches and records a sample. It returns the new total.
func (c *Collector) Reconcile(id uint64, stats []flow.Stat) uint64 {
	var drops uint64
	for _, s := range stats {
		if s.Drop {
			drops += s.PacketCount
		}
	}

	c.mu.Lock()
	c.perSwitch[id] = drops
	var total uint64
	for _, n := range c.perSwitch {
		total += n
	}
	c.blocked = total
	c.samples = append(c.samples, Sample{Time: c.clock.Now(), Blocked: total})
	c.mu.Unlock()

	c.metrics.blockedTotal.Set(float64(total))
	c.metrics.statsReplies.Inc()

	log.WithFields(log.Fields{
		"switch": dataplane.FormatDatapathID(id),
		"drops":  drops,
		"total":  total,
	}).Debug("Reconciled blocked total")

	return total
}

// BlockedTotal returns the current blocked total
func (c *Collector) BlockedTotal() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocked
}

// Latencies returns a copy of the latency samples in milliseconds
func (c *Collector) Latencies() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.latencies...)
}

// Samples returns a copy of the blocked-total series
func (c *Collector) Samples() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Sample(nil), c.samples...)
}

// Statistics returns the current counters
func (c *Collector) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	per := make(map[string]uint64, len(c.perSwitch))
	for id, n := range c.perSwitch {
		per[dataplane.FormatDatapathID(id)] = n
	}

	return Statistics{
		BlockedTotal:    c.blocked,
		Blocked:         c.decBlocked,
		Flooded:         c.decFlooded,
		Forwarded:       c.decForwarded,
		FlowInstalls:    c.installs,
		LatencySamples:  len(c.latencies),
		Reconciliations: len(c.samples),
		PerSwitch:       per,
	}
}

// Summary computes the end-of-run report
func (c *Collector) Summary() Report {
	c.mu.Lock()
	lat := append([]float64(nil), c.latencies...)
	r := Report{BlockedTotal: c.blocked, Reconciliations: len(c.samples)}
	c.mu.Unlock()

	if len(lat) == 0 {
		return r
	}

	sort.Float64s(lat)
	var sum float64
	for _, v := range lat {
		sum += v
	}

	r.LatencySamples = len(lat)
	r.MinLatencyMs = lat[0]
	r.MaxLatencyMs = lat[len(lat)-1]
	r.MeanLatencyMs = sum / float64(len(lat))
	r.P95LatencyMs = percentile(lat, 0.95)
	return r
}

// percentile uses nearest-rank on sorted input
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
