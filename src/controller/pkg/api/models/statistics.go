package models

import "time"

// StatisticsResponse represents the controller counters
type StatisticsResponse struct {
	BlockedTotal    uint64            `json:"blocked_total"`
	Blocked         uint64            `json:"blocked"`
	Flooded         uint64            `json:"flooded"`
	Forwarded       uint64            `json:"forwarded"`
	FlowInstalls    uint64            `json:"flow_installs"`
	LatencySamples  int               `json:"latency_samples"`
	Reconciliations int               `json:"reconciliations"`
	PerSwitch       map[string]uint64 `json:"per_switch_blocked"`
}

// LatencyResponse represents packet-in handling latency
type LatencyResponse struct {
	Count   int       `json:"count"`
	MinMs   float64   `json:"min_ms"`
	MeanMs  float64   `json:"mean_ms"`
	P95Ms   float64   `json:"p95_ms"`
	MaxMs   float64   `json:"max_ms"`
	Samples []float64 `json:"samples"`
}

// BlockedSample is the blocked total after one reconciliation
type BlockedSample struct {
	Time    time.Time `json:"time"`
	Blocked uint64    `json:"blocked"`
}

// BlockedResponse represents the blocked-packet series
type BlockedResponse struct {
	BlockedTotal uint64          `json:"blocked_total"`
	Samples      []BlockedSample `json:"samples"`
}
