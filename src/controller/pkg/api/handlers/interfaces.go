package handlers

import (
	"github.com/openflow-firewall/src/controller/pkg/maclearn"
	"github.com/openflow-firewall/src/controller/pkg/registry"
	"github.com/openflow-firewall/src/controller/pkg/stats"
)

// StatsProvider is the read side of the telemetry collector
type StatsProvider interface {
	Statistics() stats.Statistics
	Summary() stats.Report
	Latencies() []float64
	Samples() []stats.Sample
}

// SwitchLister is the read side of the switch registry
type SwitchLister interface {
	List() []*registry.Switch
	Get(id uint64) (*registry.Switch, bool)
}

// MACReader is the read side of the MAC learning table
type MACReader interface {
	Entries(id uint64) []maclearn.Entry
}
