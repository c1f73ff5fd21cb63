// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package stats

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/flow"
	"github.com/openflow-firewall/src/controller/pkg/registry"
)

// DefaultPollInterval is how often flow statistics are requested
const DefaultPollInterval = 10 * time.Second

// Lister is the read side of the switch registry
type Lister interface {
	List() []*registry.Switch
	Get(id uint64) (*registry.Switch, bool)
}

// Poller periodically requests flow statistics from every connected
// switch. Replies arrive as dataplane events and are reconciled by the
// dispatcher, not here.
type Poller struct {
	switches Lister
	interval time.Duration
	clock    clock.WithTicker
}

// NewPoller creates a poller. A non-positive interval selects
// DefaultPollInterval.
func NewPoller(switches Lister, interval time.Duration, clk clock.WithTicker) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Poller{switches: switches, interval: interval, clock: clk}
}

// Run polls every interval until ctx is cancelled. It returns once the
// loop has exited.
func (p *Poller) Run(ctx context.Context) {
	log.Infof("Statistics poller started (interval %s)", p.interval)
	defer log.Info("Statistics poller stopped")

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.PollOnce()
		}
	}
}

// PollOnce sends one flow-stats request to each switch in a registry
// snapshot and returns how many were sent. Switches that disconnected
// after the snapshot are skipped; send errors are logged and skipped.
func (p *Poller) PollOnce() int {
	sent := 0

	for _, sw := range p.switches.List() {
		logger := log.WithField("switch", dataplane.FormatDatapathID(sw.ID))

		if cur, ok := p.switches.Get(sw.ID); !ok || cur.Session != sw.Session {
			logger.Debug("Switch left before poll, skipping")
			continue
		}

		if err := flow.RequestFlowStats(sw.Session); err != nil {
			logger.Warnf("Flow stats request failed: %v", err)
			continue
		}
		sent++
	}

	return sent
}
