// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package controller

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/flow"
	"github.com/openflow-firewall/src/controller/pkg/maclearn"
	"github.com/openflow-firewall/src/controller/pkg/policy"
	"github.com/openflow-firewall/src/controller/pkg/registry"
	"github.com/openflow-firewall/src/controller/pkg/stats"
)

// Learned match modes
const (
	// LearnedMatchL2L3 adds eth_type to learned rules, and ipv4_src and
	// ipv4_dst for IPv4 packets
	LearnedMatchL2L3 = "l2l3"
	// LearnedMatchL2 matches learned rules on in_port and eth_dst only
	LearnedMatchL2 = "l2"
)

// Options tunes a Controller
type Options struct {
	// LearnedMatch is LearnedMatchL2L3 (default) or LearnedMatchL2
	LearnedMatch string
	// Clock measures packet-in latency. Defaults to the real clock.
	Clock clock.PassiveClock
}

// ParseLearnedMatch validates a learned match mode. Empty selects
// LearnedMatchL2L3.
func ParseLearnedMatch(s string) (string, error) {
	switch strings.ToLower(s) {
	case "", LearnedMatchL2L3:
		return LearnedMatchL2L3, nil
	case LearnedMatchL2:
		return LearnedMatchL2, nil
	default:
		return "", fmt.Errorf("invalid learned match %q (want %s or %s)", s, LearnedMatchL2L3, LearnedMatchL2)
	}
}

// Controller owns the decision state shared by the event handlers. Its
// handlers must be called from one goroutine; Run does that.
type Controller struct {
	switches  *registry.Registry
	macs      *maclearn.Table
	policy    policy.Checker
	installer *flow.Installer
	telemetry *stats.Collector

	matchL3 bool
	clock   clock.PassiveClock
}

// New creates a controller. An invalid LearnedMatch falls back to
// LearnedMatchL2L3; validate it with ParseLearnedMatch first.
func New(switches *registry.Registry, macs *maclearn.Table, checker policy.Checker,
	telemetry *stats.Collector, opts Options) *Controller {
	mode, err := ParseLearnedMatch(opts.LearnedMatch)
	if err != nil {
		log.Warnf("%v, using %s", err, LearnedMatchL2L3)
		mode = LearnedMatchL2L3
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &Controller{
		switches:  switches,
		macs:      macs,
		policy:    checker,
		installer: flow.NewInstaller(),
		telemetry: telemetry,
		matchL3:   mode == LearnedMatchL2L3,
		clock:     clk,
	}
}

// Dispatch routes one event to its handler
func (c *Controller) Dispatch(ev dataplane.Event) error {
	switch e := ev.(type) {
	case dataplane.SwitchConnected:
		return c.HandleConnect(e)
	case dataplane.SwitchDisconnected:
		c.HandleDisconnect(e)
		return nil
	case dataplane.PacketIn:
		return c.HandlePacketIn(e)
	case dataplane.FlowStatsReply:
		c.HandleFlowStats(e)
		return nil
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// Run dispatches events serially until the channel is closed. Handler
// errors are logged with the switch and event kind and never stop the loop.
func (c *Controller) Run(events <-chan dataplane.Event) {
	log.Info("Event dispatcher started")
	defer log.Info("Event dispatcher stopped")

	for ev := range events {
		if err := c.Dispatch(ev); err != nil {
			log.WithFields(log.Fields{
				"switch": dataplane.FormatDatapathID(ev.Switch()),
				"event":  ev.Kind(),
			}).Warnf("Event handling failed: %v", err)
		}
	}
}
