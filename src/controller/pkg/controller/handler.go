// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package controller

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"

	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/flow"
)

var (
	// ErrMalformedFrame is returned for a packet-in without a decodable
	// Ethernet header
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownSwitch is returned for a packet-in from a switch that is
	// not registered
	ErrUnknownSwitch = errors.New("unknown switch")
)

// HandleConnect registers the switch and installs its table-miss rule
// followed by the static drop rules. A reconnect replaces the previous
// session and forgets what was learned through it. Every install is
// attempted; failures are joined.
func (c *Controller) HandleConnect(ev dataplane.SwitchConnected) error {
	logger := log.WithField("switch", dataplane.FormatDatapathID(ev.DatapathID))

	if replaced := c.switches.Connect(ev.DatapathID, ev.Session); replaced {
		c.macs.Forget(ev.DatapathID)
		logger.Info("Switch reconnected, previous session replaced")
	} else {
		logger.Info("Switch connected")
	}

	var errs []error
	if err := c.installer.InstallTableMiss(ev.Session); err != nil {
		errs = append(errs, err)
	}

	pairs := c.policy.Pairs()
	if err := c.installer.InstallStaticDrops(ev.Session, pairs); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	logger.Infof("Installed table-miss and %d drop rules", 2*len(pairs))
	return nil
}

// HandleDisconnect removes the switch. An event for a session that has
// already been replaced by a reconnect is ignored.
func (c *Controller) HandleDisconnect(ev dataplane.SwitchDisconnected) {
	logger := log.WithField("switch", dataplane.FormatDatapathID(ev.DatapathID))

	if !c.switches.DisconnectSession(ev.DatapathID, ev.Session) {
		logger.Debug("Stale disconnect ignored")
		return
	}
	c.macs.Forget(ev.DatapathID)
	logger.Info("Switch disconnected")
}

// HandleFlowStats reconciles the blocked total against the switch's drop
// rule counters
func (c *Controller) HandleFlowStats(ev dataplane.FlowStatsReply) {
	c.telemetry.Reconcile(ev.DatapathID, ev.Stats)
}

// HandlePacketIn decides what to do with one packet the switch could not
// match. Nothing is mutated when an error is returned before learning.
func (c *Controller) HandlePacketIn(ev dataplane.PacketIn) error {
	start := c.clock.Now()

	pkt := gopacket.NewPacket(ev.Data, layers.LayerTypeEthernet, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return fmt.Errorf("%w: no ethernet header in %d bytes", ErrMalformedFrame, len(ev.Data))
	}
	eth := ethLayer.(*layers.Ethernet)

	if eth.EthernetType == layers.EthernetTypeLinkLayerDiscovery {
		return nil
	}

	sw, ok := c.switches.Get(ev.DatapathID)
	if !ok {
		return fmt.Errorf("%w %s", ErrUnknownSwitch, dataplane.FormatDatapathID(ev.DatapathID))
	}

	var ip *layers.IPv4
	if l := pkt.Layer(layers.LayerTypeIPv4); l != nil {
		ip = l.(*layers.IPv4)
	}

	logger := log.WithFields(log.Fields{
		"switch":  dataplane.FormatDatapathID(ev.DatapathID),
		"in_port": ev.InPort,
		"src":     eth.SrcMAC.String(),
		"dst":     eth.DstMAC.String(),
	})

	if ip != nil && c.policy.IsBlocked(ip.SrcIP, ip.DstIP) {
		c.telemetry.IncBlocked()
		logger.Debugf("Blocked %s -> %s", ip.SrcIP, ip.DstIP)
		return nil
	}

	c.macs.Learn(ev.DatapathID, eth.SrcMAC, ev.InPort)

	action := flow.Flood()
	if port, known := c.macs.Lookup(ev.DatapathID, eth.DstMAC); known {
		action = flow.Output(port)
		if err := c.installer.InstallLearnedForward(sw.Session, c.learnedMatch(ev.InPort, eth, ip), port); err != nil {
			return err
		}
		c.telemetry.IncFlowInstall()
		c.telemetry.IncForwarded()
	} else {
		c.telemetry.IncFlooded()
	}

	out := flow.PacketOut{
		BufferID: ev.BufferID,
		InPort:   ev.InPort,
		Action:   action,
		Data:     ev.Data,
	}
	if err := flow.SendPacketOut(sw.Session, out); err != nil {
		return err
	}

	c.telemetry.RecordLatency(c.clock.Since(start))
	logger.Debugf("Packet-out %s", action)
	return nil
}

// learnedMatch builds the match for a learned forwarding rule. In l2l3
// mode the ethertype is always matched, and IPv4 packets add both
// addresses.
func (c *Controller) learnedMatch(inPort uint32, eth *layers.Ethernet, ip *layers.IPv4) flow.Match {
	m := flow.Match{InPort: inPort, EthDst: eth.DstMAC}
	if !c.matchL3 {
		return m
	}

	m.EthType = uint16(eth.EthernetType)
	if ip == nil {
		return m
	}

	src, okSrc := netip.AddrFromSlice(ip.SrcIP.To4())
	dst, okDst := netip.AddrFromSlice(ip.DstIP.To4())
	if okSrc && okDst {
		m.EthType = flow.EthTypeIPv4
		m.IPv4Src = src
		m.IPv4Dst = dst
	}
	return m
}
