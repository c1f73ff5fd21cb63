// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package flow

import (
	"errors"
	"fmt"

	"github.com/hkwi/gopenflow/ofp4"
	log "github.com/sirupsen/logrus"

	"github.com/openflow-firewall/src/controller/pkg/policy"
)

// NoBuffer marks a packet that the switch did not buffer
const NoBuffer = uint32(ofp4.OFP_NO_BUFFER)

// Sender writes one OpenFlow message to a switch.
// dataplane.Session satisfies it.
type Sender interface {
	Send(msg ofp4.Header) error
}

// PacketOut describes a packet the controller sends back to a switch.
// When BufferID is not NoBuffer the switch releases its buffered copy and
// Data is not transmitted.
type PacketOut struct {
	BufferID uint32
	InPort   uint32
	Action   Action
	Data     []byte
}

// Installer writes flow rules and packet-outs to switches
type Installer struct{}

// NewInstaller creates an installer
func NewInstaller() *Installer {
	return &Installer{}
}

// Install writes a single rule
func (i *Installer) Install(s Sender, r Rule) error {
	if err := s.Send(EncodeFlowMod(r)); err != nil {
		return fmt.Errorf("failed to install rule %s: %w", r, err)
	}
	log.Debugf("Installed rule %s", r)
	return nil
}

// InstallTableMiss installs the priority 0 send-to-controller rule
func (i *Installer) InstallTableMiss(s Sender) error {
	return i.Install(s, TableMissRule())
}

// InstallStaticDrops installs two drop rules per pair, one per direction,
// then sends a barrier so the switch commits them before any packet-in is
// handled. Every rule is attempted; failures are joined.
func (i *Installer) InstallStaticDrops(s Sender, pairs []policy.BlockedPair) error {
	var errs []error

	for _, p := range pairs {
		for _, dir := range p.Directions() {
			if err := i.Install(s, DropRule(dir[0], dir[1])); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := SendBarrier(s); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// InstallLearnedForward installs a priority 1 rule forwarding m to port
func (i *Installer) InstallLearnedForward(s Sender, m Match, port uint32) error {
	return i.Install(s, ForwardRule(m, port))
}

// SendPacketOut sends a packet-out
func SendPacketOut(s Sender, p PacketOut) error {
	if err := s.Send(EncodePacketOut(p)); err != nil {
		return fmt.Errorf("failed to send packet-out: %w", err)
	}
	return nil
}

// RequestFlowStats asks the switch for statistics on all flows
func RequestFlowStats(s Sender) error {
	if err := s.Send(EncodeFlowStatsRequest()); err != nil {
		return fmt.Errorf("failed to request flow stats: %w", err)
	}
	return nil
}

// SendBarrier sends a barrier request
func SendBarrier(s Sender) error {
	if err := s.Send(EncodeBarrierRequest()); err != nil {
		return fmt.Errorf("failed to send barrier: %w", err)
	}
	return nil
}
