// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"fmt"

	"github.com/hkwi/gopenflow/ofp4"

	"github.com/openflow-firewall/src/controller/pkg/flow"
)

// Session is the control channel to one switch.
// This interface is useful for testing and dependency injection.
type Session interface {
	DatapathID() uint64
	Send(msg ofp4.Header) error
	Close() error
}

// Ensure conn implements Session and flow.Sender
var (
	_ Session     = (*conn)(nil)
	_ flow.Sender = (Session)(nil)
)

// Event is one of SwitchConnected, SwitchDisconnected, PacketIn or
// FlowStatsReply
type Event interface {
	Switch() uint64
	Kind() string
}

// SwitchConnected is emitted after a successful handshake
type SwitchConnected struct {
	DatapathID uint64
	Session    Session
}

// SwitchDisconnected is emitted when a session ends. Session identifies
// which connection ended, so a stale disconnect can be told apart from
// the current one after a reconnect.
type SwitchDisconnected struct {
	DatapathID uint64
	Session    Session
}

// PacketIn carries a frame sent to the controller
type PacketIn struct {
	DatapathID uint64
	InPort     uint32
	BufferID   uint32
	TotalLen   uint16
	Data       []byte
}

// FlowStatsReply carries every entry of one flow-stats reply
type FlowStatsReply struct {
	DatapathID uint64
	Stats      []flow.Stat
}

func (e SwitchConnected) Switch() uint64    { return e.DatapathID }
func (e SwitchDisconnected) Switch() uint64 { return e.DatapathID }
func (e PacketIn) Switch() uint64           { return e.DatapathID }
func (e FlowStatsReply) Switch() uint64     { return e.DatapathID }

func (SwitchConnected) Kind() string    { return "switch_connected" }
func (SwitchDisconnected) Kind() string { return "switch_disconnected" }
func (PacketIn) Kind() string           { return "packet_in" }
func (FlowStatsReply) Kind() string     { return "flow_stats_reply" }

// FormatDatapathID renders a datapath id the way switches print it
func FormatDatapathID(id uint64) string {
	return fmt.Sprintf("%016x", id)
}
