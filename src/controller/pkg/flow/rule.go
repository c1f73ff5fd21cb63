// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package flow

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"github.com/hkwi/gopenflow/oxm"
)

// Rule priorities. Higher wins.
const (
	PriorityTableMiss uint16 = 0
	PriorityLearned   uint16 = 1
	PriorityDrop      uint16 = 10
)

// EthTypeIPv4 is the ethertype matched by drop rules and L3 learned rules
const EthTypeIPv4 uint16 = 0x0800

// ActionKind enumerates what a rule or packet-out does with a packet
type ActionKind int

const (
	ActionDrop ActionKind = iota
	ActionOutput
	ActionFlood
	ActionController
)

func (k ActionKind) String() string {
	switch k {
	case ActionDrop:
		return "drop"
	case ActionOutput:
		return "output"
	case ActionFlood:
		return "flood"
	case ActionController:
		return "controller"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is the single action carried by a rule or packet-out.
// Port is only meaningful for ActionOutput.
type Action struct {
	Kind ActionKind
	Port uint32
}

// Output returns an action forwarding to port
func Output(port uint32) Action { return Action{Kind: ActionOutput, Port: port} }

// Flood returns an action flooding out of every port except the ingress
func Flood() Action { return Action{Kind: ActionFlood} }

// Drop returns the empty action
func Drop() Action { return Action{Kind: ActionDrop} }

// ToController returns an action punting the packet to the controller
func ToController() Action { return Action{Kind: ActionController} }

func (a Action) String() string {
	if a.Kind == ActionOutput {
		return fmt.Sprintf("output:%d", a.Port)
	}
	return a.Kind.String()
}

// Match selects packets. Zero-valued fields are wildcards, so the zero
// Match matches everything.
type Match struct {
	InPort  uint32
	EthType uint16
	EthDst  net.HardwareAddr
	IPv4Src netip.Addr
	IPv4Dst netip.Addr
}

// IsWildcard reports whether the match has no fields set
func (m Match) IsWildcard() bool {
	return m.InPort == 0 && m.EthType == 0 && len(m.EthDst) == 0 &&
		!m.IPv4Src.IsValid() && !m.IPv4Dst.IsValid()
}

// String renders the match in ovs-ofctl style, e.g. "in_port=1,eth_dst=..."
func (m Match) String() string {
	fields := m.oxmFields()
	if len(fields) == 0 {
		return "any"
	}
	return oxm.Oxm(fields).String()
}

// oxmFields encodes the match as a sequence of OXM TLVs. eth_type is
// emitted before the ipv4 fields, and added implicitly when an ipv4 field is
// present without it, so prerequisites are always satisfied.
func (m Match) oxmFields() []byte {
	var buf []byte

	if m.InPort != 0 {
		v := make([]byte, 4)
		binary.BigEndian.PutUint32(v, m.InPort)
		buf = appendOxm(buf, oxm.OXM_OF_IN_PORT, v)
	}
	if len(m.EthDst) == 6 {
		buf = appendOxm(buf, oxm.OXM_OF_ETH_DST, m.EthDst)
	}

	ethType := m.EthType
	if ethType == 0 && (m.IPv4Src.Is4() || m.IPv4Dst.Is4()) {
		ethType = EthTypeIPv4
	}
	if ethType != 0 {
		v := make([]byte, 2)
		binary.BigEndian.PutUint16(v, ethType)
		buf = appendOxm(buf, oxm.OXM_OF_ETH_TYPE, v)
	}
	if m.IPv4Src.Is4() {
		a := m.IPv4Src.As4()
		buf = appendOxm(buf, oxm.OXM_OF_IPV4_SRC, a[:])
	}
	if m.IPv4Dst.Is4() {
		a := m.IPv4Dst.As4()
		buf = appendOxm(buf, oxm.OXM_OF_IPV4_DST, a[:])
	}

	return buf
}

func appendOxm(buf []byte, field oxm.Header, value []byte) []byte {
	hdr := field
	hdr.SetLength(len(value))

	tlv := make([]byte, 4+len(value))
	binary.BigEndian.PutUint32(tlv, uint32(hdr))
	copy(tlv[4:], value)
	return append(buf, tlv...)
}

// parseOxmFields is the inverse of oxmFields. Masked and unknown fields
// are ignored.
func parseOxmFields(fields []byte) (Match, error) {
	var m Match

	for cur := 0; cur < len(fields); {
		if len(fields)-cur < 4 {
			return Match{}, fmt.Errorf("%w: truncated oxm header", ErrMalformedMessage)
		}
		length := int(fields[cur+3])
		if cur+4+length > len(fields) {
			return Match{}, fmt.Errorf("%w: truncated oxm field", ErrMalformedMessage)
		}
		tlv := oxm.Oxm(fields[cur : cur+4+length])
		cur += 4 + length

		hdr := tlv.Header()
		if hdr.Class() != oxm.OFPXMC_OPENFLOW_BASIC || hdr.HasMask() {
			continue
		}
		p := []byte(tlv[4:])

		switch hdr.Field() {
		case oxm.OFPXMT_OFB_IN_PORT:
			if len(p) == 4 {
				m.InPort = binary.BigEndian.Uint32(p)
			}
		case oxm.OFPXMT_OFB_ETH_DST:
			if len(p) == 6 {
				m.EthDst = append(net.HardwareAddr(nil), p...)
			}
		case oxm.OFPXMT_OFB_ETH_TYPE:
			if len(p) == 2 {
				m.EthType = binary.BigEndian.Uint16(p)
			}
		case oxm.OFPXMT_OFB_IPV4_SRC:
			if len(p) == 4 {
				m.IPv4Src = netip.AddrFrom4([4]byte(p))
			}
		case oxm.OFPXMT_OFB_IPV4_DST:
			if len(p) == 4 {
				m.IPv4Dst = netip.AddrFrom4([4]byte(p))
			}
		}
	}

	return m, nil
}

// Rule is a flow-table entry as the controller models it
type Rule struct {
	Priority uint16
	Match    Match
	Action   Action
}

func (r Rule) String() string {
	return fmt.Sprintf("priority=%d,%s actions=%s", r.Priority, r.Match, r.Action)
}

// TableMissRule sends every otherwise unmatched packet to the controller
func TableMissRule() Rule {
	return Rule{Priority: PriorityTableMiss, Action: ToController()}
}

// DropRule drops IPv4 traffic from src to dst
func DropRule(src, dst netip.Addr) Rule {
	return Rule{
		Priority: PriorityDrop,
		Match:    Match{EthType: EthTypeIPv4, IPv4Src: src, IPv4Dst: dst},
		Action:   Drop(),
	}
}

// ForwardRule outputs packets matching m to port
func ForwardRule(m Match, port uint32) Rule {
	return Rule{Priority: PriorityLearned, Match: m, Action: Output(port)}
}
