// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package flow

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hkwi/gopenflow/ofp4"
)

// ErrMalformedMessage is returned when an OpenFlow message cannot be decoded
var ErrMalformedMessage = errors.New("malformed openflow message")

const (
	headerLen     = 8
	flowModLen    = 48 // header + fixed flow_mod body, match follows
	packetOutLen  = 24 // header + fixed packet_out body, actions follow
	flowStatsLen  = 48 // fixed ofp_flow_stats, match follows
	minMatchLen   = 8
	flowStatsBody = 32 // fixed ofp_flow_stats_request, match follows
)

// Stat is one decoded entry of a flow-stats reply
type Stat struct {
	Priority    uint16
	PacketCount uint64
	ByteCount   uint64
	Match       Match
	Action      Action
	// Drop is true when the rule carries no output action and no goto
	Drop bool
}

// EncodeFlowMod builds an OFPFC_ADD flow_mod for r in table 0, with no
// timeouts and no buffer.
func EncodeFlowMod(r Rule) ofp4.Header {
	body := make([]byte, flowModLen-headerLen)
	body[16] = 0 // table_id
	body[17] = uint8(ofp4.OFPFC_ADD)
	binary.BigEndian.PutUint16(body[22:], r.Priority)
	binary.BigEndian.PutUint32(body[24:], uint32(ofp4.OFP_NO_BUFFER))
	binary.BigEndian.PutUint32(body[28:], uint32(ofp4.OFPP_ANY))
	binary.BigEndian.PutUint32(body[32:], uint32(ofp4.OFPG_ANY))

	msg := ofp4.MakeHeader(uint8(ofp4.OFPT_FLOW_MOD)).
		AppendData(body).
		AppendData(EncodeMatch(r.Match))

	if actions := encodeAction(r.Action); len(actions) > 0 {
		msg = msg.AppendData(ofp4.MakeInstructionActions(uint16(ofp4.OFPIT_APPLY_ACTIONS), actions))
	}
	return msg
}

// ParseFlowMod decodes a flow_mod produced by EncodeFlowMod
func ParseFlowMod(msg []byte) (Rule, error) {
	if err := checkHeader(msg, uint8(ofp4.OFPT_FLOW_MOD), flowModLen+minMatchLen); err != nil {
		return Rule{}, err
	}
	fm := ofp4.FlowMod(msg)

	match, end, err := parseMatchAt(msg, flowModLen)
	if err != nil {
		return Rule{}, err
	}

	action, _, err := decodeInstructions(msg[end:ofp4.Header(msg).Length()])
	if err != nil {
		return Rule{}, err
	}

	return Rule{Priority: fm.Priority(), Match: match, Action: action}, nil
}

// EncodePacketOut builds a packet_out for p
func EncodePacketOut(p PacketOut) ofp4.Header {
	actions := encodeAction(p.Action)

	body := make([]byte, packetOutLen-headerLen)
	binary.BigEndian.PutUint32(body[0:], p.BufferID)
	binary.BigEndian.PutUint32(body[4:], p.InPort)
	binary.BigEndian.PutUint16(body[8:], uint16(len(actions)))

	msg := ofp4.MakeHeader(uint8(ofp4.OFPT_PACKET_OUT)).AppendData(body).AppendData(actions)
	if p.BufferID == uint32(ofp4.OFP_NO_BUFFER) {
		msg = msg.AppendData(p.Data)
	}
	return msg
}

// ParsePacketOut decodes a packet_out produced by EncodePacketOut
func ParsePacketOut(msg []byte) (PacketOut, error) {
	if err := checkHeader(msg, uint8(ofp4.OFPT_PACKET_OUT), packetOutLen); err != nil {
		return PacketOut{}, err
	}
	po := ofp4.PacketOut(msg)
	if packetOutLen+po.ActionsLen() > ofp4.Header(msg).Length() {
		return PacketOut{}, fmt.Errorf("%w: packet_out actions overrun", ErrMalformedMessage)
	}

	action, err := decodeActions(po.Actions())
	if err != nil {
		return PacketOut{}, err
	}

	out := PacketOut{
		BufferID: po.BufferId(),
		InPort:   po.InPort(),
		Action:   action,
	}
	if data := po.Data(); len(data) > 0 {
		out.Data = append([]byte(nil), data...)
	}
	return out, nil
}

// EncodeFlowStatsRequest builds a multipart flow-stats request covering
// every table, port and group with an empty match
func EncodeFlowStatsRequest() ofp4.Header {
	body := make([]byte, flowStatsBody)
	body[0] = uint8(ofp4.OFPTT_ALL)
	binary.BigEndian.PutUint32(body[4:], uint32(ofp4.OFPP_ANY))
	binary.BigEndian.PutUint32(body[8:], uint32(ofp4.OFPG_ANY))
	body = append(body, ofp4.MakeMatch(nil)...)

	return ofp4.MakeMultipartRequest(uint16(ofp4.OFPMP_FLOW), 0, body)
}

// EncodeBarrierRequest builds a barrier request
func EncodeBarrierRequest() ofp4.Header {
	return ofp4.MakeHeader(uint8(ofp4.OFPT_BARRIER_REQUEST))
}

// ParseFlowStats decodes the body of an OFPMP_FLOW multipart reply
func ParseFlowStats(body []byte) ([]Stat, error) {
	var stats []Stat

	for cur := 0; cur < len(body); {
		if len(body)-cur < flowStatsLen+minMatchLen {
			return nil, fmt.Errorf("%w: truncated flow stats entry", ErrMalformedMessage)
		}
		fs := ofp4.FlowStats(body[cur:])
		length := fs.Length()
		if length < flowStatsLen+minMatchLen || cur+length > len(body) {
			return nil, fmt.Errorf("%w: bad flow stats length %d", ErrMalformedMessage, length)
		}
		entry := body[cur : cur+length]
		cur += length

		match, end, err := parseMatchAt(entry, flowStatsLen)
		if err != nil {
			return nil, err
		}
		action, drop, err := decodeInstructions(entry[end:])
		if err != nil {
			return nil, err
		}

		stats = append(stats, Stat{
			Priority:    fs.Priority(),
			PacketCount: fs.PacketCount(),
			ByteCount:   fs.ByteCount(),
			Match:       match,
			Action:      action,
			Drop:        drop,
		})
	}

	return stats, nil
}

// EncodeFlowStatsReply builds a single-part flow-stats reply. Used by fake
// switches and tests.
func EncodeFlowStatsReply(stats []Stat) ofp4.Header {
	var body []byte
	for _, s := range stats {
		var inst ofp4.Instruction
		if !s.Drop {
			if actions := encodeAction(s.Action); len(actions) > 0 {
				inst = ofp4.MakeInstructionActions(uint16(ofp4.OFPIT_APPLY_ACTIONS), actions)
			}
		}
		entry := ofp4.MakeFlowStats(0, 0, 0, s.Priority, 0, 0, 0, 0,
			s.PacketCount, s.ByteCount, EncodeMatch(s.Match), inst)
		body = append(body, entry...)
	}
	return ofp4.MakeMultipartReply(uint16(ofp4.OFPMP_FLOW), 0, body)
}

// EncodeMatch encodes m as a padded OXM ofp_match
func EncodeMatch(m Match) ofp4.Match {
	return ofp4.MakeMatch(m.oxmFields())
}

// DecodeMatch decodes the OXM ofp_match at the start of raw
func DecodeMatch(raw []byte) (Match, error) {
	m, _, err := parseMatchAt(raw, 0)
	return m, err
}

func encodeAction(a Action) ofp4.ActionHeader {
	switch a.Kind {
	case ActionOutput:
		return ofp4.MakeActionOutput(a.Port, 0)
	case ActionFlood:
		return ofp4.MakeActionOutput(uint32(ofp4.OFPP_FLOOD), 0)
	case ActionController:
		return ofp4.MakeActionOutput(uint32(ofp4.OFPP_CONTROLLER), uint16(ofp4.OFPCML_NO_BUFFER))
	default:
		return nil
	}
}

// decodeInstructions returns the first output action found in apply or
// write instructions. drop is true when there is neither an action nor a
// goto-table instruction.
func decodeInstructions(raw []byte) (Action, bool, error) {
	action := Drop()
	drop := true

	for cur := 0; cur < len(raw); {
		if len(raw)-cur < 4 {
			return Action{}, false, fmt.Errorf("%w: truncated instruction", ErrMalformedMessage)
		}
		inst := ofp4.Instruction(raw[cur:])
		n := inst.Len()
		if n < 4 || cur+n > len(raw) {
			return Action{}, false, fmt.Errorf("%w: bad instruction length %d", ErrMalformedMessage, n)
		}
		inst = inst[:n]
		cur += n

		switch inst.Type() {
		case uint16(ofp4.OFPIT_APPLY_ACTIONS), uint16(ofp4.OFPIT_WRITE_ACTIONS):
			if n < 8 {
				return Action{}, false, fmt.Errorf("%w: short actions instruction", ErrMalformedMessage)
			}
			actions := ofp4.InstructionActions(inst).Actions()
			if len(actions) == 0 {
				continue
			}
			drop = false
			if a, err := decodeActions(actions); err != nil {
				return Action{}, false, err
			} else if action.Kind == ActionDrop {
				action = a
			}
		case uint16(ofp4.OFPIT_GOTO_TABLE):
			drop = false
		}
	}

	return action, drop, nil
}

func decodeActions(raw ofp4.ActionHeader) (Action, error) {
	for cur := 0; cur < len(raw); {
		if len(raw)-cur < 4 {
			return Action{}, fmt.Errorf("%w: truncated action", ErrMalformedMessage)
		}
		a := ofp4.ActionHeader(raw[cur:])
		n := a.Len()
		if n < 8 || cur+n > len(raw) {
			return Action{}, fmt.Errorf("%w: bad action length %d", ErrMalformedMessage, n)
		}
		a = a[:n]
		cur += n

		if a.Type() != uint16(ofp4.OFPAT_OUTPUT) || n < 16 {
			continue
		}
		switch port := ofp4.ActionOutput(a).Port(); port {
		case uint32(ofp4.OFPP_FLOOD):
			return Flood(), nil
		case uint32(ofp4.OFPP_CONTROLLER):
			return ToController(), nil
		default:
			return Output(port), nil
		}
	}
	return Drop(), nil
}

// parseMatchAt decodes the ofp_match starting at off and returns the offset
// just past its padding
func parseMatchAt(msg []byte, off int) (Match, int, error) {
	if len(msg) < off+minMatchLen {
		return Match{}, 0, fmt.Errorf("%w: missing match", ErrMalformedMessage)
	}
	om := ofp4.Match(msg[off:])
	if om.Type() != uint16(ofp4.OFPMT_OXM) {
		return Match{}, 0, fmt.Errorf("%w: unsupported match type %d", ErrMalformedMessage, om.Type())
	}
	length := om.Length()
	padded := (length + 7) / 8 * 8
	if length < 4 || off+padded > len(msg) {
		return Match{}, 0, fmt.Errorf("%w: bad match length %d", ErrMalformedMessage, length)
	}

	m, err := parseOxmFields(om.OxmFields())
	if err != nil {
		return Match{}, 0, err
	}
	return m, off + padded, nil
}

func checkHeader(msg []byte, ofpt uint8, minLen int) error {
	if len(msg) < headerLen {
		return fmt.Errorf("%w: short header", ErrMalformedMessage)
	}
	h := ofp4.Header(msg)
	if h.Type() != ofpt {
		return fmt.Errorf("%w: unexpected type %d", ErrMalformedMessage, h.Type())
	}
	if h.Length() < minLen || h.Length() > len(msg) {
		return fmt.Errorf("%w: bad length %d", ErrMalformedMessage, h.Length())
	}
	return nil
}
