// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hkwi/gopenflow/ofp4"

	"github.com/openflow-firewall/src/controller/pkg/flow"
)

// ofpVersion is the only wire version spoken (OpenFlow 1.3)
const ofpVersion = 4

const headerLen = 8

// ErrUnsupportedVersion is returned when a peer cannot speak OpenFlow 1.3
var ErrUnsupportedVersion = errors.New("unsupported openflow version")

// ReadMessage reads one complete OpenFlow message from r
func ReadMessage(r io.Reader) (ofp4.Header, error) {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint16(hdr[2:]))
	if length < headerLen {
		return nil, fmt.Errorf("%w: length %d shorter than header", flow.ErrMalformedMessage, length)
	}

	msg := make([]byte, length)
	copy(msg, hdr)
	if _, err := io.ReadFull(r, msg[headerLen:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return ofp4.Header(msg), nil
}

// decodePacketIn extracts the ingress port from the match and the frame
// from the payload
func decodePacketIn(dpid uint64, msg ofp4.Header) (PacketIn, error) {
	const matchOff = 24
	if len(msg) < matchOff+8+2 {
		return PacketIn{}, fmt.Errorf("%w: short packet_in", flow.ErrMalformedMessage)
	}

	om := ofp4.Match(msg[matchOff:])
	padded := (om.Length() + 7) / 8 * 8
	if om.Length() < 4 || matchOff+padded+2 > len(msg) {
		return PacketIn{}, fmt.Errorf("%w: packet_in match overrun", flow.ErrMalformedMessage)
	}

	m, err := flow.DecodeMatch(msg[matchOff:])
	if err != nil {
		return PacketIn{}, err
	}

	pi := ofp4.PacketIn(msg)
	return PacketIn{
		DatapathID: dpid,
		InPort:     m.InPort,
		BufferID:   pi.BufferId(),
		TotalLen:   pi.TotalLen(),
		Data:       append([]byte(nil), pi.Data()...),
	}, nil
}

func echoReply(req ofp4.Header) ofp4.Header {
	return ofp4.MakeHeader(uint8(ofp4.OFPT_ECHO_REPLY)).
		AppendData(req[headerLen:]).
		SetXid(req.Xid())
}

// multipartAssembler joins OFPMPF_REPLY_MORE parts per xid
type multipartAssembler struct {
	parts map[uint32][]byte
}

func newMultipartAssembler() *multipartAssembler {
	return &multipartAssembler{parts: make(map[uint32][]byte)}
}

// add stores one reply part and returns the joined body once the last part
// has arrived
func (a *multipartAssembler) add(msg ofp4.Header) ([]byte, bool) {
	mp := ofp4.MultipartReply(msg)
	xid := msg.Xid()

	body := append(a.parts[xid], mp.Body()...)
	if mp.Flags()&uint16(ofp4.OFPMPF_REPLY_MORE) != 0 {
		a.parts[xid] = body
		return nil, false
	}

	delete(a.parts, xid)
	return body, true
}
