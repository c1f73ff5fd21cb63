// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hkwi/gopenflow/ofp4"

	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/flow"
)

// FakeSwitch is an OpenFlow 1.3 switch that connects to a controller,
// records what it is told and answers flow-stats and barrier requests.
type FakeSwitch struct {
	DatapathID uint64

	conn    net.Conn
	writeMu sync.Mutex
	wg      sync.WaitGroup

	mu         sync.Mutex
	received   []ofp4.Header
	stats      []flow.Stat
	splitStats bool
	readErr    error
}

// DialFakeSwitch connects to addr and completes the handshake
func DialFakeSwitch(addr string, dpid uint64) (*FakeSwitch, error) {
	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to dial controller: %w", err)
	}

	sw := &FakeSwitch{DatapathID: dpid, conn: c}
	if err := sw.handshake(); err != nil {
		c.Close()
		return nil, err
	}

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		sw.readLoop()
	}()

	return sw, nil
}

func (sw *FakeSwitch) handshake() error {
	if err := sw.write(ofp4.MakeHello(nil)); err != nil {
		return err
	}

	for {
		msg, err := dataplane.ReadMessage(sw.conn)
		if err != nil {
			return fmt.Errorf("handshake read: %w", err)
		}
		switch msg.Type() {
		case uint8(ofp4.OFPT_HELLO):
			// controller hello, keep waiting for the features request
		case uint8(ofp4.OFPT_FEATURES_REQUEST):
			reply := ofp4.MakeSwitchFeatures(sw.DatapathID, 256, 1, 0, 0).SetXid(msg.Xid())
			return sw.write(reply)
		default:
			return fmt.Errorf("unexpected message type %d during handshake", msg.Type())
		}
	}
}

func (sw *FakeSwitch) readLoop() {
	for {
		msg, err := dataplane.ReadMessage(sw.conn)
		if err != nil {
			sw.mu.Lock()
			sw.readErr = err
			sw.mu.Unlock()
			return
		}

		sw.mu.Lock()
		sw.received = append(sw.received, msg)
		sw.mu.Unlock()

		switch msg.Type() {
		case uint8(ofp4.OFPT_MULTIPART_REQUEST):
			if ofp4.MultipartRequest(msg).Type() == uint16(ofp4.OFPMP_FLOW) {
				sw.replyFlowStats(msg.Xid())
			}
		case uint8(ofp4.OFPT_BARRIER_REQUEST):
			sw.write(ofp4.MakeHeader(uint8(ofp4.OFPT_BARRIER_REPLY)).SetXid(msg.Xid()))
		case uint8(ofp4.OFPT_ECHO_REQUEST):
			sw.write(ofp4.MakeHeader(uint8(ofp4.OFPT_ECHO_REPLY)).AppendData(msg[8:]).SetXid(msg.Xid()))
		}
	}
}

func (sw *FakeSwitch) replyFlowStats(xid uint32) {
	sw.mu.Lock()
	stats := append([]flow.Stat(nil), sw.stats...)
	split := sw.splitStats
	sw.mu.Unlock()

	if !split || len(stats) < 2 {
		sw.write(flow.EncodeFlowStatsReply(stats).SetXid(xid))
		return
	}

	half := len(stats) / 2
	first := ofp4.MultipartReply(flow.EncodeFlowStatsReply(stats[:half])).Body()
	second := ofp4.MultipartReply(flow.EncodeFlowStatsReply(stats[half:])).Body()
	sw.write(ofp4.MakeMultipartReply(uint16(ofp4.OFPMP_FLOW), uint16(ofp4.OFPMPF_REPLY_MORE), first).SetXid(xid))
	sw.write(ofp4.MakeMultipartReply(uint16(ofp4.OFPMP_FLOW), 0, second).SetXid(xid))
}

func (sw *FakeSwitch) write(msg ofp4.Header) error {
	sw.writeMu.Lock()
	defer sw.writeMu.Unlock()
	_, err := sw.conn.Write(msg)
	return err
}

// SetFlowStats sets the entries returned on the next flow-stats request.
// With split set the reply is sent in two OFPMPF_REPLY_MORE parts.
func (sw *FakeSwitch) SetFlowStats(stats []flow.Stat, split bool) {
	sw.mu.Lock()
	sw.stats = stats
	sw.splitStats = split
	sw.mu.Unlock()
}

// SendPacketIn sends an unbuffered packet-in for frame received on inPort
func (sw *FakeSwitch) SendPacketIn(inPort uint32, frame []byte) error {
	return sw.SendBufferedPacketIn(flow.NoBuffer, inPort, frame)
}

// SendBufferedPacketIn sends a packet-in with an explicit buffer id
func (sw *FakeSwitch) SendBufferedPacketIn(bufferID, inPort uint32, frame []byte) error {
	match := flow.EncodeMatch(flow.Match{InPort: inPort})
	msg := ofp4.MakePacketIn(bufferID, uint16(len(frame)), 0, 0, 0, match, frame)
	return sw.write(msg)
}

// SendEcho sends an echo request carrying data
func (sw *FakeSwitch) SendEcho(data []byte) error {
	return sw.write(ofp4.MakeHeader(uint8(ofp4.OFPT_ECHO_REQUEST)).AppendData(data))
}

// Messages returns every message received after the handshake
func (sw *FakeSwitch) Messages() []ofp4.Header {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	out := make([]ofp4.Header, len(sw.received))
	copy(out, sw.received)
	return out
}

// CountType returns how many messages of the given OFPT type were received
func (sw *FakeSwitch) CountType(ofpt uint8) int {
	n := 0
	for _, m := range sw.Messages() {
		if m.Type() == ofpt {
			n++
		}
	}
	return n
}

// FlowMods decodes every received flow_mod
func (sw *FakeSwitch) FlowMods() ([]flow.Rule, error) {
	return decodeFlowMods(sw.Messages())
}

// PacketOuts decodes every received packet_out
func (sw *FakeSwitch) PacketOuts() ([]flow.PacketOut, error) {
	return decodePacketOuts(sw.Messages())
}

// Disconnected reports whether the controller closed the connection
func (sw *FakeSwitch) Disconnected() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.readErr != nil
}

// Close drops the connection and waits for the reader to exit
func (sw *FakeSwitch) Close() error {
	err := sw.conn.Close()
	sw.wg.Wait()
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
