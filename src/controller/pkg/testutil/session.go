// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"errors"
	"sync"

	"github.com/hkwi/gopenflow/ofp4"

	"github.com/openflow-firewall/src/controller/pkg/flow"
)

// ErrInjected is returned by a RecordingSession armed with FailNext or
// FailAll
var ErrInjected = errors.New("injected send failure")

// RecordingSession is an in-memory dataplane.Session that records every
// message sent to it. Safe for concurrent use.
type RecordingSession struct {
	ID uint64

	mu       sync.Mutex
	msgs     []ofp4.Header
	failNext int
	failAll  bool
	closed   bool
}

// NewRecordingSession creates a session for datapath id
func NewRecordingSession(id uint64) *RecordingSession {
	return &RecordingSession{ID: id}
}

func (s *RecordingSession) DatapathID() uint64 {
	return s.ID
}

func (s *RecordingSession) Send(msg ofp4.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return ErrInjected
	}
	if s.failNext > 0 {
		s.failNext--
		return ErrInjected
	}

	cp := make(ofp4.Header, len(msg))
	copy(cp, msg)
	s.msgs = append(s.msgs, cp)
	return nil
}

func (s *RecordingSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Closed reports whether Close was called
func (s *RecordingSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FailNext makes the next n sends fail with ErrInjected
func (s *RecordingSession) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// FailAll makes every send fail until cleared
func (s *RecordingSession) FailAll(fail bool) {
	s.mu.Lock()
	s.failAll = fail
	s.mu.Unlock()
}

// Messages returns a copy of everything sent so far
func (s *RecordingSession) Messages() []ofp4.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ofp4.Header, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Reset forgets recorded messages
func (s *RecordingSession) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

// CountType returns how many messages of the given OFPT type were sent
func (s *RecordingSession) CountType(ofpt uint8) int {
	n := 0
	for _, m := range s.Messages() {
		if m.Type() == ofpt {
			n++
		}
	}
	return n
}

// FlowMods decodes every recorded flow_mod
func (s *RecordingSession) FlowMods() ([]flow.Rule, error) {
	return decodeFlowMods(s.Messages())
}

// PacketOuts decodes every recorded packet_out
func (s *RecordingSession) PacketOuts() ([]flow.PacketOut, error) {
	return decodePacketOuts(s.Messages())
}

func decodeFlowMods(msgs []ofp4.Header) ([]flow.Rule, error) {
	var rules []flow.Rule
	for _, m := range msgs {
		if m.Type() != uint8(ofp4.OFPT_FLOW_MOD) {
			continue
		}
		r, err := flow.ParseFlowMod(m)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func decodePacketOuts(msgs []ofp4.Header) ([]flow.PacketOut, error) {
	var outs []flow.PacketOut
	for _, m := range msgs {
		if m.Type() != uint8(ofp4.OFPT_PACKET_OUT) {
			continue
		}
		p, err := flow.ParsePacketOut(m)
		if err != nil {
			return nil, err
		}
		outs = append(outs, p)
	}
	return outs, nil
}
