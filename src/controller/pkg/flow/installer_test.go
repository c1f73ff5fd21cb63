// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package flow

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/hkwi/gopenflow/ofp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openflow-firewall/src/controller/pkg/policy"
)

var errTransport = errors.New("connection reset")

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

// recorder captures sent messages and fails the n-th send when failAt > 0
type recorder struct {
	msgs   []ofp4.Header
	failAt int
}

func (r *recorder) Send(msg ofp4.Header) error {
	if r.failAt > 0 && len(r.msgs)+1 == r.failAt {
		r.failAt = 0
		return errTransport
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) flowMods(t *testing.T) []Rule {
	t.Helper()
	var rules []Rule
	for _, m := range r.msgs {
		if m.Type() != uint8(ofp4.OFPT_FLOW_MOD) {
			continue
		}
		rule, err := ParseFlowMod(m)
		require.NoError(t, err)
		rules = append(rules, rule)
	}
	return rules
}

// TestInstaller_InstallStaticDrops tests one rule per direction plus barrier
func TestInstaller_InstallStaticDrops(t *testing.T) {
	rec := &recorder{}
	pairs := []policy.BlockedPair{
		policy.MustParsePair("10.0.0.1", "10.0.0.2"),
		policy.MustParsePair("10.0.0.3", "10.0.0.4"),
	}

	err := NewInstaller().InstallStaticDrops(rec, pairs)
	require.NoError(t, err)

	require.Len(t, rec.msgs, 5)
	assert.Equal(t, uint8(ofp4.OFPT_BARRIER_REQUEST), rec.msgs[4].Type())

	rules := rec.flowMods(t)
	require.Len(t, rules, 4)
	for _, r := range rules {
		assert.Equal(t, PriorityDrop, r.Priority)
		assert.Equal(t, ActionDrop, r.Action.Kind)
	}
	assert.Equal(t, "10.0.0.1", rules[0].Match.IPv4Src.String())
	assert.Equal(t, "10.0.0.2", rules[0].Match.IPv4Dst.String())
	assert.Equal(t, "10.0.0.2", rules[1].Match.IPv4Src.String())
	assert.Equal(t, "10.0.0.1", rules[1].Match.IPv4Dst.String())
}

// TestInstaller_InstallStaticDrops_JoinsErrors tests that a failed send does
// not stop the remaining rules
func TestInstaller_InstallStaticDrops_JoinsErrors(t *testing.T) {
	rec := &recorder{failAt: 1}
	pairs := []policy.BlockedPair{policy.MustParsePair("10.0.0.1", "10.0.0.2")}

	err := NewInstaller().InstallStaticDrops(rec, pairs)
	assert.ErrorIs(t, err, errTransport)

	// second direction and barrier were still sent
	assert.Len(t, rec.msgs, 2)
}

// TestInstaller_InstallTableMiss tests the table-miss install
func TestInstaller_InstallTableMiss(t *testing.T) {
	rec := &recorder{}

	require.NoError(t, NewInstaller().InstallTableMiss(rec))

	rules := rec.flowMods(t)
	require.Len(t, rules, 1)
	assert.Equal(t, PriorityTableMiss, rules[0].Priority)
	assert.True(t, rules[0].Match.IsWildcard())
	assert.Equal(t, ActionController, rules[0].Action.Kind)
}

// TestInstaller_InstallLearnedForward tests learned rule install and error path
func TestInstaller_InstallLearnedForward(t *testing.T) {
	mac, _ := net.ParseMAC("00:00:00:00:00:02")
	m := Match{InPort: 1, EthDst: mac}

	rec := &recorder{}
	require.NoError(t, NewInstaller().InstallLearnedForward(rec, m, 2))

	rules := rec.flowMods(t)
	require.Len(t, rules, 1)
	assert.Equal(t, PriorityLearned, rules[0].Priority)
	assert.Equal(t, Output(2), rules[0].Action)
	assert.Equal(t, mac, rules[0].Match.EthDst)

	failing := &recorder{failAt: 1}
	err := NewInstaller().InstallLearnedForward(failing, m, 2)
	assert.ErrorIs(t, err, errTransport)
	assert.Empty(t, failing.msgs)
}

// TestSendPacketOut tests buffered and unbuffered packet-outs
func TestSendPacketOut(t *testing.T) {
	frame := []byte{0xde, 0xad, 0xbe, 0xef}

	t.Run("unbuffered carries data", func(t *testing.T) {
		rec := &recorder{}
		require.NoError(t, SendPacketOut(rec, PacketOut{BufferID: NoBuffer, InPort: 1, Action: Flood(), Data: frame}))

		require.Len(t, rec.msgs, 1)
		po, err := ParsePacketOut(rec.msgs[0])
		require.NoError(t, err)
		assert.Equal(t, NoBuffer, po.BufferID)
		assert.Equal(t, uint32(1), po.InPort)
		assert.Equal(t, Flood(), po.Action)
		assert.Equal(t, frame, po.Data)
	})

	t.Run("buffered omits data", func(t *testing.T) {
		rec := &recorder{}
		require.NoError(t, SendPacketOut(rec, PacketOut{BufferID: 42, InPort: 1, Action: Output(3), Data: frame}))

		po, err := ParsePacketOut(rec.msgs[0])
		require.NoError(t, err)
		assert.Equal(t, uint32(42), po.BufferID)
		assert.Equal(t, Output(3), po.Action)
		assert.Empty(t, po.Data)
	})
}

// TestRequestFlowStats tests the flow-stats request shape
func TestRequestFlowStats(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, RequestFlowStats(rec))

	require.Len(t, rec.msgs, 1)
	req := ofp4.MultipartRequest(rec.msgs[0])
	assert.Equal(t, uint8(ofp4.OFPT_MULTIPART_REQUEST), rec.msgs[0].Type())
	assert.Equal(t, uint16(ofp4.OFPMP_FLOW), req.Type())

	body := ofp4.FlowStatsRequest(req.Body())
	assert.Equal(t, uint8(ofp4.OFPTT_ALL), body.TableId())
	assert.Equal(t, uint32(ofp4.OFPP_ANY), body.OutPort())
	assert.Equal(t, uint32(ofp4.OFPG_ANY), body.OutGroup())
	assert.Equal(t, 4, body.Match().Length())
}

// TestParseFlowStats tests drop detection in a flow-stats reply
func TestParseFlowStats(t *testing.T) {
	in := []Stat{
		{Priority: PriorityTableMiss, PacketCount: 3, Action: ToController()},
		{Priority: PriorityDrop, PacketCount: 4, Drop: true, Match: DropRule(addr("10.0.0.1"), addr("10.0.0.2")).Match},
		{Priority: PriorityDrop, PacketCount: 3, Drop: true, Match: DropRule(addr("10.0.0.2"), addr("10.0.0.1")).Match},
		{Priority: PriorityLearned, PacketCount: 9, Action: Output(2)},
	}

	reply := ofp4.MultipartReply(EncodeFlowStatsReply(in))
	stats, err := ParseFlowStats(reply.Body())
	require.NoError(t, err)
	require.Len(t, stats, 4)

	var drops uint64
	for _, s := range stats {
		if s.Drop {
			drops += s.PacketCount
		}
	}
	assert.Equal(t, uint64(7), drops)
	assert.False(t, stats[0].Drop)
	assert.Equal(t, ActionController, stats[0].Action.Kind)
	assert.Equal(t, Output(2), stats[3].Action)
	assert.Equal(t, "10.0.0.2", stats[2].Match.IPv4Src.String())
}

// TestParseFlowStats_Truncated tests rejection of a truncated body
func TestParseFlowStats_Truncated(t *testing.T) {
	reply := ofp4.MultipartReply(EncodeFlowStatsReply([]Stat{{Priority: 1, Action: Output(1)}}))
	body := reply.Body()

	_, err := ParseFlowStats(body[:len(body)-4])
	assert.ErrorIs(t, err, ErrMalformedMessage)

	stats, err := ParseFlowStats(nil)
	assert.NoError(t, err)
	assert.Empty(t, stats)
}
