// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package controller

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/hkwi/gopenflow/ofp4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"

	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/flow"
	"github.com/openflow-firewall/src/controller/pkg/maclearn"
	"github.com/openflow-firewall/src/controller/pkg/policy"
	"github.com/openflow-firewall/src/controller/pkg/registry"
	"github.com/openflow-firewall/src/controller/pkg/stats"
	"github.com/openflow-firewall/src/controller/pkg/testutil"
)

const s1 = uint64(1)

var ruleOpts = cmpopts.EquateComparable(netip.Addr{})

type fixture struct {
	ctrl      *Controller
	switches  *registry.Registry
	macs      *maclearn.Table
	telemetry *stats.Collector
	sess      *testutil.RecordingSession
}

// newFixture builds a controller blocking 10.0.0.1<->10.0.0.2 with S1
// connected and its connect-time messages cleared
func newFixture(t *testing.T, learnedMatch string) *fixture {
	t.Helper()

	f := &fixture{
		switches:  registry.New(),
		macs:      maclearn.New(),
		telemetry: stats.NewCollector(nil, testclock.NewFakePassiveClock(time.Now())),
		sess:      testutil.NewRecordingSession(s1),
	}
	engine := policy.NewEngine(policy.MustParsePair("10.0.0.1", "10.0.0.2"))
	f.ctrl = New(f.switches, f.macs, engine, f.telemetry, Options{
		LearnedMatch: learnedMatch,
		Clock:        testclock.NewFakeClock(time.Now()),
	})

	require.NoError(t, f.ctrl.HandleConnect(dataplane.SwitchConnected{DatapathID: s1, Session: f.sess}))
	f.sess.Reset()
	return f
}

func packetIn(inPort uint32, frame []byte) dataplane.PacketIn {
	return dataplane.PacketIn{
		DatapathID: s1,
		InPort:     inPort,
		BufferID:   flow.NoBuffer,
		TotalLen:   uint16(len(frame)),
		Data:       frame,
	}
}

func ipv4(h testutil.Host) netip.Addr {
	a, _ := netip.AddrFromSlice(h.IP.To4())
	return a
}

// TestHandleConnect_InstallsRules tests table-miss then both drop directions
func TestHandleConnect_InstallsRules(t *testing.T) {
	engine := policy.NewEngine(policy.MustParsePair("10.0.0.1", "10.0.0.2"))
	switches := registry.New()
	ctrl := New(switches, maclearn.New(), engine, stats.NewCollector(nil, nil), Options{})
	sess := testutil.NewRecordingSession(s1)

	require.NoError(t, ctrl.HandleConnect(dataplane.SwitchConnected{DatapathID: s1, Session: sess}))

	sw, ok := switches.Get(s1)
	require.True(t, ok)
	assert.Same(t, sess, sw.Session)

	rules, err := sess.FlowMods()
	require.NoError(t, err)
	want := []flow.Rule{
		flow.TableMissRule(),
		flow.DropRule(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.2")),
		flow.DropRule(netip.MustParseAddr("10.0.0.2"), netip.MustParseAddr("10.0.0.1")),
	}
	if diff := cmp.Diff(want, rules, ruleOpts); diff != "" {
		t.Errorf("flow mods mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, sess.CountType(uint8(ofp4.OFPT_BARRIER_REQUEST)))
}

// TestHandleConnect_SendFailure tests that install errors are reported and
// the switch stays registered
func TestHandleConnect_SendFailure(t *testing.T) {
	engine := policy.NewEngine(policy.MustParsePair("10.0.0.1", "10.0.0.2"))
	switches := registry.New()
	ctrl := New(switches, maclearn.New(), engine, stats.NewCollector(nil, nil), Options{})
	sess := testutil.NewRecordingSession(s1)
	sess.FailAll(true)

	err := ctrl.HandleConnect(dataplane.SwitchConnected{DatapathID: s1, Session: sess})
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Equal(t, 1, switches.Len())
}

// TestHandleConnect_ReconnectForgetsMACs tests that a replaced session
// drops what was learned through it
func TestHandleConnect_ReconnectForgetsMACs(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))))
	require.Equal(t, 1, f.macs.Len(s1))

	next := testutil.NewRecordingSession(s1)
	require.NoError(t, f.ctrl.HandleConnect(dataplane.SwitchConnected{DatapathID: s1, Session: next}))

	assert.Equal(t, 0, f.macs.Len(s1))
	sw, _ := f.switches.Get(s1)
	assert.Same(t, next, sw.Session)
}

// TestHandleConnect_ReconnectLoggedOnce tests that a replaced session is
// reported by a single log entry
func TestHandleConnect_ReconnectLoggedOnce(t *testing.T) {
	f := newFixture(t, "")
	hook := logtest.NewGlobal()
	defer hook.Reset()

	next := testutil.NewRecordingSession(s1)
	require.NoError(t, f.ctrl.HandleConnect(dataplane.SwitchConnected{DatapathID: s1, Session: next}))

	var reconnects int
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "reconnected") {
			reconnects++
		}
	}
	assert.Equal(t, 1, reconnects)
}

// TestHandlePacketIn_Blocked tests that blocked traffic is counted and
// nothing else happens, in both directions
func TestHandlePacketIn_Blocked(t *testing.T) {
	f := newFixture(t, "")
	require.Equal(t, uint64(0), f.telemetry.BlockedTotal())

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H1, testutil.H2))))
	assert.Equal(t, uint64(1), f.telemetry.BlockedTotal())

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(2, testutil.PingFrame(testutil.H2, testutil.H1))))
	assert.Equal(t, uint64(2), f.telemetry.BlockedTotal())

	assert.Empty(t, f.sess.Messages())
	assert.Equal(t, 0, f.macs.Len(s1))
	assert.Empty(t, f.telemetry.Latencies())
}

// TestHandlePacketIn_FloodUnknown tests that an unknown destination is
// learned from and flooded without installing a rule
func TestHandlePacketIn_FloodUnknown(t *testing.T) {
	f := newFixture(t, "")
	frame := testutil.PingFrame(testutil.H1, testutil.H3)

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, frame)))

	port, ok := f.macs.Lookup(s1, testutil.H1.MAC)
	require.True(t, ok)
	assert.Equal(t, uint32(1), port)

	assert.Equal(t, 0, f.sess.CountType(uint8(ofp4.OFPT_FLOW_MOD)))
	outs, err := f.sess.PacketOuts()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, flow.Flood(), outs[0].Action)
	assert.Equal(t, uint32(1), outs[0].InPort)
	assert.Equal(t, frame, outs[0].Data)

	assert.Len(t, f.telemetry.Latencies(), 1)
	assert.Equal(t, uint64(1), f.telemetry.Statistics().Flooded)
}

// TestHandlePacketIn_ForwardKnown tests the reply direction once the first
// host has been learned
func TestHandlePacketIn_ForwardKnown(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))))
	f.sess.Reset()

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(2, testutil.PingFrame(testutil.H4, testutil.H3))))

	rules, err := f.sess.FlowMods()
	require.NoError(t, err)
	want := []flow.Rule{{
		Priority: flow.PriorityLearned,
		Match: flow.Match{
			InPort:  2,
			EthDst:  testutil.H3.MAC,
			EthType: flow.EthTypeIPv4,
			IPv4Src: ipv4(testutil.H4),
			IPv4Dst: ipv4(testutil.H3),
		},
		Action: flow.Output(1),
	}}
	if diff := cmp.Diff(want, rules, ruleOpts); diff != "" {
		t.Errorf("flow mods mismatch (-want +got):\n%s", diff)
	}

	outs, err := f.sess.PacketOuts()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, flow.Output(1), outs[0].Action)

	// the flow mod goes out before the packet-out
	msgs := f.sess.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, uint8(ofp4.OFPT_FLOW_MOD), msgs[0].Type())
	assert.Equal(t, uint8(ofp4.OFPT_PACKET_OUT), msgs[1].Type())

	st := f.telemetry.Statistics()
	assert.Equal(t, uint64(1), st.FlowInstalls)
	assert.Equal(t, uint64(1), st.Forwarded)
	assert.Equal(t, 2, st.LatencySamples)
}

// TestHandlePacketIn_L2Match tests that L2 mode leaves IP fields out
func TestHandlePacketIn_L2Match(t *testing.T) {
	f := newFixture(t, LearnedMatchL2)
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))))
	f.sess.Reset()

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(2, testutil.PingFrame(testutil.H4, testutil.H3))))

	rules, err := f.sess.FlowMods()
	require.NoError(t, err)
	want := []flow.Rule{flow.ForwardRule(flow.Match{InPort: 2, EthDst: testutil.H3.MAC}, 1)}
	if diff := cmp.Diff(want, rules, ruleOpts); diff != "" {
		t.Errorf("flow mods mismatch (-want +got):\n%s", diff)
	}
}

// TestHandlePacketIn_ARP tests that non-IPv4 traffic is never blocked and
// that an ARP reply installs a rule limited to its ethertype
func TestHandlePacketIn_ARP(t *testing.T) {
	f := newFixture(t, "")

	// H1 asks for H2, both in the blocked pair, but ARP has no IPv4 header
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.ARPRequestFrame(testutil.H1, testutil.H2.IP))))
	assert.Equal(t, uint64(0), f.telemetry.BlockedTotal())

	outs, err := f.sess.PacketOuts()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, flow.Flood(), outs[0].Action)
	assert.Equal(t, 0, f.sess.CountType(uint8(ofp4.OFPT_FLOW_MOD)))
	f.sess.Reset()

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(2, testutil.ARPReplyFrame(testutil.H2, testutil.H1))))

	rules, err := f.sess.FlowMods()
	require.NoError(t, err)
	want := []flow.Rule{flow.ForwardRule(flow.Match{
		InPort:  2,
		EthDst:  testutil.H1.MAC,
		EthType: 0x0806,
	}, 1)}
	if diff := cmp.Diff(want, rules, ruleOpts); diff != "" {
		t.Errorf("flow mods mismatch (-want +got):\n%s", diff)
	}
}

// TestHandlePacketIn_ARPL2Match tests that L2 mode leaves the ethertype
// out of rules learned from ARP
func TestHandlePacketIn_ARPL2Match(t *testing.T) {
	f := newFixture(t, LearnedMatchL2)
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.ARPRequestFrame(testutil.H3, testutil.H4.IP))))
	f.sess.Reset()

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(2, testutil.ARPReplyFrame(testutil.H4, testutil.H3))))

	rules, err := f.sess.FlowMods()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, flow.Match{InPort: 2, EthDst: testutil.H3.MAC}, rules[0].Match)
}

// TestHandlePacketIn_LLDPIgnored tests that discovery frames change nothing
func TestHandlePacketIn_LLDPIgnored(t *testing.T) {
	f := newFixture(t, "")
	before := f.telemetry.Statistics()

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.LLDPFrame(testutil.H1.MAC))))

	assert.Empty(t, f.sess.Messages())
	assert.Equal(t, 0, f.macs.Len(s1))
	assert.Equal(t, 1, f.switches.Len())
	assert.Equal(t, before, f.telemetry.Statistics())
}

// TestHandlePacketIn_LLDPUnknownSwitch tests that discovery frames are
// ignored even before the switch has registered
func TestHandlePacketIn_LLDPUnknownSwitch(t *testing.T) {
	f := newFixture(t, "")
	ev := packetIn(1, testutil.LLDPFrame(testutil.H1.MAC))
	ev.DatapathID = 99

	assert.NoError(t, f.ctrl.HandlePacketIn(ev))
	assert.Empty(t, f.sess.Messages())
	assert.Equal(t, 0, f.macs.Len(99))
}

// TestHandlePacketIn_Malformed tests that a frame too short for Ethernet
// is reported without mutating state
func TestHandlePacketIn_Malformed(t *testing.T) {
	f := newFixture(t, "")

	err := f.ctrl.HandlePacketIn(packetIn(1, []byte{0x00, 0x01, 0x02, 0x03, 0x04}))
	assert.ErrorIs(t, err, ErrMalformedFrame)

	assert.Empty(t, f.sess.Messages())
	assert.Equal(t, 0, f.macs.Len(s1))
	assert.Empty(t, f.telemetry.Latencies())
}

// TestHandlePacketIn_UnknownSwitch tests a packet-in from an unregistered
// datapath
func TestHandlePacketIn_UnknownSwitch(t *testing.T) {
	f := newFixture(t, "")
	ev := packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))
	ev.DatapathID = 99

	err := f.ctrl.HandlePacketIn(ev)
	assert.ErrorIs(t, err, ErrUnknownSwitch)
	assert.Equal(t, 0, f.macs.Len(99))
}

// TestHandlePacketIn_InstallFailure tests that a failed install is reported
// and no packet-out follows
func TestHandlePacketIn_InstallFailure(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))))
	f.sess.Reset()

	f.sess.FailNext(1)
	err := f.ctrl.HandlePacketIn(packetIn(2, testutil.PingFrame(testutil.H4, testutil.H3)))
	assert.ErrorIs(t, err, testutil.ErrInjected)
	assert.Empty(t, f.sess.Messages())
	assert.Equal(t, uint64(0), f.telemetry.Statistics().FlowInstalls)
}

// TestHandlePacketIn_SamePort tests that a destination learned on the
// ingress port is installed and sent like any other known port
func TestHandlePacketIn_SamePort(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))))
	f.sess.Reset()

	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H4, testutil.H3))))

	rules, err := f.sess.FlowMods()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, flow.PriorityLearned, rules[0].Priority)
	assert.Equal(t, uint32(1), rules[0].Match.InPort)
	assert.Equal(t, testutil.H3.MAC, rules[0].Match.EthDst)
	assert.Equal(t, flow.Output(1), rules[0].Action)

	outs, err := f.sess.PacketOuts()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, flow.Output(1), outs[0].Action)

	st := f.telemetry.Statistics()
	assert.Equal(t, uint64(1), st.FlowInstalls)
	assert.Equal(t, uint64(1), st.Forwarded)
}

// TestHandlePacketIn_Buffered tests that the switch buffer id is passed
// back and the frame is not resent
func TestHandlePacketIn_Buffered(t *testing.T) {
	f := newFixture(t, "")
	ev := packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))
	ev.BufferID = 42

	require.NoError(t, f.ctrl.HandlePacketIn(ev))

	outs, err := f.sess.PacketOuts()
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, uint32(42), outs[0].BufferID)
	assert.Empty(t, outs[0].Data)
}

// TestHandleDisconnect tests that learned MACs go with the switch and that
// a stale disconnect leaves the new session alone
func TestHandleDisconnect(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.ctrl.HandlePacketIn(packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))))

	stale := testutil.NewRecordingSession(s1)
	f.ctrl.HandleDisconnect(dataplane.SwitchDisconnected{DatapathID: s1, Session: stale})
	assert.Equal(t, 1, f.switches.Len())
	assert.Equal(t, 1, f.macs.Len(s1))

	f.ctrl.HandleDisconnect(dataplane.SwitchDisconnected{DatapathID: s1, Session: f.sess})
	assert.Equal(t, 0, f.switches.Len())
	assert.Equal(t, 0, f.macs.Len(s1))
}

// TestDispatch_FlowStatsReconciles tests that switch counters override the
// controller-side tally
func TestDispatch_FlowStatsReconciles(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.ctrl.Dispatch(packetIn(1, testutil.PingFrame(testutil.H1, testutil.H2))))
	require.NoError(t, f.ctrl.Dispatch(packetIn(1, testutil.PingFrame(testutil.H1, testutil.H2))))
	require.Equal(t, uint64(2), f.telemetry.BlockedTotal())

	reply := dataplane.FlowStatsReply{DatapathID: s1, Stats: []flow.Stat{
		{Priority: flow.PriorityDrop, PacketCount: 7, Drop: true},
		{Priority: flow.PriorityTableMiss, PacketCount: 30, Action: flow.ToController()},
	}}
	require.NoError(t, f.ctrl.Dispatch(reply))
	assert.Equal(t, uint64(7), f.telemetry.BlockedTotal())
}

type bogusEvent struct{}

func (bogusEvent) Switch() uint64 { return s1 }
func (bogusEvent) Kind() string   { return "bogus" }

// TestDispatch_Unsupported tests an event kind the controller does not know
func TestDispatch_Unsupported(t *testing.T) {
	f := newFixture(t, "")
	assert.Error(t, f.ctrl.Dispatch(bogusEvent{}))
}

// TestRun tests that the loop keeps going past failing events and returns
// when the channel is closed
func TestRun(t *testing.T) {
	f := newFixture(t, "")
	sess2 := testutil.NewRecordingSession(2)

	events := make(chan dataplane.Event, 8)
	events <- dataplane.SwitchConnected{DatapathID: 2, Session: sess2}
	events <- packetIn(1, []byte{0x01})
	events <- bogusEvent{}
	events <- packetIn(1, testutil.PingFrame(testutil.H3, testutil.H4))
	events <- dataplane.SwitchDisconnected{DatapathID: 2, Session: sess2}
	close(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.ctrl.Run(events)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}

	assert.Equal(t, 1, f.switches.Len())
	assert.Equal(t, 1, f.macs.Len(s1))
	assert.Equal(t, 3, sess2.CountType(uint8(ofp4.OFPT_FLOW_MOD)))
}

// TestParseLearnedMatch tests mode validation
func TestParseLearnedMatch(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", LearnedMatchL2L3, false},
		{"l2l3", LearnedMatchL2L3, false},
		{"L2", LearnedMatchL2, false},
		{"l3", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLearnedMatch(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
