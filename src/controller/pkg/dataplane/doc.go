// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package dataplane is the southbound side of the controller: an OpenFlow
// 1.3 TCP listener that turns switch connections into sessions and
// incoming messages into events.
//
// The server manages:
//   - Session lifecycle (HELLO, FEATURES handshake, teardown)
//   - Echo keepalives, answered inline
//   - Packet-in and flow-stats decoding
//   - Serialised writes from the dispatcher and the statistics poller
//
// # Events
//
// All events are delivered on a single channel and must be handled
// serially by one consumer:
//   - SwitchConnected: handshake done, session ready for commands
//   - SwitchDisconnected: read error or EOF, session closed
//   - PacketIn: a frame punted by the table-miss rule
//   - FlowStatsReply: a complete OFPMP_FLOW reply (all parts joined)
//
// # Example Usage
//
//	srv := dataplane.NewServer(":6653", 256)
//	if err := srv.Listen(); err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Serve(ctx)
//
//	for ev := range srv.Events() {
//	    switch e := ev.(type) {
//	    case dataplane.SwitchConnected:
//	        log.Infof("switch %d up", e.DatapathID)
//	    }
//	}
//
// # Thread Safety
//
// Session.Send is safe for concurrent use. Events() is closed once Serve
// returns and every connection handler has exited.
package dataplane
