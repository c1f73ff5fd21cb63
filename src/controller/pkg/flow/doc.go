// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package flow builds and installs OpenFlow 1.3 flow rules.
//
// A switch managed by the controller carries three kinds of rules, ordered by
// priority:
//
//	PriorityTableMiss (0)  empty match, send to controller
//	PriorityLearned   (1)  in_port + eth_dst [+ eth_type, ipv4_src, ipv4_dst], output to port
//	PriorityDrop      (10) eth_type=0x0800, ipv4_src, ipv4_dst, no instructions
//
// Drop rules outrank learned rules, so a learned forward rule can never leak
// traffic between a blocked pair. Rules are never removed or expired.
//
// Messages are encoded with github.com/hkwi/gopenflow/ofp4 and oxm. The
// Installer writes one control message per rule through a Sender and never
// retries; transport errors are returned to the caller.
//
// Example:
//
//	inst := flow.NewInstaller()
//	if err := inst.InstallTableMiss(sess); err != nil {
//	    log.Warnf("table-miss: %v", err)
//	}
//	err := inst.InstallLearnedForward(sess, flow.Match{InPort: 1, EthDst: mac}, 2)
package flow
