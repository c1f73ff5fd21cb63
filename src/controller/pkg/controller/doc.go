// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

/*
Package controller implements the reactive decision logic of the firewall.

Every event produced by the southbound session layer is dispatched here, one
at a time:

	switch_connected     register, install table-miss and static drop rules
	switch_disconnected  unregister, forget learned MACs
	packet_in            block, or learn and forward
	flow_stats_reply     reconcile the blocked total

A packet-in is handled in a single pass. LLDP frames are ignored. IPv4
traffic between the two members of a blocked pair is counted and dropped
without learning or forwarding. Everything else teaches the MAC table the
source port and is then flooded, or forwarded to the learned port with a
priority 1 rule installed so later packets of the same flow stay in the
switch.

Usage:

	ctrl := controller.New(switches, macs, engine, telemetry, controller.Options{})
	go ctrl.Run(server.Events())
*/
package controller
