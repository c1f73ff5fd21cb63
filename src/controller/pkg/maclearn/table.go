// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package maclearn holds the per-switch MAC learning table.
package maclearn

import (
	"net"
	"sort"
	"sync"
)

// Entry is one learned (MAC, port) binding
type Entry struct {
	MAC  string `json:"mac"`
	Port uint32 `json:"port"`
}

// Table maps (switch, MAC) to the port the MAC was last seen on.
//
// Entries never expire and the table is unbounded: a host that leaves the
// network stays learned until its switch disconnects. Safe for concurrent
// use.
type Table struct {
	mu    sync.RWMutex
	ports map[uint64]map[string]uint32
}

// New creates an empty table
func New() *Table {
	return &Table{ports: make(map[uint64]map[string]uint32)}
}

// Learn records that mac was seen on port of switch id. It returns true
// when the binding was added or moved, false when it was already known.
func (t *Table) Learn(id uint64, mac net.HardwareAddr, port uint32) (changed bool) {
	key := mac.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	macs, ok := t.ports[id]
	if !ok {
		macs = make(map[string]uint32)
		t.ports[id] = macs
	}
	if prev, ok := macs[key]; ok && prev == port {
		return false
	}
	macs[key] = port
	return true
}

// Lookup returns the port mac was learned on
func (t *Table) Lookup(id uint64, mac net.HardwareAddr) (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	port, ok := t.ports[id][mac.String()]
	return port, ok
}

// Forget drops everything learned on switch id
func (t *Table) Forget(id uint64) {
	t.mu.Lock()
	delete(t.ports, id)
	t.mu.Unlock()
}

// Entries returns the bindings of switch id sorted by MAC
func (t *Table) Entries(id uint64) []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.ports[id]))
	for mac, port := range t.ports[id] {
		out = append(out, Entry{MAC: mac, Port: port})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Len returns the number of MACs learned on switch id
func (t *Table) Len(id uint64) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ports[id])
}
