// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package registry tracks the switches currently connected to the
// controller.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/openflow-firewall/src/controller/pkg/dataplane"
)

// Switch is a connected switch. It is fully built before insertion and
// never mutated afterwards.
type Switch struct {
	ID          uint64
	Session     dataplane.Session
	ConnectedAt time.Time
}

// Registry maps datapath ids to connected switches. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	switches map[uint64]*Switch
	now      func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		switches: make(map[uint64]*Switch),
		now:      time.Now,
	}
}

// Connect registers sess under id. An existing entry for id is replaced and
// replaced is true.
func (r *Registry) Connect(id uint64, sess dataplane.Session) (replaced bool) {
	sw := &Switch{ID: id, Session: sess, ConnectedAt: r.now()}

	r.mu.Lock()
	_, replaced = r.switches[id]
	r.switches[id] = sw
	r.mu.Unlock()

	return replaced
}

// Disconnect removes id and reports whether it was present
func (r *Registry) Disconnect(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.switches[id]; !ok {
		return false
	}
	delete(r.switches, id)
	return true
}

// DisconnectSession removes id only if it is still bound to sess. A
// disconnect from a session that has since been replaced is ignored.
func (r *Registry) DisconnectSession(id uint64, sess dataplane.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sw, ok := r.switches[id]
	if !ok || sw.Session != sess {
		return false
	}
	delete(r.switches, id)
	return true
}

// Get returns the switch registered under id
func (r *Registry) Get(id uint64) (*Switch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sw, ok := r.switches[id]
	return sw, ok
}

// List returns a snapshot of all switches ordered by id
func (r *Registry) List() []*Switch {
	r.mu.RLock()
	out := make([]*Switch, 0, len(r.switches))
	for _, sw := range r.switches {
		out = append(out, sw)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of connected switches
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.switches)
}
