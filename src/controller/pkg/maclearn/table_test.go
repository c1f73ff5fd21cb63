// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package maclearn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

// TestTable_LearnIdempotent tests that learning the same binding twice
// leaves the table unchanged
func TestTable_LearnIdempotent(t *testing.T) {
	table := New()
	mac := mustMAC(t, "00:00:00:00:00:01")

	assert.True(t, table.Learn(1, mac, 1))
	before := table.Entries(1)

	assert.False(t, table.Learn(1, mac, 1))
	assert.Equal(t, before, table.Entries(1))
	assert.Equal(t, 1, table.Len(1))
}

// TestTable_HostMoves tests that a new port overwrites the old one
func TestTable_HostMoves(t *testing.T) {
	table := New()
	mac := mustMAC(t, "00:00:00:00:00:01")

	table.Learn(1, mac, 1)
	assert.True(t, table.Learn(1, mac, 4))

	port, ok := table.Lookup(1, mac)
	require.True(t, ok)
	assert.Equal(t, uint32(4), port)
	assert.Equal(t, 1, table.Len(1))
}

// TestTable_PerSwitch tests that switches do not share bindings
func TestTable_PerSwitch(t *testing.T) {
	table := New()
	mac := mustMAC(t, "00:00:00:00:00:02")

	table.Learn(1, mac, 2)

	_, ok := table.Lookup(2, mac)
	assert.False(t, ok)

	port, ok := table.Lookup(1, mac)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), port)
}

// TestTable_Forget tests dropping a switch's bindings
func TestTable_Forget(t *testing.T) {
	table := New()
	table.Learn(1, mustMAC(t, "00:00:00:00:00:01"), 1)
	table.Learn(1, mustMAC(t, "00:00:00:00:00:02"), 2)
	table.Learn(2, mustMAC(t, "00:00:00:00:00:01"), 1)

	table.Forget(1)

	assert.Equal(t, 0, table.Len(1))
	assert.Empty(t, table.Entries(1))
	assert.Equal(t, 1, table.Len(2))

	// forgetting an unknown switch is a no-op
	table.Forget(99)
}

// TestTable_Entries tests sorted output and MAC normalisation
func TestTable_Entries(t *testing.T) {
	table := New()
	table.Learn(1, mustMAC(t, "00:00:00:00:00:0B"), 2)
	table.Learn(1, mustMAC(t, "00-00-00-00-00-0a"), 1)

	entries := table.Entries(1)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{MAC: "00:00:00:00:00:0a", Port: 1}, entries[0])
	assert.Equal(t, Entry{MAC: "00:00:00:00:00:0b", Port: 2}, entries[1])
}
