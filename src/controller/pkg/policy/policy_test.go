// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParsePair tests address parsing for block-list entries
func TestParsePair(t *testing.T) {
	testCases := []struct {
		name        string
		a, b        string
		expectError bool
	}{
		{name: "valid pair", a: "10.0.0.1", b: "10.0.0.2"},
		{name: "surrounding whitespace", a: " 10.0.0.1", b: "10.0.0.2 "},
		{name: "ipv4-mapped ipv6", a: "::ffff:10.0.0.1", b: "10.0.0.2"},
		{name: "ipv6 rejected", a: "fe80::1", b: "10.0.0.2", expectError: true},
		{name: "garbage rejected", a: "10.0.0.1", b: "not-an-ip", expectError: true},
		{name: "cidr rejected", a: "10.0.0.0/24", b: "10.0.0.2", expectError: true},
		{name: "empty rejected", a: "", b: "10.0.0.2", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParsePair(tc.a, tc.b)
			if tc.expectError {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAddress))
				return
			}
			require.NoError(t, err)
			assert.True(t, p.A.Is4())
			assert.True(t, p.B.Is4())
		})
	}
}

// TestEngine_IsBlocked_Unordered tests that both directions of a pair are blocked
func TestEngine_IsBlocked_Unordered(t *testing.T) {
	pairs := []BlockedPair{
		MustParsePair("10.0.0.1", "10.0.0.2"),
		MustParsePair("192.168.1.20", "192.168.1.10"),
	}
	engine := NewEngine(pairs...)

	for _, p := range pairs {
		a := net.IP(p.A.AsSlice())
		b := net.IP(p.B.AsSlice())
		assert.True(t, engine.IsBlocked(a, b), "forward direction of %s", p)
		assert.True(t, engine.IsBlocked(b, a), "reverse direction of %s", p)
	}
}

// TestEngine_IsBlocked_OutsidePair tests that unrelated traffic is allowed
func TestEngine_IsBlocked_OutsidePair(t *testing.T) {
	engine := NewEngine(MustParsePair("10.0.0.1", "10.0.0.2"))

	testCases := []struct {
		name string
		src  string
		dst  string
	}{
		{name: "A to C", src: "10.0.0.1", dst: "10.0.0.3"},
		{name: "C to B", src: "10.0.0.3", dst: "10.0.0.2"},
		{name: "A to A", src: "10.0.0.1", dst: "10.0.0.1"},
		{name: "unrelated", src: "172.16.0.1", dst: "172.16.0.2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, engine.IsBlocked(net.ParseIP(tc.src), net.ParseIP(tc.dst)))
		})
	}
}

// TestEngine_IsBlocked_NonIPv4 tests that nil and IPv6 addresses never match
func TestEngine_IsBlocked_NonIPv4(t *testing.T) {
	engine := NewEngine(MustParsePair("10.0.0.1", "10.0.0.2"))

	assert.False(t, engine.IsBlocked(nil, net.ParseIP("10.0.0.2")))
	assert.False(t, engine.IsBlocked(net.ParseIP("10.0.0.1"), nil))
	assert.False(t, engine.IsBlocked(net.ParseIP("fe80::1"), net.ParseIP("10.0.0.2")))
}

// TestEngine_IsBlocked_SixteenByteForm tests that 16-byte IPv4 slices match
func TestEngine_IsBlocked_SixteenByteForm(t *testing.T) {
	engine := NewEngine(MustParsePair("10.0.0.1", "10.0.0.2"))

	src := net.IPv4(10, 0, 0, 1) // 16-byte representation
	dst := net.IP{10, 0, 0, 2}   // 4-byte representation
	assert.True(t, engine.IsBlocked(src, dst))
}

// TestEngine_Deduplicates tests that reversed duplicates collapse into one pair
func TestEngine_Deduplicates(t *testing.T) {
	engine := NewEngine(
		MustParsePair("10.0.0.1", "10.0.0.2"),
		MustParsePair("10.0.0.2", "10.0.0.1"),
		MustParsePair("10.0.0.1", "10.0.0.2"),
	)

	assert.Equal(t, 1, engine.Len())
	require.Len(t, engine.Pairs(), 1)
	assert.Equal(t, "10.0.0.1<->10.0.0.2", engine.Pairs()[0].String())
}

// TestEngine_PairsIsCopy tests that callers cannot mutate the block-list
func TestEngine_PairsIsCopy(t *testing.T) {
	engine := NewEngine(MustParsePair("10.0.0.1", "10.0.0.2"))

	pairs := engine.Pairs()
	pairs[0] = MustParsePair("10.9.9.9", "10.8.8.8")

	assert.Equal(t, "10.0.0.1", engine.Pairs()[0].A.String())
}

// TestEngine_Empty tests an engine with no pairs
func TestEngine_Empty(t *testing.T) {
	engine := NewEngine()

	assert.Equal(t, 0, engine.Len())
	assert.Empty(t, engine.Pairs())
	assert.False(t, engine.IsBlocked(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.2")))
}

// TestBlockedPair_Directions tests the per-direction expansion used for drop rules
func TestBlockedPair_Directions(t *testing.T) {
	p := MustParsePair("10.0.0.1", "10.0.0.2")
	dirs := p.Directions()

	assert.Equal(t, "10.0.0.1", dirs[0][0].String())
	assert.Equal(t, "10.0.0.2", dirs[0][1].String())
	assert.Equal(t, "10.0.0.2", dirs[1][0].String())
	assert.Equal(t, "10.0.0.1", dirs[1][1].String())
}

// TestBlockedPair_Normalized tests normalisation is order independent
func TestBlockedPair_Normalized(t *testing.T) {
	a := MustParsePair("10.0.0.9", "10.0.0.1").Normalized()
	b := MustParsePair("10.0.0.1", "10.0.0.9").Normalized()

	assert.Equal(t, a, b)
	assert.Equal(t, "10.0.0.1", a.A.String())
}
