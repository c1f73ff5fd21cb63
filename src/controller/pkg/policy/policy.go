// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrInvalidAddress is returned when a block-list entry is not an IPv4 address
var ErrInvalidAddress = errors.New("invalid IPv4 address")

// BlockedPair represents an unordered pair of IPv4 hosts that must not talk
type BlockedPair struct {
	A netip.Addr
	B netip.Addr
}

// pairKey is the normalised form of a pair (lower address first)
type pairKey struct {
	lo netip.Addr
	hi netip.Addr
}

// ParsePair parses two IPv4 addresses into a blocked pair
func ParsePair(a, b string) (BlockedPair, error) {
	addrA, err := parseIPv4(a)
	if err != nil {
		return BlockedPair{}, err
	}

	addrB, err := parseIPv4(b)
	if err != nil {
		return BlockedPair{}, err
	}

	return BlockedPair{A: addrA, B: addrB}, nil
}

// MustParsePair is like ParsePair but panics on error.
// Intended for tests and static tables.
func MustParsePair(a, b string) BlockedPair {
	p, err := ParsePair(a, b)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pair as "A<->B"
func (p BlockedPair) String() string {
	return fmt.Sprintf("%s<->%s", p.A, p.B)
}

// Normalized returns the pair with the lower address in A
func (p BlockedPair) Normalized() BlockedPair {
	k := p.key()
	return BlockedPair{A: k.lo, B: k.hi}
}

// Directions returns the two (src, dst) tuples covered by the pair
func (p BlockedPair) Directions() [2][2]netip.Addr {
	return [2][2]netip.Addr{{p.A, p.B}, {p.B, p.A}}
}

func (p BlockedPair) key() pairKey {
	if p.B.Less(p.A) {
		return pairKey{lo: p.B, hi: p.A}
	}
	return pairKey{lo: p.A, hi: p.B}
}

// Engine classifies traffic against a static block-list
type Engine struct {
	pairs []BlockedPair
	set   map[pairKey]struct{}
}

// NewEngine creates a policy engine. Duplicate pairs, in either order,
// are collapsed into one entry.
func NewEngine(pairs ...BlockedPair) *Engine {
	e := &Engine{
		pairs: make([]BlockedPair, 0, len(pairs)),
		set:   make(map[pairKey]struct{}, len(pairs)),
	}

	for _, p := range pairs {
		k := p.key()
		if _, ok := e.set[k]; ok {
			log.Debugf("Duplicate blocked pair ignored: %s", p)
			continue
		}
		e.set[k] = struct{}{}
		e.pairs = append(e.pairs, p)
	}

	return e
}

// IsBlocked reports whether {src, dst} is a member of the block-list.
// Addresses that are not IPv4 are never blocked.
func (e *Engine) IsBlocked(src, dst net.IP) bool {
	s, ok := toAddr(src)
	if !ok {
		return false
	}
	d, ok := toAddr(dst)
	if !ok {
		return false
	}

	_, blocked := e.set[BlockedPair{A: s, B: d}.key()]
	return blocked
}

// Pairs returns a copy of the block-list in load order
func (e *Engine) Pairs() []BlockedPair {
	out := make([]BlockedPair, len(e.pairs))
	copy(out, e.pairs)
	return out
}

// Len returns the number of distinct blocked pairs
func (e *Engine) Len() int {
	return len(e.pairs)
}

// Helper functions

func parseIPv4(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %q is not IPv4", ErrInvalidAddress, s)
	}

	return addr, nil
}

func toAddr(ip net.IP) (netip.Addr, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(v4)), true
}
