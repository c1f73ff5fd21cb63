// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import "net"

// Checker interface defines the read-only policy operations.
// This interface is useful for testing and dependency injection.
type Checker interface {
	IsBlocked(src, dst net.IP) bool
	Pairs() []BlockedPair
}

// Ensure Engine implements Checker interface
var _ Checker = (*Engine)(nil)
