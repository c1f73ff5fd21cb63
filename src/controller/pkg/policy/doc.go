// Package policy provides the static firewall policy of the controller.
//
// It handles:
//   - Parsing and normalising blocked IPv4 address pairs
//   - Classifying a (source, destination) pair as blocked or allowed
//   - Persisting the block-list seed in SQLite between runs
//
// # Policy Model
//
// A blocked pair is an unordered pair of IPv4 addresses:
//   - (A, B) and (B, A) name the same pair
//   - a packet from A to B and a packet from B to A are both blocked
//   - a packet from A to any C outside the pair is not blocked
//
// The block-list is loaded once at startup (configuration file plus the
// optional SQLite store) and is immutable afterwards.
//
// # Example Usage
//
//	pair, err := policy.ParsePair("10.0.0.1", "10.0.0.2")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine := policy.NewEngine(pair)
//
//	engine.IsBlocked(net.ParseIP("10.0.0.2"), net.ParseIP("10.0.0.1")) // true
//	engine.IsBlocked(net.ParseIP("10.0.0.1"), net.ParseIP("10.0.0.3")) // false
//
// # Thread Safety
//
// An Engine is read-only after NewEngine returns and is safe for concurrent
// use. SQLiteStorage relies on database/sql connection pooling.
package policy
