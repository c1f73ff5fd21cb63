// Package api provides a read-only HTTP API over the running OpenFlow
// controller.
//
// The API server exposes endpoints for:
//   - Health checks and controller status (with host memory and CPU)
//   - Telemetry: decision counters, packet-in latency, the reconciled
//     blocked-packet series
//   - Connected switches and the MACs learned on each
//   - The static block-list and pair lookups
//   - Prometheus metrics
//
// Nothing here changes controller state; the block-list is loaded once at
// start.
//
// # Example Usage
//
//	cfg := api.DefaultConfig()
//	cfg.Port = 8080
//
//	server, err := api.NewAPIServer(cfg, api.Dependencies{
//	    Stats:    collector,
//	    Switches: switches,
//	    MACs:     macs,
//	    Policy:   engine,
//	    Gatherer: registry,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := server.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Stop()
//
// # Endpoints
//
// Health check:
//   - GET /api/v1/health  - Simple health check
//   - GET /api/v1/status  - Detailed controller status
//
// Statistics:
//   - GET /api/v1/stats         - All counters
//   - GET /api/v1/stats/latency - Latency summary and samples (ms)
//   - GET /api/v1/stats/blocked - Reconciled blocked total series
//
// Switches:
//   - GET /api/v1/switches     - Connected switches
//   - GET /api/v1/switches/:id - One switch with learned MACs (hex datapath id)
//
// Block-list:
//   - GET /api/v1/blocklist                       - Blocked pairs
//   - GET /api/v1/blocklist/check?src=A&dst=B     - Pair lookup
//
// Other:
//   - GET /api/v1/config - Effective configuration
//   - GET /metrics       - Prometheus exposition
//
// # Middleware
//
// The server includes the following middleware:
//   - Recovery: Catches panics and prevents server crashes
//   - Logger: Logs all HTTP requests with timing information
//   - CORS: Enables cross-origin resource sharing for web UIs
package api
