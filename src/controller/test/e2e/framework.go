// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package e2e provides the end-to-end testing framework for the OpenFlow
// controller. It starts the complete controller on loopback, connects fake
// OpenFlow 1.3 switches over TCP and observes the result through the
// switches and the REST API.
package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/hkwi/gopenflow/ofp4"
	"github.com/stretchr/testify/require"

	"github.com/openflow-firewall/src/controller/pkg/api/models"
	"github.com/openflow-firewall/src/controller/pkg/app"
	"github.com/openflow-firewall/src/controller/pkg/config"
	"github.com/openflow-firewall/src/controller/pkg/flow"
	"github.com/openflow-firewall/src/controller/pkg/policy"
	"github.com/openflow-firewall/src/controller/pkg/testutil"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

// E2ETestEnv represents a complete end-to-end test environment: a running
// controller with its API and an optional SQLite block-list store.
type E2ETestEnv struct {
	T           *testing.T
	App         *app.App
	StoragePath string
	HTTPClient  *http.Client
	APIBaseURL  string

	cleanupFuncs []func()
}

// Options tweak the environment before the controller starts
type Options struct {
	// StoredPairs are written to the SQLite store before start
	StoredPairs []policy.BlockedPair
	// PollInterval defaults to one hour, so polls only happen on request
	PollInterval time.Duration
	// LearnedMatch is passed through to the controller
	LearnedMatch string
}

// NewE2ETestEnv starts a controller blocking 10.0.0.1 <-> 10.0.0.2 plus
// any stored pairs.
func NewE2ETestEnv(t *testing.T, opts Options) (*E2ETestEnv, error) {
	env := &E2ETestEnv{
		T:          t,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}

	env.StoragePath = filepath.Join(t.TempDir(), "blocklist.db")
	if len(opts.StoredPairs) > 0 {
		storage, err := policy.NewSQLiteStorage(env.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		for _, p := range opts.StoredPairs {
			if err := storage.SavePair(p); err != nil {
				storage.Close()
				return nil, fmt.Errorf("failed to seed storage: %w", err)
			}
		}
		storage.Close()
	}

	cfg := config.Default()
	cfg.Controller.Listen = "127.0.0.1:0"
	cfg.Controller.PollInterval = time.Hour
	if opts.PollInterval > 0 {
		cfg.Controller.PollInterval = opts.PollInterval
	}
	if opts.LearnedMatch != "" {
		cfg.Controller.LearnedMatch = opts.LearnedMatch
	}
	cfg.Storage.Path = env.StoragePath
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0

	a, err := app.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build controller: %w", err)
	}
	if err := a.Start(); err != nil {
		return nil, fmt.Errorf("failed to start controller: %w", err)
	}
	env.App = a
	env.addCleanup(func() { a.Stop() })
	env.APIBaseURL = "http://" + a.APIAddr().String()

	return env, nil
}

// addCleanup adds a cleanup function to be called on test teardown.
func (env *E2ETestEnv) addCleanup(fn func()) {
	env.cleanupFuncs = append(env.cleanupFuncs, fn)
}

// Cleanup releases all resources created by the test environment.
// It should be called with defer after creating the environment.
func (env *E2ETestEnv) Cleanup() {
	for i := len(env.cleanupFuncs) - 1; i >= 0; i-- {
		env.cleanupFuncs[i]()
	}
	env.cleanupFuncs = nil
}

// ConnectSwitch dials a fake switch and waits until its connect-time rules
// and barrier have arrived
func (env *E2ETestEnv) ConnectSwitch(dpid uint64) *testutil.FakeSwitch {
	sw, err := testutil.DialFakeSwitch(env.App.ControllerAddr().String(), dpid)
	require.NoError(env.T, err, "Failed to connect switch")
	env.addCleanup(func() { sw.Close() })

	require.Eventually(env.T, func() bool {
		return sw.CountType(uint8(ofp4.OFPT_BARRIER_REQUEST)) == 1
	}, waitFor, tick, "switch %d never got its barrier", dpid)
	return sw
}

// Send sends an unbuffered packet-in carrying frame from inPort
func (env *E2ETestEnv) Send(sw *testutil.FakeSwitch, inPort uint32, frame []byte) {
	require.NoError(env.T, sw.SendPacketIn(inPort, frame))
}

// WaitForPacketOuts waits until the switch has received n packet-outs and
// returns them
func (env *E2ETestEnv) WaitForPacketOuts(sw *testutil.FakeSwitch, n int) []flow.PacketOut {
	require.Eventually(env.T, func() bool {
		return sw.CountType(uint8(ofp4.OFPT_PACKET_OUT)) >= n
	}, waitFor, tick, "expected %d packet-outs", n)

	outs, err := sw.PacketOuts()
	require.NoError(env.T, err)
	return outs
}

// FlowMods decodes the flow mods the switch has received so far
func (env *E2ETestEnv) FlowMods(sw *testutil.FakeSwitch) []flow.Rule {
	rules, err := sw.FlowMods()
	require.NoError(env.T, err)
	return rules
}

// GetJSON performs GET path on the API and decodes the body into out
func (env *E2ETestEnv) GetJSON(path string, out interface{}) int {
	resp, err := env.HTTPClient.Get(env.APIBaseURL + path)
	require.NoError(env.T, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(env.T, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// Statistics fetches /api/v1/stats
func (env *E2ETestEnv) Statistics() models.StatisticsResponse {
	var st models.StatisticsResponse
	require.Equal(env.T, http.StatusOK, env.GetJSON("/api/v1/stats", &st))
	return st
}

// WaitForBlockedTotal waits for the API to report the blocked total
func (env *E2ETestEnv) WaitForBlockedTotal(expected uint64) {
	require.Eventually(env.T, func() bool {
		return env.Statistics().BlockedTotal == expected
	}, waitFor, tick, "blocked total never reached %d", expected)
}

// WaitForSwitchCount waits for the API to list n switches
func (env *E2ETestEnv) WaitForSwitchCount(n int) {
	require.Eventually(env.T, func() bool {
		var list models.SwitchListResponse
		return env.GetJSON("/api/v1/switches", &list) == http.StatusOK && list.Count == n
	}, waitFor, tick, "switch count never reached %d", n)
}
