// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package app assembles the controller from its configuration and runs it:
// the OpenFlow listener, the serial event dispatcher, the statistics poller
// and the optional REST API.
package app

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/openflow-firewall/src/controller/pkg/api"
	"github.com/openflow-firewall/src/controller/pkg/config"
	"github.com/openflow-firewall/src/controller/pkg/controller"
	"github.com/openflow-firewall/src/controller/pkg/dataplane"
	"github.com/openflow-firewall/src/controller/pkg/maclearn"
	"github.com/openflow-firewall/src/controller/pkg/policy"
	"github.com/openflow-firewall/src/controller/pkg/registry"
	"github.com/openflow-firewall/src/controller/pkg/stats"
)

// App is one running controller
type App struct {
	cfg *config.Config

	storage    *policy.SQLiteStorage
	engine     *policy.Engine
	switches   *registry.Registry
	macs       *maclearn.Table
	metrics    *prometheus.Registry
	telemetry  *stats.Collector
	ctrl       *controller.Controller
	southbound *dataplane.Server
	poller     *stats.Poller
	apiServer  *api.Server

	stopPoll     context.CancelFunc
	stopServe    context.CancelFunc
	pollDone     chan struct{}
	serveDone    chan struct{}
	dispatchDone chan struct{}

	stopOnce sync.Once
	report   stats.Report
}

// New builds every component. The block-list is the union of the
// configured pairs and, when a storage path is set, the stored ones.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pairs, err := cfg.BlockedPairs()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		switches: registry.New(),
		macs:     maclearn.New(),
		metrics:  prometheus.NewRegistry(),
	}

	if cfg.Storage.Path != "" {
		a.storage, err = policy.NewSQLiteStorage(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		stored, err := a.storage.LoadPairs()
		if err != nil {
			a.storage.Close()
			return nil, fmt.Errorf("failed to load stored block-list: %w", err)
		}
		log.Infof("Loaded %d blocked pairs from storage", len(stored))
		pairs = append(pairs, stored...)
	}

	a.engine = policy.NewEngine(pairs...)
	for _, p := range a.engine.Pairs() {
		log.Infof("Blocking %s", p)
	}

	a.metrics.MustRegister(collectors.NewGoCollector())
	a.telemetry = stats.NewCollector(a.metrics, nil)

	a.ctrl = controller.New(a.switches, a.macs, a.engine, a.telemetry, controller.Options{
		LearnedMatch: cfg.Controller.LearnedMatch,
	})
	a.southbound = dataplane.NewServer(cfg.Controller.Listen, cfg.Controller.EventBuffer)
	a.poller = stats.NewPoller(a.switches, cfg.Controller.PollInterval, nil)

	if cfg.API.Enabled {
		a.apiServer, err = api.NewAPIServer(&cfg.API, api.Dependencies{
			Stats:    a.telemetry,
			Switches: a.switches,
			MACs:     a.macs,
			Policy:   a.engine,
			Gatherer: a.metrics,
			Settings: cfg.Settings(a.engine.Len()),
		})
		if err != nil {
			a.closeStorage()
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
	}

	return a, nil
}

// Start binds the listeners and starts every goroutine. It returns once
// the controller accepts switches.
func (a *App) Start() error {
	if err := a.southbound.Listen(); err != nil {
		return err
	}

	serveCtx, stopServe := context.WithCancel(context.Background())
	a.stopServe = stopServe
	a.serveDone = make(chan struct{})
	go func() {
		defer close(a.serveDone)
		if err := a.southbound.Serve(serveCtx); err != nil {
			log.Errorf("OpenFlow listener failed: %v", err)
		}
	}()

	a.dispatchDone = make(chan struct{})
	go func() {
		defer close(a.dispatchDone)
		a.ctrl.Run(a.southbound.Events())
	}()

	pollCtx, stopPoll := context.WithCancel(context.Background())
	a.stopPoll = stopPoll
	a.pollDone = make(chan struct{})
	go func() {
		defer close(a.pollDone)
		a.poller.Run(pollCtx)
	}()

	if a.apiServer != nil {
		if err := a.apiServer.Start(); err != nil {
			a.Stop()
			return err
		}
	}

	return nil
}

// Stop shuts down in order: the poller, the OpenFlow listener and its
// sessions, the dispatcher once it has drained, then the API. It returns
// the final telemetry report, taken after the poller and dispatcher have
// exited. Safe to call more than once.
func (a *App) Stop() stats.Report {
	a.stopOnce.Do(func() {
		if a.stopPoll != nil {
			a.stopPoll()
			<-a.pollDone
		}
		if a.stopServe != nil {
			a.stopServe()
			<-a.serveDone
			<-a.dispatchDone
		}

		a.report = a.telemetry.Summary()

		if a.apiServer != nil {
			if err := a.apiServer.Stop(); err != nil {
				log.Errorf("Error stopping API server: %v", err)
			}
		}
		a.closeStorage()
	})
	return a.report
}

func (a *App) closeStorage() {
	if a.storage == nil {
		return
	}
	if err := a.storage.Close(); err != nil {
		log.Warnf("Error closing storage: %v", err)
	}
	a.storage = nil
}

// ControllerAddr is the bound OpenFlow address, nil before Start
func (a *App) ControllerAddr() net.Addr { return a.southbound.Addr() }

// APIAddr is the bound API address, nil when the API is disabled or not
// started
func (a *App) APIAddr() net.Addr {
	if a.apiServer == nil {
		return nil
	}
	return a.apiServer.Addr()
}

// Telemetry returns the collector
func (a *App) Telemetry() *stats.Collector { return a.telemetry }

// Switches returns the registry
func (a *App) Switches() *registry.Registry { return a.switches }

// MACs returns the learning table
func (a *App) MACs() *maclearn.Table { return a.macs }

// Policy returns the block-list engine
func (a *App) Policy() *policy.Engine { return a.engine }
