// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hkwi/gopenflow/ofp4"
	log "github.com/sirupsen/logrus"

	"github.com/openflow-firewall/src/controller/pkg/app"
	"github.com/openflow-firewall/src/controller/pkg/config"
	"github.com/openflow-firewall/src/controller/pkg/stats"
	"github.com/openflow-firewall/src/controller/pkg/testutil"
)

var (
	numSwitches   = flag.Int("switches", 2, "Number of fake switches")
	numHosts      = flag.Int("hosts", 8, "Hosts per switch, one per port")
	rate          = flag.Int("rate", 200, "Packet-ins per second per switch")
	duration      = flag.Int("duration", 30, "Test duration in seconds")
	statsInterval = flag.Int("interval", 5, "Statistics reporting interval in seconds")
	pollInterval  = flag.Duration("poll", 2*time.Second, "Controller flow-stats poll interval")
	logLevel      = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(level)

	if *numHosts < 2 || *numHosts > 250 {
		log.Fatalf("hosts must be between 2 and 250, got %d", *numHosts)
	}

	log.Info("=== OpenFlow Controller Performance Test ===")
	log.Infof("Switches: %d, hosts per switch: %d", *numSwitches, *numHosts)
	log.Infof("Rate: %d packet-in/s per switch", *rate)
	log.Infof("Duration: %d seconds", *duration)
	log.Info("============================================")

	cfg := config.Default()
	cfg.LogLevel = *logLevel
	cfg.Controller.Listen = "127.0.0.1:0"
	cfg.Controller.PollInterval = *pollInterval
	cfg.API.Enabled = false

	ctrl, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build controller: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		log.Fatalf("Failed to start controller: %v", err)
	}
	log.Infof("✓ Controller listening on %s", ctrl.ControllerAddr())

	hosts := makeHosts(*numHosts)

	switches := make([]*testutil.FakeSwitch, 0, *numSwitches)
	for i := 0; i < *numSwitches; i++ {
		sw, err := testutil.DialFakeSwitch(ctrl.ControllerAddr().String(), uint64(i+1))
		if err != nil {
			log.Fatalf("Failed to connect switch %d: %v", i+1, err)
		}
		defer sw.Close()
		switches = append(switches, sw)
	}
	log.Infof("✓ Connected %d switches", len(switches))

	done := make(chan struct{})
	for i, sw := range switches {
		go drive(sw, hosts, rand.New(rand.NewSource(int64(i+1))), done)
	}

	ticker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer ticker.Stop()

	go func() {
		var last stats.Statistics
		for {
			select {
			case <-ticker.C:
				current := ctrl.Telemetry().Statistics()
				handled := current.LatencySamples - last.LatencySamples
				blocked := current.Blocked - last.Blocked

				log.Info("=== Current Statistics ===")
				log.Infof("  Blocked total:    %d (reconciled %d times)", current.BlockedTotal, current.Reconciliations)
				log.Infof("  Flooded:          %d", current.Flooded)
				log.Infof("  Forwarded:        %d", current.Forwarded)
				log.Infof("  Flow installs:    %d", current.FlowInstalls)
				log.Infof("Packet-in Rate: %.2f pps handled, %.2f pps blocked",
					float64(handled)/float64(*statsInterval), float64(blocked)/float64(*statsInterval))

				last = current
			case <-done:
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-time.After(time.Duration(*duration) * time.Second):
		log.Info("=== Test duration completed ===")
	case <-sigChan:
		log.Info("=== Test interrupted by user ===")
	}

	close(done)

	sent := 0
	for _, sw := range switches {
		sent += sw.CountType(uint8(ofp4.OFPT_PACKET_OUT))
	}

	report := ctrl.Stop()
	printReport(report, sent)
}

// makeHosts numbers hosts the way Mininet does: h1 is 10.0.0.1 with MAC
// 00:00:00:00:00:01
func makeHosts(n int) []testutil.Host {
	hosts := make([]testutil.Host, n)
	for i := range hosts {
		id := i + 1
		hosts[i] = testutil.NewHost(
			fmt.Sprintf("h%d", id),
			fmt.Sprintf("00:00:00:00:00:%02x", id),
			fmt.Sprintf("10.0.0.%d", id),
		)
	}
	return hosts
}

// drive sends pings between random host pairs at the configured rate.
// Host i sits behind port i+1.
func drive(sw *testutil.FakeSwitch, hosts []testutil.Host, rng *rand.Rand, done <-chan struct{}) {
	interval := time.Second / time.Duration(max(*rate, 1))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			src := rng.Intn(len(hosts))
			dst := rng.Intn(len(hosts) - 1)
			if dst >= src {
				dst++
			}
			frame := testutil.PingFrame(hosts[src], hosts[dst])
			if err := sw.SendPacketIn(uint32(src+1), frame); err != nil {
				log.Warnf("Switch %d send failed: %v", sw.DatapathID, err)
				return
			}
		}
	}
}

func printReport(r stats.Report, packetOuts int) {
	log.Info("=== Final Report ===")
	log.Infof("  Packet-outs received: %d", packetOuts)
	log.Infof("  Latency samples:      %d", r.LatencySamples)
	if r.LatencySamples > 0 {
		log.Infof("  Latency min/mean/p95/max: %.3f / %.3f / %.3f / %.3f ms",
			r.MinLatencyMs, r.MeanLatencyMs, r.P95LatencyMs, r.MaxLatencyMs)
	}
	log.Infof("  Blocked total:        %d", r.BlockedTotal)
	log.Infof("  Reconciliations:      %d", r.Reconciliations)
}
