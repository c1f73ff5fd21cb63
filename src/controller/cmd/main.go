// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openflow-firewall/src/controller/pkg/app"
	"github.com/openflow-firewall/src/controller/pkg/config"
	"github.com/openflow-firewall/src/controller/pkg/controller"
	"github.com/openflow-firewall/src/controller/pkg/policy"
	"github.com/openflow-firewall/src/controller/pkg/stats"
)

var (
	configPath    string
	listen        string
	logLevel      string
	pollInterval  time.Duration
	learnedMatch  string
	statsInterval int
	enableAPI     bool
	apiHost       string
	apiPort       int
	dbPath        string
)

var rootCmd = &cobra.Command{
	Use:   "openflow-firewall",
	Short: "Reactive OpenFlow 1.3 firewall controller",
	Long: `A reactive OpenFlow 1.3 controller that learns MAC addresses, forwards
traffic with installed flow rules, and drops IPv4 traffic between blocked
address pairs`,
	RunE: runController,
}

var blocklistCmd = &cobra.Command{
	Use:   "blocklist",
	Short: "Manage the persistent block-list",
}

var blocklistAddCmd = &cobra.Command{
	Use:   "add <ip-a> <ip-b>",
	Short: "Store a blocked pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd, func(s *policy.SQLiteStorage) error {
			pair, err := policy.ParsePair(args[0], args[1])
			if err != nil {
				return err
			}
			if err := s.SavePair(pair); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Blocked %s\n", pair.Normalized())
			return nil
		})
	},
}

var blocklistRemoveCmd = &cobra.Command{
	Use:   "remove <ip-a> <ip-b>",
	Short: "Delete a stored blocked pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd, func(s *policy.SQLiteStorage) error {
			pair, err := policy.ParsePair(args[0], args[1])
			if err != nil {
				return err
			}
			if err := s.DeletePair(pair); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unblocked %s\n", pair.Normalized())
			return nil
		})
	},
}

var blocklistListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the stored blocked pairs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd, func(s *policy.SQLiteStorage) error {
			pairs, err := s.LoadPairs()
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}

			n, err := s.Count()
			if err != nil {
				return err
			}
			if n != len(pairs) {
				log.Warnf("%d stored rows could not be parsed", n-len(pairs))
			}
			return nil
		})
	},
}

var blocklistClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every stored blocked pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStorage(cmd, func(s *policy.SQLiteStorage) error {
			n, err := s.Clear()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d pairs\n", n)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite block-list database (overrides storage.path)")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error)")

	rootCmd.Flags().StringVar(&listen, "listen", config.DefaultListen, "OpenFlow listen address")
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", stats.DefaultPollInterval, "Flow statistics poll interval")
	rootCmd.Flags().StringVar(&learnedMatch, "learned-match", controller.LearnedMatchL2L3, "Learned rule match fields (l2l3, l2)")
	rootCmd.Flags().IntVarP(&statsInterval, "stats-interval", "s", 0, "Statistics print interval in seconds (0 disables)")
	rootCmd.Flags().BoolVarP(&enableAPI, "enable-api", "a", true, "Enable REST API server")
	rootCmd.Flags().StringVar(&apiHost, "api-host", "127.0.0.1", "API server host")
	rootCmd.Flags().IntVar(&apiPort, "api-port", 8080, "API server port")

	blocklistCmd.AddCommand(blocklistAddCmd, blocklistRemoveCmd, blocklistListCmd, blocklistClearCmd)
	rootCmd.AddCommand(blocklistCmd)
}

func setupLogging(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(lvl)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	return nil
}

// loadConfig reads the file if one was given and applies the flags the
// user set explicitly on top of it
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("db") {
		cfg.Storage.Path = dbPath
	}
	if flags.Lookup("listen") != nil {
		if flags.Changed("listen") {
			cfg.Controller.Listen = listen
		}
		if flags.Changed("poll-interval") {
			cfg.Controller.PollInterval = pollInterval
		}
		if flags.Changed("learned-match") {
			cfg.Controller.LearnedMatch = learnedMatch
		}
		if flags.Changed("enable-api") {
			cfg.API.Enabled = enableAPI
		}
		if flags.Changed("api-host") {
			cfg.API.Host = apiHost
		}
		if flags.Changed("api-port") {
			cfg.API.Port = apiPort
		}
	}

	return cfg, cfg.Validate()
}

func withStorage(cmd *cobra.Command, fn func(*policy.SQLiteStorage) error) error {
	if err := setupLogging(logLevel); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("no block-list database: set storage.path or --db")
	}

	s, err := policy.NewSQLiteStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}

func runController(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel); err != nil {
		return err
	}

	log.Infof("Starting OpenFlow firewall controller on %s", cfg.Controller.Listen)

	ctrl, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}
	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}

	log.Infof("✓ Accepting switches on %s", ctrl.ControllerAddr())
	if addr := ctrl.APIAddr(); addr != nil {
		log.Infof("✓ API server started on http://%s", addr)
	}

	done := make(chan struct{})
	var reporter sync.WaitGroup
	if statsInterval > 0 {
		ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
		defer ticker.Stop()

		reporter.Add(1)
		go func() {
			defer reporter.Done()
			reportStatistics(ticker.C, done, func() { logStatistics(ctrl) })
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	log.Info("✓ Controller running. Press Ctrl+C to exit")

	<-sig
	log.Info("Shutting down...")

	close(done)
	reporter.Wait()

	report := ctrl.Stop()
	log.Info("=== Final Report ===")
	log.Infof("  Packet-ins handled: %d", report.LatencySamples)
	if report.LatencySamples > 0 {
		log.Infof("  Latency min/mean/p95/max: %.3f / %.3f / %.3f / %.3f ms",
			report.MinLatencyMs, report.MeanLatencyMs, report.P95LatencyMs, report.MaxLatencyMs)
	}
	log.Infof("  Blocked total:      %d", report.BlockedTotal)
	return nil
}

// reportStatistics calls report on every tick until done is closed
func reportStatistics(ticks <-chan time.Time, done <-chan struct{}, report func()) {
	for {
		select {
		case <-done:
			return
		case <-ticks:
			report()
		}
	}
}

func logStatistics(ctrl *app.App) {
	s := ctrl.Telemetry().Statistics()
	log.Info("=== Statistics ===")
	log.Infof("  Switches:         %d", ctrl.Switches().Len())
	log.Infof("  Blocked Total:    %d", s.BlockedTotal)
	log.Infof("  Blocked Packets:  %d", s.Blocked)
	log.Infof("  Flooded Packets:  %d", s.Flooded)
	log.Infof("  Forwarded:        %d", s.Forwarded)
	log.Infof("  Flow Installs:    %d", s.FlowInstalls)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
