// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package config loads the controller configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/openflow-firewall/src/controller/pkg/api"
	"github.com/openflow-firewall/src/controller/pkg/api/models"
	"github.com/openflow-firewall/src/controller/pkg/controller"
	"github.com/openflow-firewall/src/controller/pkg/policy"
	"github.com/openflow-firewall/src/controller/pkg/stats"
)

// Defaults
const (
	DefaultListen      = ":6653"
	DefaultEventBuffer = 256
)

// Config is the top-level structure of the configuration file
type Config struct {
	LogLevel   string           `yaml:"log_level"`
	Controller ControllerConfig `yaml:"controller"`
	Storage    StorageConfig    `yaml:"storage"`
	API        api.Config       `yaml:"api"`
	BlockList  []PairConfig     `yaml:"blocklist"`
}

// ControllerConfig tunes the southbound listener and the event loop
type ControllerConfig struct {
	Listen       string        `yaml:"listen"`
	PollInterval time.Duration `yaml:"poll_interval"`
	EventBuffer  int           `yaml:"event_buffer"`
	LearnedMatch string        `yaml:"learned_match"`
}

// StorageConfig locates the SQLite block-list store. An empty path
// disables it.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// PairConfig is one blocked pair as written in the file
type PairConfig struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// Default returns the configuration used when no file is given. It blocks
// 10.0.0.1 <-> 10.0.0.2.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Controller: ControllerConfig{
			Listen:       DefaultListen,
			PollInterval: stats.DefaultPollInterval,
			EventBuffer:  DefaultEventBuffer,
			LearnedMatch: controller.LearnedMatchL2L3,
		},
		API: *api.DefaultConfig(),
		BlockList: []PairConfig{
			{A: "10.0.0.1", B: "10.0.0.2"},
		},
	}
}

// LoadConfig reads a YAML file on top of Default. Keys missing from the
// file keep their default value; a blocklist key replaces the default
// list.
func LoadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("could not parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	log.Debugf("Loaded config from %s", path)
	return cfg, nil
}

// Validate checks every field and reports all problems at once
func (c *Config) Validate() error {
	var errs []error

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, _, err := net.SplitHostPort(c.Controller.Listen); err != nil {
		errs = append(errs, fmt.Errorf("controller.listen: %w", err))
	}
	if c.Controller.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("controller.poll_interval must be positive, got %s", c.Controller.PollInterval))
	}
	if c.Controller.EventBuffer < 0 {
		errs = append(errs, fmt.Errorf("controller.event_buffer must not be negative, got %d", c.Controller.EventBuffer))
	}
	if _, err := controller.ParseLearnedMatch(c.Controller.LearnedMatch); err != nil {
		errs = append(errs, fmt.Errorf("controller.learned_match: %w", err))
	}
	if err := c.API.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("api: %w", err))
	}
	if _, err := c.BlockedPairs(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// BlockedPairs parses the block-list
func (c *Config) BlockedPairs() ([]policy.BlockedPair, error) {
	pairs := make([]policy.BlockedPair, 0, len(c.BlockList))
	for i, p := range c.BlockList {
		pair, err := policy.ParsePair(p.A, p.B)
		if err != nil {
			return nil, fmt.Errorf("blocklist[%d]: %w", i, err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// Settings is the read-only view served by the API
func (c *Config) Settings(blockedPairs int) models.ConfigResponse {
	return models.ConfigResponse{
		LogLevel:     c.LogLevel,
		Listen:       c.Controller.Listen,
		PollInterval: c.Controller.PollInterval.String(),
		EventBuffer:  c.Controller.EventBuffer,
		LearnedMatch: c.Controller.LearnedMatch,
		StoragePath:  c.Storage.Path,
		APIHost:      c.API.Host,
		APIPort:      c.API.Port,
		BlockedPairs: blockedPairs,
	}
}
