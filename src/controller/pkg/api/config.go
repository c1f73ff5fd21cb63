package api

import (
	"errors"
	"fmt"
	"time"
)

// Default listen address of the read-only API
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8080
)

// Config holds API server configuration. It is embedded under the api key
// of the controller configuration file.
type Config struct {
	// Enabled starts the API server alongside the controller
	Enabled bool `json:"enabled" yaml:"enabled"`

	Host string `json:"host" yaml:"host"`
	// Port 0 picks a free port, see Server.Addr
	Port int `json:"port" yaml:"port"`

	// HTTP server timeouts, zero means none
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// ShutdownTimeout bounds how long Stop waits for in-flight requests
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// EnableCORS answers browser preflight requests for the dashboard
	EnableCORS bool `json:"enable_cors" yaml:"enable_cors"`

	// Debug runs gin in debug mode, which prints every route at startup
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns default API configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Host:            DefaultHost,
		Port:            DefaultPort,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		EnableCORS:      true,
	}
}

// Validate checks the port and the timeouts
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid API port %d", c.Port))
	}
	for name, d := range map[string]time.Duration{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"idle_timeout":     c.IdleTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}
