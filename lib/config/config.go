// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "PNG_IPC_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for installed builds.
	Production Environment = "production"
)

// Config is the master configuration for the IPC processes.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Broker configures the telemetry broker's two endpoints.
	Broker BrokerConfig `yaml:"broker"`

	// Control configures the parent/child command channel.
	Control ControlConfig `yaml:"control"`

	// Bus configures publishers and subscription routers.
	Bus BusConfig `yaml:"bus"`

	// Logging configures the process logger.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Logging *LoggingConfig `yaml:"logging,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// BrokerConfig configures the broker.
type BrokerConfig struct {
	// Frontend is where publishers connect.
	// Default: tcp://127.0.0.1:5555
	Frontend endpoint.Endpoint `yaml:"frontend"`

	// Backend is where subscribers connect.
	// Default: tcp://127.0.0.1:5556
	Backend endpoint.Endpoint `yaml:"backend"`
}

// ControlConfig configures the control channel.
type ControlConfig struct {
	// Endpoint the child binds and the parent connects to.
	// Default: tcp://127.0.0.1:5557
	Endpoint endpoint.Endpoint `yaml:"endpoint"`

	// Name identifies the child in ping replies. Empty means a
	// generated name.
	Name string `yaml:"name"`

	// RequestTimeout is the default per-request deadline.
	// Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ConnectTimeout bounds the wait for a reachable server.
	// Default: 1s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// PollInterval bounds the server's cancellation latency.
	// Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`

	// HeartbeatInterval is the time between liveness pings.
	// Default: 2s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// HeartbeatFailureThreshold is the number of consecutive missed
	// pings that marks the child unresponsive.
	// Default: 3
	HeartbeatFailureThreshold int `yaml:"heartbeat_failure_threshold"`
}

// BusConfig configures telemetry publishers and subscribers.
type BusConfig struct {
	// SendHWM is the publisher's transport queue depth.
	// Default: 1
	SendHWM int `yaml:"send_hwm"`

	// ReceiveHWM is the subscriber's transport queue depth; 0 keeps
	// the transport default.
	ReceiveHWM int `yaml:"receive_hwm"`

	// PollInterval bounds the router's shutdown latency.
	// Default: 100ms
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: debug (development), info (production)
	Level string `yaml:"level"`

	// Format is "text", "json" or "auto" (text on a terminal, JSON
	// otherwise).
	// Default: text (development), json (production)
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a loopback host:port for /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// Default returns the default configuration. Every field has a usable
// value, so binaries can run without a config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Broker: BrokerConfig{
			Frontend: endpoint.Loopback(5555),
			Backend:  endpoint.Loopback(5556),
		},
		Control: ControlConfig{
			Endpoint:                  endpoint.Loopback(5557),
			RequestTimeout:            5 * time.Second,
			ConnectTimeout:            time.Second,
			PollInterval:              100 * time.Millisecond,
			HeartbeatInterval:         2 * time.Second,
			HeartbeatFailureThreshold: 3,
		},
		Bus: BusConfig{
			SendHWM:      1,
			PollInterval: 100 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by PNG_IPC_CONFIG.
// There is no search path: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadOrDefault resolves the configuration for a binary: the --config
// path when given, else the file named by PNG_IPC_CONFIG when set, else
// Default.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvVar) != "" {
		return Load()
	}
	return Default(), nil
}

// LoadFile loads configuration from a specific file path on top of
// Default, applies the environment's overrides, and validates the
// result.
//
// ${VAR} and ${VAR:-default} in the file are expanded from the
// environment before parsing, so ports can be templated. No other
// environment variables affect the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	cfg.applyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal([]byte(expandVars(string(data))), c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: structured output, less noise.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Logging: &LoggingConfig{Level: "info", Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}

	if overrides.Metrics != nil && overrides.Metrics.Listen != "" {
		c.Metrics.Listen = overrides.Metrics.Listen
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// LogLevels and LogFormats are the accepted logging values.
var (
	LogLevels  = []string{"debug", "info", "warn", "error"}
	LogFormats = []string{"text", "json", "auto"}
)

// Validate checks the configuration for errors. Every problem is
// reported, not just the first.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	for name, target := range map[string]endpoint.Endpoint{
		"broker.frontend":  c.Broker.Frontend,
		"broker.backend":   c.Broker.Backend,
		"control.endpoint": c.Control.Endpoint,
	} {
		if err := target.RequireLoopback(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else if target.IsEphemeral() {
			errs = append(errs, fmt.Errorf("%s: a fixed port is required", name))
		}
	}
	if c.Broker.Frontend == c.Broker.Backend {
		errs = append(errs, fmt.Errorf("broker.frontend and broker.backend must differ"))
	}

	for name, value := range map[string]time.Duration{
		"control.request_timeout":    c.Control.RequestTimeout,
		"control.connect_timeout":    c.Control.ConnectTimeout,
		"control.poll_interval":      c.Control.PollInterval,
		"control.heartbeat_interval": c.Control.HeartbeatInterval,
		"bus.poll_interval":          c.Bus.PollInterval,
	} {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Control.HeartbeatFailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("control.heartbeat_failure_threshold must be at least 1"))
	}
	if c.Bus.SendHWM < 1 {
		errs = append(errs, fmt.Errorf("bus.send_hwm must be at least 1"))
	}
	if c.Bus.ReceiveHWM < 0 {
		errs = append(errs, fmt.Errorf("bus.receive_hwm must not be negative"))
	}

	if !slices.Contains(LogLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", LogLevels))
	}
	if !slices.Contains(LogFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", LogFormats))
	}

	if c.Metrics.Listen != "" {
		if err := ValidateListenAddress(c.Metrics.Listen); err != nil {
			errs = append(errs, fmt.Errorf("metrics.listen: %w", err))
		}
	}

	return errors.Join(errs...)
}

// ValidateListenAddress checks that address is a loopback host:port.
func ValidateListenAddress(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	if port == "" {
		return fmt.Errorf("%q has no port", address)
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%q is not a loopback address", address)
	}
	return nil
}
