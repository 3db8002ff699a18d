// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/config"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
)

// brokerOptions holds the command-line flags.
type brokerOptions struct {
	configPath    string
	frontend      string
	backend       string
	metricsListen string
	logLevel      string
	logFormat     string
	showVersion   bool
}

func (o *brokerOptions) flagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("png-broker", pflag.ContinueOnError)
	flagSet.StringVar(&o.configPath, "config", "", "path to config file (default: $"+config.EnvVar+", then built-in defaults)")
	flagSet.StringVar(&o.frontend, "frontend", "", "endpoint publishers connect to (e.g. tcp://127.0.0.1:5555)")
	flagSet.StringVar(&o.backend, "backend", "", "endpoint subscribers connect to (e.g. tcp://127.0.0.1:5556)")
	flagSet.StringVar(&o.metricsListen, "metrics-listen", "", "loopback host:port serving /metrics")
	flagSet.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&o.logFormat, "log-format", "", "log format: text, json, auto")
	flagSet.BoolVar(&o.showVersion, "version", false, "print version information and exit")
	flagSet.SetOutput(os.Stderr)
	return flagSet
}

// resolve loads the configuration and applies the flags the user set.
func (o *brokerOptions) resolve(flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, err
	}

	if flagSet.Changed("frontend") {
		if cfg.Broker.Frontend, err = endpoint.Parse(o.frontend); err != nil {
			return nil, fmt.Errorf("--frontend: %w", err)
		}
	}
	if flagSet.Changed("backend") {
		if cfg.Broker.Backend, err = endpoint.Parse(o.backend); err != nil {
			return nil, fmt.Errorf("--backend: %w", err)
		}
	}
	if flagSet.Changed("metrics-listen") {
		cfg.Metrics.Listen = o.metricsListen
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Logging.Format = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
