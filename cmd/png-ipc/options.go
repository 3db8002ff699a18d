// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/config"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/process"
)

// commonOptions are the flags every command accepts.
type commonOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// addFlags registers the common flags. defaultLevel is the log level
// used when neither the flag nor a config file sets one.
func (o *commonOptions) addFlags(flagSet *pflag.FlagSet, defaultLevel string) {
	flagSet.StringVar(&o.configPath, "config", "", "path to config file (default: $"+config.EnvVar+", then built-in defaults)")
	flagSet.StringVar(&o.logLevel, "log-level", defaultLevel, "log level: debug, info, warn, error (default: from config)")
	flagSet.StringVar(&o.logFormat, "log-format", "", "log format: text, json, auto (default: from config)")
}

// load resolves the configuration and builds the logger, writing to
// stderr.
func (o *commonOptions) load(stderr *os.File) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	logger, err := process.NewLogger(stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// endpointOr parses flagValue, or returns fallback when it is empty.
func endpointOr(flagName, flagValue string, fallback endpoint.Endpoint) (endpoint.Endpoint, error) {
	if flagValue == "" {
		return fallback, nil
	}
	parsed, err := endpoint.Parse(flagValue)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	if err := parsed.RequireLoopback(); err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("--%s: %w", flagName, err)
	}
	return parsed, nil
}
