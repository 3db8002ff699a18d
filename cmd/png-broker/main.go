// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// png-broker runs the telemetry broker: publishers connect to the
// frontend, subscribers to the backend, and every message is forwarded
// unchanged until SIGINT or SIGTERM.
//
// Configuration comes from --config, else PNG_IPC_CONFIG, else built-in
// defaults. Flags override the loaded file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/bus"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/metrics"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/process"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var options brokerOptions
	flagSet := options.flagSet()

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if options.showVersion {
		version.Print("png-broker")
		return nil
	}

	cfg, err := options.resolve(flagSet)
	if err != nil {
		return err
	}

	logger, err := process.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broker, err := bus.NewBroker(bus.BrokerConfig{
		Frontend: cfg.Broker.Frontend,
		Backend:  cfg.Broker.Backend,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer broker.Close()

	if cfg.Metrics.Listen != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metricsContext, cancelMetrics := context.WithCancel(ctx)
		metricsDone := make(chan struct{})
		defer func() {
			cancelMetrics()
			<-metricsDone
		}()
		go func() {
			defer close(metricsDone)
			if err := metrics.Serve(metricsContext, cfg.Metrics.Listen, registry, logger); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	logger.Info("broker running",
		"version", version.Info(),
		"frontend", broker.FrontendEndpoint().String(),
		"backend", broker.BackendEndpoint().String(),
	)
	if err := broker.Run(ctx); err != nil {
		return fmt.Errorf("broker: %w", err)
	}
	logger.Info("broker stopped")
	return nil
}
