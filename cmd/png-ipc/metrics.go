// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/config"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/metrics"
)

const metricsListenUsage = "loopback host:port serving /metrics (default: metrics.listen from config)"

// metricsListenOr validates a --metrics-listen value, or returns the
// configured address when the flag is empty.
func metricsListenOr(flagValue, configured string) (string, error) {
	if flagValue == "" {
		return configured, nil
	}
	if err := config.ValidateListenAddress(flagValue); err != nil {
		return "", fmt.Errorf("--metrics-listen: %w", err)
	}
	return flagValue, nil
}

// startMetrics serves a fresh registry on listen until stop is called.
// With an empty listen address metrics are off: the registry is nil
// and stop does nothing.
func startMetrics(ctx context.Context, listen string, logger *slog.Logger) (registry *prometheus.Registry, stop func()) {
	if listen == "" {
		return nil, func() {}
	}
	registry = prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := metrics.Serve(ctx, listen, registry, logger); err != nil {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	return registry, func() {
		cancel()
		<-done
	}
}

// busMetrics registers bus collectors on registry, or returns nil when
// metrics are off.
func busMetrics(registry *prometheus.Registry) *metrics.Bus {
	if registry == nil {
		return nil
	}
	return metrics.NewBus(registry)
}

// controlMetrics registers control channel collectors on registry, or
// returns nil when metrics are off.
func controlMetrics(registry *prometheus.Registry) *metrics.Control {
	if registry == nil {
		return nil
	}
	return metrics.NewControl(registry)
}
