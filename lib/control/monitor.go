// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/clock"
)

// Pinger is the part of a Client the heartbeat monitor uses.
type Pinger interface {
	Ping(ctx context.Context, timeout time.Duration) Response
}

// MonitorConfig configures a heartbeat Monitor. Zero fields take the
// documented defaults.
type MonitorConfig struct {
	// Interval between pings. Default 2s.
	Interval time.Duration

	// Timeout for each ping. Default 1s.
	Timeout time.Duration

	// GracePeriod before the first ping, while the child starts.
	// Default 0.
	GracePeriod time.Duration

	// FailureThreshold is the number of consecutive failed pings that
	// marks the server unhealthy. Default 3.
	FailureThreshold int

	// OnUnhealthy runs once when the threshold is reached, with the
	// last failure. It runs on the monitor goroutine.
	OnUnhealthy func(failures int, err error)

	// OnRecovered runs when a ping succeeds after OnUnhealthy fired.
	OnRecovered func()

	Clock  clock.Clock
	Logger *slog.Logger
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Monitor pings a control server periodically and reports when it
// stops answering. Stop it with Stop; it also stops when the context
// passed to StartMonitor ends.
type Monitor struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu                  sync.Mutex
	healthy             bool
	consecutiveFailures int
	lastErr             error
}

// StartMonitor begins heartbeat monitoring on a new goroutine.
func StartMonitor(ctx context.Context, pinger Pinger, config MonitorConfig) *Monitor {
	config = config.withDefaults()
	monitorContext, cancel := context.WithCancel(ctx)
	monitor := &Monitor{
		cancel:  cancel,
		done:    make(chan struct{}),
		healthy: true,
	}
	go monitor.run(monitorContext, pinger, config)
	return monitor
}

// Stop ends monitoring and waits for the goroutine to exit.
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
}

// Healthy reports whether the failure threshold has not been reached
// since the last successful ping.
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// ConsecutiveFailures returns the current failure streak and the most
// recent failure.
func (m *Monitor) ConsecutiveFailures() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures, m.lastErr
}

func (m *Monitor) run(ctx context.Context, pinger Pinger, config MonitorConfig) {
	defer close(m.done)

	config.Logger.Info("heartbeat monitor started",
		"interval", config.Interval,
		"timeout", config.Timeout,
		"grace_period", config.GracePeriod,
		"failure_threshold", config.FailureThreshold,
	)

	if config.GracePeriod > 0 {
		select {
		case <-ctx.Done():
			return
		case <-config.Clock.After(config.GracePeriod):
		}
	}

	ticker := config.Clock.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := probe(ctx, pinger, config.Timeout)
		if ctx.Err() != nil {
			return
		}
		m.record(err, config)
	}
}

func probe(ctx context.Context, pinger Pinger, timeout time.Duration) error {
	response := pinger.Ping(ctx, timeout)
	if err := response.Err(); err != nil {
		return err
	}
	if reply := response.Reply(); reply != ReplyPong {
		return fmt.Errorf("%w: unexpected ping reply %q", ErrProtocol, reply)
	}
	return nil
}

func (m *Monitor) record(err error, config MonitorConfig) {
	m.mu.Lock()
	if err == nil {
		previous := m.consecutiveFailures
		recovered := !m.healthy
		m.consecutiveFailures = 0
		m.lastErr = nil
		m.healthy = true
		m.mu.Unlock()

		if previous > 0 {
			config.Logger.Info("heartbeat recovered", "previous_failures", previous)
		}
		if recovered && config.OnRecovered != nil {
			config.OnRecovered()
		}
		return
	}

	m.consecutiveFailures++
	m.lastErr = err
	failures := m.consecutiveFailures
	becameUnhealthy := m.healthy && failures >= config.FailureThreshold
	if becameUnhealthy {
		m.healthy = false
	}
	m.mu.Unlock()

	config.Logger.Warn("heartbeat failed",
		"consecutive_failures", failures,
		"failure_threshold", config.FailureThreshold,
		"error", err,
	)
	if becameUnhealthy {
		config.Logger.Error("control server unresponsive", "consecutive_failures", failures, "error", err)
		if config.OnUnhealthy != nil {
			config.OnUnhealthy(failures, err)
		}
	}
}
