// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/clock"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/testutil"
)

// scriptedPinger answers with whatever response is currently set and
// reports each call on calls.
type scriptedPinger struct {
	mu       sync.Mutex
	response Response
	calls    chan struct{}
}

func newScriptedPinger(response Response) *scriptedPinger {
	return &scriptedPinger{response: response, calls: make(chan struct{}, 16)}
}

func (p *scriptedPinger) set(response Response) {
	p.mu.Lock()
	p.response = response
	p.mu.Unlock()
}

func (p *scriptedPinger) Ping(context.Context, time.Duration) Response {
	p.mu.Lock()
	response := p.response
	p.mu.Unlock()
	p.calls <- struct{}{}
	return response
}

var (
	pongResponse    = Response{KeyReply: ReplyPong, KeySource: "capture"}
	timeoutResponse = errorResponse(KindTimeout, "no reply")
)

func TestMonitorThresholdAndRecovery(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pinger := newScriptedPinger(timeoutResponse)
	unhealthy := make(chan error, 1)
	recovered := make(chan struct{}, 1)

	monitor := StartMonitor(context.Background(), pinger, MonitorConfig{
		Interval:         time.Second,
		FailureThreshold: 2,
		Clock:            fake,
		OnUnhealthy:      func(_ int, err error) { unhealthy <- err },
		OnRecovered:      func() { recovered <- struct{}{} },
	})
	defer monitor.Stop()
	fake.WaitForTimers(1)

	tick := func() {
		t.Helper()
		fake.Advance(time.Second)
		testutil.RequireReceive(t, pinger.calls, testTimeout, "ping after tick")
	}

	tick()
	testutil.Eventually(t, func() bool {
		failures, _ := monitor.ConsecutiveFailures()
		return failures == 1
	}, testTimeout, time.Millisecond, "first failure recorded")
	if !monitor.Healthy() {
		t.Fatal("unhealthy after one failure with threshold 2")
	}

	tick()
	err := testutil.RequireReceive(t, unhealthy, testTimeout, "OnUnhealthy")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("OnUnhealthy error = %v, want ErrTimeout", err)
	}
	if monitor.Healthy() {
		t.Error("Healthy() = true after threshold")
	}

	// Further failures do not fire OnUnhealthy again.
	tick()
	testutil.Eventually(t, func() bool {
		failures, _ := monitor.ConsecutiveFailures()
		return failures == 3
	}, testTimeout, time.Millisecond, "third failure recorded")
	if len(unhealthy) != 0 {
		t.Error("OnUnhealthy fired twice")
	}

	pinger.set(pongResponse)
	tick()
	testutil.RequireReceive(t, recovered, testTimeout, "OnRecovered")
	if !monitor.Healthy() {
		t.Error("Healthy() = false after recovery")
	}
}

func TestMonitorGracePeriodDelaysFirstPing(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pinger := newScriptedPinger(pongResponse)

	monitor := StartMonitor(context.Background(), pinger, MonitorConfig{
		Interval:    time.Second,
		GracePeriod: 10 * time.Second,
		Clock:       fake,
	})
	defer monitor.Stop()

	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)
	select {
	case <-pinger.calls:
		t.Fatal("pinged during the grace period")
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(5 * time.Second)
	fake.WaitForTimers(1)
	fake.Advance(time.Second)
	testutil.RequireReceive(t, pinger.calls, testTimeout, "first ping after grace period")
}

func TestMonitorRejectsUnexpectedReply(t *testing.T) {
	err := probe(context.Background(), newScriptedPinger(Response{KeyReply: "hello"}), time.Second)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("probe = %v, want ErrProtocol", err)
	}
}

func TestMonitorStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	monitor := StartMonitor(ctx, newScriptedPinger(pongResponse), MonitorConfig{Clock: clock.Fake(time.Now())})
	cancel()
	testutil.RequireClosed(t, monitor.done, testTimeout, "monitor exit on cancel")
	monitor.Stop()
}

// liveProbe forwards to a real client and reports each result.
type liveProbe struct {
	client  *Client
	results chan error
}

func (p liveProbe) Ping(ctx context.Context, timeout time.Duration) Response {
	response := p.client.Ping(ctx, timeout)
	p.results <- response.Err()
	return response
}

func TestMonitorAgainstLiveServer(t *testing.T) {
	server, _ := startServer(t, statusHandler)
	probeClient := liveProbe{client: newClient(t, server.Endpoint(), 0), results: make(chan error, 4)}
	fake := clock.Fake(time.Now())

	monitor := StartMonitor(context.Background(), probeClient, MonitorConfig{Interval: time.Second, Clock: fake})
	defer monitor.Stop()
	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	if err := testutil.RequireReceive(t, probeClient.results, testTimeout, "heartbeat against live server"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !monitor.Healthy() {
		t.Error("monitor unhealthy against a live server")
	}
}
