// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorsAreNoOps(t *testing.T) {
	var bus *Bus
	bus.Published("telemetry")
	bus.Dropped("telemetry", ReasonReplaced)
	bus.Delivered("telemetry")
	bus.HandlerFailed("telemetry")
	bus.Discarded(ReasonUnrouted)

	var control *Control
	control.ServerRequest("status", OutcomeOK)
	control.ClientRequest("status", OutcomeOK, time.Millisecond)
	control.Reconnected()
}

func TestBusCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := NewBus(registry)

	bus.Published("telemetry")
	bus.Published("telemetry")
	bus.Dropped("telemetry", ReasonReplaced)
	bus.Delivered("session")
	bus.HandlerFailed("session")
	bus.Discarded(ReasonMalformed)

	if got := promtest.ToFloat64(bus.published.WithLabelValues("telemetry")); got != 2 {
		t.Errorf("published = %v, want 2", got)
	}
	if got := promtest.ToFloat64(bus.dropped.WithLabelValues("telemetry", ReasonReplaced)); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := promtest.ToFloat64(bus.handlerFailures.WithLabelValues("session")); got != 1 {
		t.Errorf("handler failures = %v, want 1", got)
	}

	count, err := promtest.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if count != 5 {
		t.Errorf("gathered %d series, want 5", count)
	}
}

func TestControlCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	control := NewControl(registry)

	control.ClientRequest("status", OutcomeOK, 2*time.Millisecond)
	control.ClientRequest("status", OutcomeTimeout, time.Second)
	control.ServerRequest("__ping__", OutcomeOK)
	control.Reconnected()

	if got := promtest.ToFloat64(control.requests.WithLabelValues("client", "status", OutcomeTimeout)); got != 1 {
		t.Errorf("timeouts = %v, want 1", got)
	}
	if got := promtest.ToFloat64(control.reconnects); got != 1 {
		t.Errorf("reconnects = %v, want 1", got)
	}
	if got := promtest.CollectAndCount(control.latency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

func TestUnregisteredCollectorsStillCount(t *testing.T) {
	bus := NewBus(nil)
	bus.Delivered("telemetry")
	if got := promtest.ToFloat64(bus.delivered.WithLabelValues("telemetry")); got != 1 {
		t.Errorf("delivered = %v, want 1", got)
	}
}
