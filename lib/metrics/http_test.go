// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestServeListenerExposesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := NewBus(registry)
	bus.Published("telemetry")

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeListener(ctx, listener, registry, nil) }()

	client := &http.Client{Timeout: 5 * time.Second}
	response, err := client.Get("http://" + listener.Addr().String() + "/metrics")
	if err != nil {
		cancel()
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	response.Body.Close()

	if !strings.Contains(string(body), `png_ipc_bus_published_total{topic="telemetry"} 1`) {
		t.Errorf("metrics body lacks published counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("ServeListener = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ServeListener did not return after cancel")
	}
}

func TestServeReportsBusyAddress(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	err = Serve(context.Background(), listener.Addr().String(), prometheus.NewRegistry(), nil)
	if err == nil {
		t.Fatal("Serve on a busy address succeeded")
	}
}
