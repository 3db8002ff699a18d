// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/testutil"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testTimeout = 5 * time.Second

// startBroker runs a broker on ephemeral loopback ports until the test
// ends.
func startBroker(t *testing.T, shared *transport.Context) *Broker {
	t.Helper()
	broker, err := NewBroker(BrokerConfig{
		Frontend: endpoint.Loopback(0),
		Backend:  endpoint.Loopback(0),
		Context:  shared,
	})
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	result := make(chan error, 1)
	go func() { result <- broker.Run(context.Background()) }()
	t.Cleanup(func() {
		if err := broker.Close(); err != nil {
			t.Errorf("broker Close: %v", err)
		}
		if err := testutil.RequireReceive(t, result, testTimeout, "broker Run to return"); err != nil {
			t.Errorf("broker Run: %v", err)
		}
	})
	return broker
}

func newPublisher(t *testing.T, broker *Broker, shared *transport.Context) *Publisher {
	t.Helper()
	publisher, err := NewPublisher(PublisherConfig{
		Endpoint: broker.FrontendEndpoint(),
		Context:  shared,
	})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() {
		if err := publisher.Close(); err != nil {
			t.Errorf("publisher Close: %v", err)
		}
	})
	return publisher
}

func newRouter(t *testing.T, broker *Broker, shared *transport.Context) *Router {
	t.Helper()
	router, err := NewRouter(RouterConfig{
		Endpoint:     broker.BackendEndpoint(),
		Context:      shared,
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

// readiness is a topic the router acknowledges by closing a channel.
type readiness struct {
	topic   string
	arrived chan struct{}
}

// runRouter starts router in the background and stops it when the test
// ends. A readiness topic is registered so awaitSubscribed can detect
// when the subscription has reached the broker.
func runRouter(t *testing.T, router *Router) readiness {
	t.Helper()
	ready := readiness{topic: testutil.UniqueID("ready"), arrived: make(chan struct{})}
	var once sync.Once
	if err := router.Register(ready.topic, func(context.Context, Message) error {
		once.Do(func() { close(ready.arrived) })
		return nil
	}); err != nil {
		t.Fatalf("Register(%s): %v", ready.topic, err)
	}

	result := make(chan error, 1)
	go func() { result <- router.Start(context.Background()) }()
	t.Cleanup(func() {
		router.Stop()
		testutil.RequireClosed(t, router.Done(), testTimeout, "router to stop")
		if err := testutil.RequireReceive(t, result, testTimeout, "router Start to return"); err != nil {
			t.Errorf("router Start: %v", err)
		}
	})
	return ready
}

// awaitSubscribed publishes on the readiness topic until the router
// sees it. Subscriptions for every registered topic are sent together,
// so once one arrives the others are in place as well.
func awaitSubscribed(t *testing.T, publisher *Publisher, ready readiness) {
	t.Helper()
	deadline := time.After(testTimeout)
	for {
		publisher.Publish(ready.topic, nil)
		select {
		case <-ready.arrived:
			return
		case <-deadline:
			t.Fatalf("subscription %s never became active", ready.topic)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// recorder collects decoded values delivered to a handler.
type recorder struct {
	mu     sync.Mutex
	values []int64
}

func (r *recorder) handle(_ context.Context, message Message) error {
	var payload struct {
		Value int64 `cbor:"value"`
	}
	if err := message.Decode(&payload); err != nil {
		return err
	}
	r.mu.Lock()
	r.values = append(r.values, payload.Value)
	r.mu.Unlock()
	return nil
}

func (r *recorder) snapshot() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.values...)
}

func (r *recorder) last() (int64, bool) {
	values := r.snapshot()
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}
