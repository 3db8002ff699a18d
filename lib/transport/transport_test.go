// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/testutil"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	context, err := NewContext()
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return context
}

func TestBindResolvesEphemeralPort(t *testing.T) {
	context := newTestContext(t)
	defer context.Close()

	socket, err := context.NewSocket(zmq4.REP)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer socket.Close()

	bound, err := Bind(socket, endpoint.Loopback(0))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if bound.Port == 0 {
		t.Fatalf("expected a concrete port, got %s", bound)
	}
	if bound.Host != endpoint.LoopbackHost {
		t.Errorf("expected host %s, got %s", endpoint.LoopbackHost, bound.Host)
	}
}

func TestIPv6LoopbackRoundTrip(t *testing.T) {
	testutil.SkipWithoutIPv6Loopback(t)
	context := newTestContext(t)
	defer context.Close()

	server, err := context.NewSocket(zmq4.PAIR)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer server.Close()
	bound, err := Bind(server, endpoint.Endpoint{Host: "::1", Kind: endpoint.TCP})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if bound.Host != "::1" || bound.Port == 0 {
		t.Fatalf("bound endpoint = %s", bound)
	}
	if got := bound.String(); got != fmt.Sprintf("tcp://[::1]:%d", bound.Port) {
		t.Errorf("bound.String() = %q", got)
	}

	client, err := context.NewSocket(zmq4.PAIR)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer client.Close()
	if err := Connect(client, bound); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := client.Send("sector", 0); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := server.SetRcvtimeo(5 * time.Second); err != nil {
		t.Fatalf("SetRcvtimeo: %v", err)
	}
	got, err := server.Recv(0)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got != "sector" {
		t.Errorf("received %q, want %q", got, "sector")
	}
}

func TestBindConflictIsTransportError(t *testing.T) {
	context := newTestContext(t)
	defer context.Close()

	first, err := context.NewSocket(zmq4.REP)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer first.Close()
	bound, err := Bind(first, endpoint.Loopback(0))
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	second, err := context.NewSocket(zmq4.REP)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer second.Close()

	_, err = Bind(second, bound)
	var transportError *Error
	if !errors.As(err, &transportError) {
		t.Fatalf("expected *transport.Error, got %T (%v)", err, err)
	}
	if transportError.Op != "bind" || transportError.Endpoint != bound {
		t.Errorf("unexpected error fields: %+v", transportError)
	}
}

func TestConnectRejectsWildcard(t *testing.T) {
	context := newTestContext(t)
	defer context.Close()

	socket, err := context.NewSocket(zmq4.REQ)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer socket.Close()

	if err := Connect(socket, endpoint.Loopback(0)); err == nil {
		t.Fatal("expected connect to a wildcard port to fail")
	}
}

func TestIsAgainOnEmptyNonBlockingReceive(t *testing.T) {
	context := newTestContext(t)
	defer context.Close()

	socket, err := context.NewSocket(zmq4.PULL)
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	defer socket.Close()

	_, err = socket.RecvBytes(zmq4.DONTWAIT)
	if !IsAgain(err) {
		t.Fatalf("expected EAGAIN, got %v", err)
	}
	if IsTerminated(err) || IsInterrupted(err) {
		t.Errorf("EAGAIN misclassified: %v", err)
	}
	if IsAgain(nil) {
		t.Error("IsAgain(nil) = true")
	}
}

func TestAcquire(t *testing.T) {
	shared := newTestContext(t)
	defer shared.Close()

	got, release, err := Acquire(shared)
	if err != nil {
		t.Fatalf("Acquire(shared): %v", err)
	}
	if got != shared {
		t.Error("Acquire(shared) returned a different context")
	}
	if err := release(); err != nil {
		t.Errorf("release of shared context: %v", err)
	}

	owned, release, err := Acquire(nil)
	if err != nil {
		t.Fatalf("Acquire(nil): %v", err)
	}
	if owned == nil || owned == shared {
		t.Fatal("Acquire(nil) did not create a new context")
	}
	if err := release(); err != nil {
		t.Errorf("release of owned context: %v", err)
	}
	// Close is idempotent.
	if err := owned.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
