// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/transport"
)

// ErrBrokerClosed is returned by Run after Close.
var ErrBrokerClosed = errors.New("bus: broker closed")

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// Frontend is where publishers connect. Port 0 binds an ephemeral
	// port; read the result from [Broker.FrontendEndpoint].
	Frontend endpoint.Endpoint

	// Backend is where subscribers connect.
	Backend endpoint.Endpoint

	// Context is the transport context to create sockets on. When nil
	// the broker creates and owns one.
	Context *transport.Context

	Logger *slog.Logger
}

// Broker relays every frontend message to every backend subscriber
// whose subscription prefix matches the topic. Subscriptions travel the
// other way, so publishers only send topics someone is listening for.
type Broker struct {
	logger  *slog.Logger
	context *transport.Context
	release func() error

	frontend *zmq4.Socket
	backend  *zmq4.Socket
	control  *zmq4.Socket // read by the proxy
	steer    *zmq4.Socket // written by Run's watcher goroutine

	frontendEndpoint endpoint.Endpoint
	backendEndpoint  endpoint.Endpoint

	mu      sync.Mutex
	running bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewBroker binds both broker sockets. The broker relays nothing until
// Run is called.
func NewBroker(config BrokerConfig) (*Broker, error) {
	for name, target := range map[string]endpoint.Endpoint{"frontend": config.Frontend, "backend": config.Backend} {
		if err := target.RequireLoopback(); err != nil {
			return nil, fmt.Errorf("bus: broker %s: %w", name, err)
		}
	}

	transportContext, release, err := transport.Acquire(config.Context)
	if err != nil {
		return nil, err
	}
	broker := &Broker{
		logger:  loggerOrDiscard(config.Logger),
		context: transportContext,
		release: release,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := broker.open(config); err != nil {
		broker.closeSockets()
		release()
		return nil, err
	}
	return broker, nil
}

func (b *Broker) open(config BrokerConfig) error {
	var err error
	if b.frontend, err = b.context.NewSocket(zmq4.XSUB); err != nil {
		return err
	}
	if b.frontendEndpoint, err = transport.Bind(b.frontend, config.Frontend); err != nil {
		return err
	}
	if b.backend, err = b.context.NewSocket(zmq4.XPUB); err != nil {
		return err
	}
	if b.backendEndpoint, err = transport.Bind(b.backend, config.Backend); err != nil {
		return err
	}

	// The steering pair is inproc, so it needs its own unique name per
	// broker sharing a context.
	steering := endpoint.InprocName("png-broker-steer-" + uuid.NewString())
	if b.control, err = b.context.NewSocket(zmq4.PAIR); err != nil {
		return err
	}
	if _, err = transport.Bind(b.control, steering); err != nil {
		return err
	}
	if b.steer, err = b.context.NewSocket(zmq4.PAIR); err != nil {
		return err
	}
	return transport.Connect(b.steer, steering)
}

// FrontendEndpoint returns the bound publisher-facing endpoint.
func (b *Broker) FrontendEndpoint() endpoint.Endpoint { return b.frontendEndpoint }

// BackendEndpoint returns the bound subscriber-facing endpoint.
func (b *Broker) BackendEndpoint() endpoint.Endpoint { return b.backendEndpoint }

// Run relays messages until ctx is cancelled or Close is called, and
// returns nil in both cases. Run may be called at most once.
func (b *Broker) Run(ctx context.Context) error {
	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		return ErrBrokerClosed
	case b.running:
		b.mu.Unlock()
		return errors.New("bus: broker already running")
	}
	b.running = true
	b.mu.Unlock()
	defer close(b.done)

	proxyDone := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-ctx.Done():
		case <-b.stop:
		case <-proxyDone:
			return
		}
		if _, err := b.steer.Send("TERMINATE", 0); err != nil {
			b.logger.Warn("stopping broker proxy failed", "error", err)
		}
	}()

	b.logger.Info("telemetry broker running",
		"frontend", b.frontendEndpoint.String(),
		"backend", b.backendEndpoint.String(),
	)
	err := zmq4.ProxySteerable(b.frontend, b.backend, nil, b.control)
	close(proxyDone)
	<-watcherDone

	if err != nil && !transport.IsTerminated(err) {
		return &transport.Error{Op: "proxy", Endpoint: b.frontendEndpoint, Err: err}
	}
	b.logger.Info("telemetry broker stopped")
	return nil
}

// Close stops a running proxy, closes the sockets, and releases an
// owned transport context. Safe to call more than once.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	running := b.running
	b.mu.Unlock()

	close(b.stop)
	if running {
		<-b.done
	}
	b.closeSockets()
	return b.release()
}

func (b *Broker) closeSockets() {
	for _, socket := range []*zmq4.Socket{b.steer, b.control, b.backend, b.frontend} {
		if socket != nil {
			socket.Close()
		}
	}
}
