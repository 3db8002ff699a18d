// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/metrics"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/transport"
)

const (
	// DefaultPollInterval bounds how long the router waits for traffic
	// before rechecking for a stop request.
	DefaultPollInterval = 100 * time.Millisecond

	defaultMaxBatch = 256
)

var (
	// ErrRouterRunning is returned by Register and Start once the
	// router has started.
	ErrRouterRunning = errors.New("bus: router is running")

	// ErrRouterStopped is returned by Register and Start after Stop.
	ErrRouterStopped = errors.New("bus: router is stopped")
)

// Handler processes one message. Errors and panics are logged and
// counted; they never stop the router.
type Handler func(ctx context.Context, message Message) error

// State is a router lifecycle state. Transitions only move forward:
// Created → Registered → Running → Stopped, where Registered and
// Running may be skipped.
type State int32

const (
	StateCreated State = iota
	StateRegistered
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRegistered:
		return "registered"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// RouterConfig configures a Router.
type RouterConfig struct {
	// Endpoint is the broker backend.
	Endpoint endpoint.Endpoint

	// Context is the transport context to create the socket on. When
	// nil the router creates and owns one.
	Context *transport.Context

	// PollInterval is the longest the loop blocks without checking for
	// a stop request. Zero means DefaultPollInterval.
	PollInterval time.Duration

	// ReceiveHWM is the transport receive queue depth. Zero keeps the
	// transport default.
	ReceiveHWM int

	// MaxBatch caps how many messages are drained per wakeup before
	// handlers run. Zero means 256.
	MaxBatch int

	Logger  *slog.Logger
	Metrics *metrics.Bus
}

// Router subscribes to the broker backend and dispatches each message
// to the handler registered for its exact topic.
//
// Handlers are registered before Start and run one at a time on the
// loop goroutine, in arrival order of the newest message per topic.
// A handler that blocks delays delivery of every topic; meanwhile
// messages accumulate and are coalesced when the handler returns.
type Router struct {
	config  RouterConfig
	logger  *slog.Logger
	metrics *metrics.Bus
	context *transport.Context
	release func() error

	mu     sync.Mutex
	state  State
	routes map[string]Handler

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRouter creates a router. No socket is opened until Start.
func NewRouter(config RouterConfig) (*Router, error) {
	if err := config.Endpoint.RequireLoopback(); err != nil {
		return nil, fmt.Errorf("bus: router: %w", err)
	}
	if config.Endpoint.IsEphemeral() {
		return nil, fmt.Errorf("bus: router: endpoint %s has no port", config.Endpoint)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.MaxBatch <= 0 {
		config.MaxBatch = defaultMaxBatch
	}

	transportContext, release, err := transport.Acquire(config.Context)
	if err != nil {
		return nil, err
	}
	return &Router{
		config:  config,
		logger:  loggerOrDiscard(config.Logger),
		metrics: config.Metrics,
		context: transportContext,
		release: release,
		routes:  make(map[string]Handler),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Register routes topic to handler. Registering the same topic again
// replaces the earlier handler.
func (r *Router) Register(topic string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("bus: nil handler for topic %q", topic)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateRunning:
		return ErrRouterRunning
	case StateStopped:
		return ErrRouterStopped
	}
	if _, exists := r.routes[topic]; exists {
		r.logger.Debug("replacing telemetry handler", "topic", topic)
	}
	r.routes[topic] = handler
	r.state = StateRegistered
	return nil
}

// Topics returns the registered topics.
func (r *Router) Topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		topics = append(topics, topic)
	}
	return topics
}

// State returns the current lifecycle state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Done is closed once the router has stopped and released its socket.
func (r *Router) Done() <-chan struct{} { return r.done }

// Stop requests shutdown and returns immediately. The loop notices
// within one poll interval, or after the handler currently running
// returns. Messages still queued are discarded. Safe to call more than
// once and from any goroutine, including a handler.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		// Before Start nothing else will release the context.
		idle := r.state == StateCreated || r.state == StateRegistered
		if idle {
			r.state = StateStopped
		}
		r.mu.Unlock()

		close(r.stop)
		if idle {
			r.finish()
		}
	})
}

// Start runs the receive loop on the calling goroutine until Stop is
// called or ctx is cancelled, then returns nil. Errors opening the
// socket, or an unrecoverable poll failure, are returned. Callers that
// want a background loop run Start in a goroutine and wait on Done.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case StateRunning:
		r.mu.Unlock()
		return ErrRouterRunning
	case StateStopped:
		r.mu.Unlock()
		return ErrRouterStopped
	}
	r.state = StateRunning
	routes := make(map[string]Handler, len(r.routes))
	for topic, handler := range r.routes {
		routes[topic] = handler
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = StateStopped
		r.mu.Unlock()
		r.finish()
	}()

	// The socket is created on the loop goroutine and never leaves it.
	socket, err := r.openSocket(routes)
	if err != nil {
		return err
	}
	defer socket.Close()

	r.logger.Info("telemetry router running",
		"endpoint", r.config.Endpoint.String(),
		"topics", len(routes),
	)
	err = r.loop(ctx, socket, routes)
	r.logger.Info("telemetry router stopped")
	return err
}

func (r *Router) finish() {
	if err := r.release(); err != nil {
		r.logger.Warn("releasing transport context failed", "error", err)
	}
	close(r.done)
}

func (r *Router) openSocket(routes map[string]Handler) (*zmq4.Socket, error) {
	socket, err := r.context.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, err
	}
	if r.config.ReceiveHWM > 0 {
		if err := socket.SetRcvhwm(r.config.ReceiveHWM); err != nil {
			socket.Close()
			return nil, &transport.Error{Op: "set receive hwm", Endpoint: r.config.Endpoint, Err: err}
		}
	}
	for topic := range routes {
		if err := socket.SetSubscribe(topic); err != nil {
			socket.Close()
			return nil, &transport.Error{Op: "subscribe " + topic, Endpoint: r.config.Endpoint, Err: err}
		}
	}
	if err := transport.Connect(socket, r.config.Endpoint); err != nil {
		socket.Close()
		return nil, err
	}
	return socket, nil
}

func (r *Router) stopping(ctx context.Context) bool {
	select {
	case <-r.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (r *Router) loop(ctx context.Context, socket *zmq4.Socket, routes map[string]Handler) error {
	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	for !r.stopping(ctx) {
		polled, err := poller.Poll(r.config.PollInterval)
		if err != nil {
			switch {
			case transport.IsInterrupted(err):
				continue
			case transport.IsTerminated(err):
				return nil
			default:
				return &transport.Error{Op: "poll", Endpoint: r.config.Endpoint, Err: err}
			}
		}
		if len(polled) == 0 {
			continue
		}
		r.dispatch(ctx, routes, r.drain(socket))
	}
	return nil
}

// drain receives up to MaxBatch messages without blocking and keeps
// only the newest per topic, in order of first arrival.
func (r *Router) drain(socket *zmq4.Socket) []Message {
	var batch []Message
	positions := make(map[string]int)
	for received := 0; received < r.config.MaxBatch; received++ {
		frames, err := socket.RecvMessageBytes(zmq4.DONTWAIT)
		if err != nil {
			if !transport.IsAgain(err) && !transport.IsTerminated(err) {
				r.logger.Warn("telemetry receive failed", "error", err)
			}
			break
		}
		if len(frames) != 2 {
			r.logger.Warn("discarding malformed telemetry message", "frames", len(frames))
			r.metrics.Discarded(metrics.ReasonMalformed)
			continue
		}

		message := Message{Topic: string(frames[0]), Payload: frames[1]}
		if position, seen := positions[message.Topic]; seen {
			batch[position] = message
			r.metrics.Discarded(metrics.ReasonCoalesced)
			continue
		}
		positions[message.Topic] = len(batch)
		batch = append(batch, message)
	}
	return batch
}

func (r *Router) dispatch(ctx context.Context, routes map[string]Handler, batch []Message) {
	for _, message := range batch {
		if r.stopping(ctx) {
			return
		}
		handler, ok := routes[message.Topic]
		if !ok {
			r.metrics.Discarded(metrics.ReasonUnrouted)
			continue
		}
		if err := r.invoke(ctx, handler, message); err != nil {
			r.metrics.HandlerFailed(message.Topic)
			r.logger.Error("telemetry handler failed", "topic", message.Topic, "error", err)
			continue
		}
		r.metrics.Delivered(message.Topic)
	}
}

func (r *Router) invoke(ctx context.Context, handler Handler, message Message) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return handler(ctx, message)
}
