// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/codec"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/metrics"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/transport"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultConnectTimeout = time.Second

	// Longest single poll while waiting on a request, so context
	// cancellation is noticed promptly.
	clientPollSlice = 50 * time.Millisecond
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Endpoint of the server. Must be loopback with a concrete port.
	Endpoint endpoint.Endpoint

	// Context is the transport context to create sockets on. When nil
	// the client creates and owns one.
	Context *transport.Context

	// Timeout applies to requests made with a zero timeout.
	Timeout time.Duration

	// ConnectTimeout bounds how long a request waits for a connected
	// server before failing with a transport error.
	ConnectTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Control
}

// Client sends control requests to a Server. Requests are serialized:
// a second caller waits for the first request to finish.
type Client struct {
	endpoint       endpoint.Endpoint
	timeout        time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Control
	context        *transport.Context
	release        func() error

	mu     sync.Mutex
	socket *zmq4.Socket
	closed bool
}

// NewClient connects to the server endpoint. Connecting is
// asynchronous; an absent server shows up as a transport error on the
// first request.
func NewClient(config ClientConfig) (*Client, error) {
	if err := config.Endpoint.RequireLoopback(); err != nil {
		return nil, fmt.Errorf("control: client: %w", err)
	}
	if config.Endpoint.IsEphemeral() {
		return nil, fmt.Errorf("control: client: endpoint %s has no port", config.Endpoint)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	transportContext, release, err := transport.Acquire(config.Context)
	if err != nil {
		return nil, err
	}
	client := &Client{
		endpoint:       config.Endpoint,
		timeout:        timeout,
		connectTimeout: connectTimeout,
		logger:         logger.With("endpoint", config.Endpoint.String()),
		metrics:        config.Metrics,
		context:        transportContext,
		release:        release,
	}
	if client.socket, err = client.openSocket(); err != nil {
		release()
		return nil, err
	}
	return client, nil
}

func (c *Client) openSocket() (*zmq4.Socket, error) {
	socket, err := c.context.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, err
	}
	// Queue nothing until a connection exists, so an absent server
	// makes the socket unwritable instead of silently buffering.
	if err := socket.SetImmediate(true); err != nil {
		socket.Close()
		return nil, &transport.Error{Op: "set immediate", Endpoint: c.endpoint, Err: err}
	}
	if err := transport.Connect(socket, c.endpoint); err != nil {
		socket.Close()
		return nil, err
	}
	return socket, nil
}

// reconnect replaces the socket. A REQ socket that sent without
// receiving cannot send again, so this runs after every abandoned
// request.
func (c *Client) reconnect() {
	if c.socket != nil {
		c.socket.Close()
		c.socket = nil
	}
	socket, err := c.openSocket()
	if err != nil {
		c.logger.Warn("control client reconnect failed", "error", err)
		return
	}
	c.socket = socket
	c.metrics.Reconnected()
	c.logger.Debug("control client reconnected")
}

// Request sends command with args and waits up to timeout for the
// reply. A zero timeout uses the configured default. Request never
// fails with a Go error: timeouts, transport failures and undecodable
// replies come back as an error Response (see [Response.Err]).
func (c *Client) Request(ctx context.Context, command string, args map[string]any, timeout time.Duration) Response {
	if timeout <= 0 {
		timeout = c.timeout
	}
	start := time.Now()
	response, outcome := c.roundTrip(ctx, Request{Cmd: command, Args: args}, timeout)
	c.metrics.ClientRequest(command, outcome, time.Since(start))
	if message, failed := response.ErrorMessage(); failed && outcome != metrics.OutcomeError {
		c.logger.Warn("control request failed", "command", command, "outcome", outcome, "error", message)
	}
	return response
}

// Ping sends the reserved liveness command.
func (c *Client) Ping(ctx context.Context, timeout time.Duration) Response {
	return c.Request(ctx, CommandPing, nil, timeout)
}

// Terminate asks the server to acknowledge and shut down.
func (c *Client) Terminate(ctx context.Context, timeout time.Duration) Response {
	return c.Request(ctx, CommandTerminate, nil, timeout)
}

func (c *Client) roundTrip(ctx context.Context, request Request, timeout time.Duration) (Response, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errorResponse(KindTransport, "%v", ErrClientClosed), metrics.OutcomeTransport
	}
	if c.socket == nil {
		c.reconnect()
		if c.socket == nil {
			return errorResponse(KindTransport, "no socket for %s", c.endpoint), metrics.OutcomeTransport
		}
	}

	encoded, err := codec.Marshal(request)
	if err != nil {
		return errorResponse(KindProtocol, "encoding request: %v", err), metrics.OutcomeProtocol
	}

	deadline := time.Now().Add(timeout)
	connectDeadline := time.Now().Add(min(c.connectTimeout, timeout))
	writable, err := c.wait(ctx, zmq4.POLLOUT, connectDeadline)
	if err != nil {
		c.reconnect()
		return errorResponse(KindTransport, "waiting for %s: %v", c.endpoint, err), metrics.OutcomeTransport
	}
	if !writable {
		if ctx.Err() != nil {
			return errorResponse(KindTimeout, "request %q abandoned: %v", request.Cmd, ctx.Err()), metrics.OutcomeTimeout
		}
		return errorResponse(KindTransport, "no server reachable at %s within %v", c.endpoint, min(c.connectTimeout, timeout)), metrics.OutcomeTransport
	}

	if _, err := c.socket.SendBytes(encoded, zmq4.DONTWAIT); err != nil {
		c.reconnect()
		return errorResponse(KindTransport, "sending %q to %s: %v", request.Cmd, c.endpoint, err), metrics.OutcomeTransport
	}

	readable, err := c.wait(ctx, zmq4.POLLIN, deadline)
	if err != nil {
		c.reconnect()
		return errorResponse(KindTransport, "waiting for reply from %s: %v", c.endpoint, err), metrics.OutcomeTransport
	}
	if !readable {
		c.reconnect()
		if ctx.Err() != nil {
			return errorResponse(KindTimeout, "request %q abandoned: %v", request.Cmd, ctx.Err()), metrics.OutcomeTimeout
		}
		return errorResponse(KindTimeout, "no reply to %q within %v", request.Cmd, timeout), metrics.OutcomeTimeout
	}

	frames, err := c.socket.RecvMessageBytes(0)
	if err != nil {
		c.reconnect()
		return errorResponse(KindTransport, "receiving reply from %s: %v", c.endpoint, err), metrics.OutcomeTransport
	}
	if len(frames) != 1 {
		return errorResponse(KindProtocol, "reply has %d frames, want 1", len(frames)), metrics.OutcomeProtocol
	}
	var response Response
	if err := codec.Unmarshal(frames[0], &response); err != nil {
		return errorResponse(KindProtocol, "decoding reply: %v", err), metrics.OutcomeProtocol
	}
	if response == nil {
		response = Response{}
	}
	if _, failed := response.ErrorMessage(); failed {
		return response, metrics.OutcomeError
	}
	return response, metrics.OutcomeOK
}

// wait polls the socket for events until deadline or ctx ends. It
// reports false without error when neither the events nor an error
// occurred in time.
func (c *Client) wait(ctx context.Context, events zmq4.State, deadline time.Time) (bool, error) {
	poller := zmq4.NewPoller()
	poller.Add(c.socket, events)
	for {
		if ctx.Err() != nil {
			return false, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		polled, err := poller.Poll(min(remaining, clientPollSlice))
		if err != nil {
			if transport.IsInterrupted(err) {
				continue
			}
			return false, err
		}
		for _, item := range polled {
			if item.Events&events != 0 {
				return true, nil
			}
		}
	}
}

// Close releases the socket and any owned transport context. Safe to
// call more than once; requests after Close fail with a transport
// error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.socket != nil {
		c.socket.Close()
		c.socket = nil
	}
	return c.release()
}
