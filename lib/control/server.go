// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/codec"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/metrics"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/transport"
)

const (
	defaultServerPollInterval = 100 * time.Millisecond

	// How long the socket may keep trying to deliver the terminate
	// acknowledgement after Serve returns.
	defaultTerminateLinger = time.Second
)

// ErrServerClosed is returned by Serve after Close, or when Serve is
// called a second time.
var ErrServerClosed = errors.New("control: server closed")

// HandlerFunc handles every command except the reserved ones. A nil
// response is sent as an empty map. A returned error, or a panic, is
// sent to the client as {error: string} and the server keeps serving.
type HandlerFunc func(ctx context.Context, request Request) (Response, error)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Endpoint to bind. Port 0 picks an ephemeral port; read it back
	// from [Server.Endpoint].
	Endpoint endpoint.Endpoint

	// Name identifies the server in ping and terminate replies.
	// Defaults to "control-<uuid>".
	Name string

	// Context is the transport context to create the socket on. When
	// nil the server creates and owns one.
	Context *transport.Context

	// PollInterval bounds how long Serve waits before rechecking for
	// cancellation. Zero means 100ms.
	PollInterval time.Duration

	// TerminateLinger bounds delivery of the terminate acknowledgement.
	// Zero means one second.
	TerminateLinger time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Control
}

// Server answers control requests on a REP socket, one at a time.
type Server struct {
	name            string
	endpoint        endpoint.Endpoint
	pollInterval    time.Duration
	terminateLinger time.Duration
	logger          *slog.Logger
	metrics         *metrics.Control
	release         func() error

	// socket is used only by the goroutine running Serve, or by Close
	// when Serve never ran.
	socket *zmq4.Socket

	mu      sync.Mutex
	serving bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewServer binds the server socket. Requests queue in the transport
// until Serve runs.
func NewServer(config ServerConfig) (*Server, error) {
	if err := config.Endpoint.RequireLoopback(); err != nil {
		return nil, fmt.Errorf("control: server: %w", err)
	}
	name := config.Name
	if name == "" {
		name = "control-" + uuid.NewString()
	}
	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultServerPollInterval
	}
	terminateLinger := config.TerminateLinger
	if terminateLinger <= 0 {
		terminateLinger = defaultTerminateLinger
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	transportContext, release, err := transport.Acquire(config.Context)
	if err != nil {
		return nil, err
	}
	socket, err := transportContext.NewSocket(zmq4.REP)
	if err != nil {
		release()
		return nil, err
	}
	bound, err := transport.Bind(socket, config.Endpoint)
	if err != nil {
		socket.Close()
		release()
		return nil, err
	}

	return &Server{
		name:            name,
		endpoint:        bound,
		pollInterval:    pollInterval,
		terminateLinger: terminateLinger,
		logger:          logger.With("server", name),
		metrics:         config.Metrics,
		release:         release,
		socket:          socket,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}, nil
}

// Name returns the identity reported in ping replies.
func (s *Server) Name() string { return s.name }

// Endpoint returns the bound endpoint, with an ephemeral port resolved.
func (s *Server) Endpoint() endpoint.Endpoint { return s.endpoint }

// Serve handles requests until a terminate command arrives, ctx is
// cancelled, or Close is called, and returns nil in each case. The
// socket is closed when Serve returns, so Serve runs at most once.
func (s *Server) Serve(ctx context.Context, handler HandlerFunc) error {
	s.mu.Lock()
	if s.closed || s.serving {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.serving = true
	s.mu.Unlock()

	defer close(s.done)
	defer s.shutdown()

	s.logger.Info("control server serving", "endpoint", s.endpoint.String())

	poller := zmq4.NewPoller()
	poller.Add(s.socket, zmq4.POLLIN)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("control server stopping", "reason", "context cancelled")
			return nil
		case <-s.stop:
			s.logger.Info("control server stopping", "reason", "closed")
			return nil
		default:
		}

		polled, err := poller.Poll(s.pollInterval)
		if err != nil {
			if transport.IsInterrupted(err) {
				continue
			}
			if transport.IsTerminated(err) {
				return nil
			}
			return &transport.Error{Op: "poll", Endpoint: s.endpoint, Err: err}
		}
		if len(polled) == 0 {
			continue
		}

		frames, err := s.socket.RecvMessageBytes(0)
		if err != nil {
			if transport.IsInterrupted(err) {
				continue
			}
			if transport.IsTerminated(err) {
				return nil
			}
			return &transport.Error{Op: "receive", Endpoint: s.endpoint, Err: err}
		}

		response, terminate := s.handle(ctx, handler, frames)
		if err := s.reply(response, terminate); err != nil {
			if transport.IsTerminated(err) {
				return nil
			}
			return err
		}
		if terminate {
			s.logger.Info("control server stopping", "reason", "terminate command")
			return nil
		}
	}
}

// ServeInBackground runs Serve on its own goroutine. The returned
// channel receives Serve's result and is then closed.
func (s *Server) ServeInBackground(ctx context.Context, handler HandlerFunc) <-chan error {
	result := make(chan error, 1)
	go func() {
		defer close(result)
		result <- s.Serve(ctx, handler)
	}()
	return result
}

// Done is closed once the socket is closed, by Serve returning or by
// Close.
func (s *Server) Done() <-chan struct{} { return s.done }

// Close stops a running Serve and waits for it to return, or closes
// the socket directly if Serve never ran. Safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	serving := s.serving
	s.mu.Unlock()

	close(s.stop)
	if serving {
		<-s.done
		return nil
	}
	s.shutdown()
	close(s.done)
	return nil
}

func (s *Server) shutdown() {
	if err := s.socket.Close(); err != nil {
		s.logger.Warn("closing control socket failed", "error", err)
	}
	if err := s.release(); err != nil {
		s.logger.Warn("releasing transport context failed", "error", err)
	}
}

// handle turns one received request into its response. The second
// result is true when the server should stop after replying.
func (s *Server) handle(ctx context.Context, handler HandlerFunc, frames [][]byte) (Response, bool) {
	if len(frames) != 1 {
		s.logger.Warn("malformed control request", "frames", len(frames))
		s.metrics.ServerRequest("", metrics.OutcomeProtocol)
		return Response{KeyError: fmt.Sprintf("protocol error: expected one frame, got %d", len(frames))}, false
	}
	var request Request
	if err := codec.Unmarshal(frames[0], &request); err != nil {
		s.logger.Warn("undecodable control request", "error", err)
		s.metrics.ServerRequest("", metrics.OutcomeProtocol)
		return Response{KeyError: fmt.Sprintf("protocol error: decoding request: %v", err)}, false
	}
	if request.Cmd == "" {
		s.logger.Warn("control request without cmd")
		s.metrics.ServerRequest("", metrics.OutcomeProtocol)
		return Response{KeyError: "protocol error: request has no cmd"}, false
	}

	switch request.Cmd {
	case CommandPing:
		s.metrics.ServerRequest(request.Cmd, metrics.OutcomeOK)
		return Response{KeyReply: ReplyPong, KeySource: s.name}, false
	case CommandTerminate:
		s.metrics.ServerRequest(request.Cmd, metrics.OutcomeOK)
		return Response{KeyReply: ReplyTerminateAck, KeySource: s.name}, true
	}

	response, err := s.invoke(ctx, handler, request)
	if err != nil {
		s.logger.Error("control handler failed", "command", request.Cmd, "error", err)
		s.metrics.ServerRequest(request.Cmd, metrics.OutcomeError)
		message := err.Error()
		if message == "" {
			message = ErrHandler.Error()
		}
		return Response{KeyError: message}, false
	}
	s.metrics.ServerRequest(request.Cmd, metrics.OutcomeOK)
	if response == nil {
		response = Response{}
	}
	return response, false
}

func (s *Server) invoke(ctx context.Context, handler HandlerFunc, request Request) (response Response, err error) {
	if handler == nil {
		return nil, fmt.Errorf("%w: no handler for command %q", ErrHandler, request.Cmd)
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			response = nil
			err = fmt.Errorf("%w: command %q panicked: %v", ErrHandler, request.Cmd, recovered)
		}
	}()
	return handler(ctx, request)
}

// reply encodes and sends response. A response that cannot be encoded
// is replaced by an error so the client still gets its one reply.
func (s *Server) reply(response Response, terminate bool) error {
	encoded, err := codec.Marshal(response)
	if err != nil {
		s.logger.Error("encoding control response failed", "error", err)
		encoded, err = codec.Marshal(Response{KeyError: fmt.Sprintf("protocol error: encoding response: %v", err)})
		if err != nil {
			return fmt.Errorf("control: encoding error response: %w", err)
		}
	}
	if terminate {
		if err := s.socket.SetLinger(s.terminateLinger); err != nil {
			s.logger.Warn("raising linger for terminate acknowledgement failed", "error", err)
		}
	}
	if _, err := s.socket.SendBytes(encoded, 0); err != nil {
		return &transport.Error{Op: "send", Endpoint: s.endpoint, Err: err}
	}
	return nil
}
