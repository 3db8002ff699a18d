// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
)

// Context wraps a ZeroMQ context with explicit, idempotent teardown.
type Context struct {
	zmq *zmq4.Context

	closeOnce sync.Once
	closeErr  error
}

// NewContext creates a fresh ZeroMQ context.
func NewContext() (*Context, error) {
	zmqContext, err := zmq4.NewContext()
	if err != nil {
		return nil, &Error{Op: "context", Err: err}
	}
	return &Context{zmq: zmqContext}, nil
}

// NewSocket creates a socket of the given type with zero linger.
func (c *Context) NewSocket(socketType zmq4.Type) (*zmq4.Socket, error) {
	socket, err := c.zmq.NewSocket(socketType)
	if err != nil {
		return nil, &Error{Op: "socket " + socketType.String(), Err: err}
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, &Error{Op: "set linger", Err: err}
	}
	return socket, nil
}

// Close terminates the context. Every socket created from it must
// already be closed: Term blocks until they are. Blocking calls on
// sockets that are still open return ETERM, which loops treat as a
// shutdown signal. Safe to call more than once.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.zmq.Term()
	})
	return c.closeErr
}

// Acquire returns shared if it is non-nil, with a release function that
// does nothing. Otherwise it creates a context owned by the caller and
// returns a release function that terminates it.
func Acquire(shared *Context) (*Context, func() error, error) {
	if shared != nil {
		return shared, func() error { return nil }, nil
	}
	owned, err := NewContext()
	if err != nil {
		return nil, nil, err
	}
	return owned, owned.Close, nil
}

// Bind binds socket to target and returns the endpoint actually bound.
// For ephemeral tcp endpoints this carries the port the kernel picked.
func Bind(socket *zmq4.Socket, target endpoint.Endpoint) (endpoint.Endpoint, error) {
	if err := enableIPv6(socket, target); err != nil {
		return endpoint.Endpoint{}, err
	}
	if err := socket.Bind(target.String()); err != nil {
		return endpoint.Endpoint{}, &Error{Op: "bind", Endpoint: target, Err: err}
	}
	if target.Kind != endpoint.TCP {
		return target, nil
	}

	last, err := socket.GetLastEndpoint()
	if err != nil {
		return endpoint.Endpoint{}, &Error{Op: "resolve bound endpoint", Endpoint: target, Err: err}
	}
	bound, err := endpoint.Parse(last)
	if err != nil {
		return endpoint.Endpoint{}, &Error{Op: "resolve bound endpoint", Endpoint: target, Err: err}
	}
	// libzmq reports the numeric address; keep the configured host so
	// "localhost" stays "localhost" in logs and ping replies.
	bound.Host = target.Host
	return bound, nil
}

// Connect connects socket to target. ZeroMQ connects asynchronously, so
// a nil error does not mean a peer is listening.
func Connect(socket *zmq4.Socket, target endpoint.Endpoint) error {
	if target.IsEphemeral() {
		return &Error{Op: "connect", Endpoint: target, Err: fmt.Errorf("cannot connect to a wildcard port")}
	}
	if err := enableIPv6(socket, target); err != nil {
		return err
	}
	if err := socket.Connect(target.String()); err != nil {
		return &Error{Op: "connect", Endpoint: target, Err: err}
	}
	return nil
}

// enableIPv6 turns on IPv6 for sockets addressed by an IPv6 literal.
// libzmq resolves tcp hosts as IPv4 only unless the option is set.
func enableIPv6(socket *zmq4.Socket, target endpoint.Endpoint) error {
	if target.Kind != endpoint.TCP {
		return nil
	}
	ip := net.ParseIP(target.Host)
	if ip == nil || ip.To4() != nil {
		return nil
	}
	if err := socket.SetIpv6(true); err != nil {
		return &Error{Op: "set ipv6", Endpoint: target, Err: err}
	}
	return nil
}
