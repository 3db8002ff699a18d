// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package endpoint describes the addresses IPC sockets bind and connect
// to. An Endpoint renders to the ZeroMQ address syntax
// ("tcp://127.0.0.1:5555", "ipc:///tmp/png.sock", "inproc://broker").
//
// Port 0 on a tcp endpoint means "pick an ephemeral port at bind time".
// Its String form is the ZeroMQ wildcard ("tcp://127.0.0.1:*"); the
// binding component resolves the real port afterwards with Parse on the
// socket's last endpoint.
package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Kind is the transport scheme of an endpoint.
type Kind string

const (
	// TCP is a host:port stream endpoint.
	TCP Kind = "tcp"
	// IPC is a filesystem-path endpoint (Unix domain socket).
	IPC Kind = "ipc"
	// Inproc is an in-process endpoint shared by sockets of one
	// transport context.
	Inproc Kind = "inproc"
)

// LoopbackHost is the host used by Loopback.
const LoopbackHost = "127.0.0.1"

// Endpoint is a (host, port, kind) triple. For IPC and Inproc kinds,
// Host carries the path or name and Port is unused.
type Endpoint struct {
	Host string
	Port int
	Kind Kind
}

// Loopback returns a tcp endpoint on 127.0.0.1. Pass port 0 for an
// ephemeral port.
func Loopback(port int) Endpoint {
	return Endpoint{Host: LoopbackHost, Port: port, Kind: TCP}
}

// InprocName returns an inproc endpoint with the given name.
func InprocName(name string) Endpoint {
	return Endpoint{Host: name, Kind: Inproc}
}

// String renders the ZeroMQ address for the endpoint.
func (e Endpoint) String() string {
	switch e.Kind {
	case IPC, Inproc:
		return string(e.Kind) + "://" + e.Host
	default:
		port := "*"
		if e.Port != 0 {
			port = strconv.Itoa(e.Port)
		}
		return string(TCP) + "://" + net.JoinHostPort(e.Host, port)
	}
}

// IsEphemeral reports whether the endpoint asks for a bind-time port.
func (e Endpoint) IsEphemeral() bool {
	return e.Kind == TCP && e.Port == 0
}

// IsLoopback reports whether the endpoint is reachable only from the
// local machine. IPC and inproc endpoints are always local.
func (e Endpoint) IsLoopback() bool {
	switch e.Kind {
	case IPC, Inproc:
		return true
	}
	if e.Host == "localhost" {
		return true
	}
	ip := net.ParseIP(e.Host)
	return ip != nil && ip.IsLoopback()
}

// Validate checks that the endpoint is well formed.
func (e Endpoint) Validate() error {
	switch e.Kind {
	case TCP:
		if e.Host == "" {
			return fmt.Errorf("endpoint %s: host is required", e)
		}
		if e.Port < 0 || e.Port > 65535 {
			return fmt.Errorf("endpoint %s: port %d out of range", e, e.Port)
		}
	case IPC, Inproc:
		if e.Host == "" {
			return fmt.Errorf("%s endpoint: name is required", e.Kind)
		}
	default:
		return fmt.Errorf("endpoint: unknown kind %q", e.Kind)
	}
	return nil
}

// RequireLoopback validates the endpoint and rejects anything that
// would be reachable from another machine.
func (e Endpoint) RequireLoopback() error {
	if err := e.Validate(); err != nil {
		return err
	}
	if !e.IsLoopback() {
		return fmt.Errorf("endpoint %s is not a loopback address", e)
	}
	return nil
}

// Parse reads a ZeroMQ address. A tcp port of "*" parses as port 0.
func Parse(address string) (Endpoint, error) {
	scheme, rest, found := strings.Cut(address, "://")
	if !found {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing scheme", address)
	}

	switch Kind(scheme) {
	case IPC, Inproc:
		endpoint := Endpoint{Host: rest, Kind: Kind(scheme)}
		return endpoint, endpoint.Validate()
	case TCP:
	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unsupported scheme %q", address, scheme)
	}

	host, portText, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", address, err)
	}
	port := 0
	if portText != "*" {
		port, err = strconv.Atoi(portText)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint %q: invalid port %q", address, portText)
		}
	}

	endpoint := Endpoint{Host: host, Port: port, Kind: TCP}
	return endpoint, endpoint.Validate()
}

// MarshalText implements encoding.TextMarshaler so endpoints can be
// used directly in YAML and CBOR documents.
func (e Endpoint) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Endpoint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
