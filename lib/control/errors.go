// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed response.
type ErrorKind string

const (
	// KindTransport: the client could not reach the server, or the
	// socket failed mid-request.
	KindTransport ErrorKind = "transport"

	// KindTimeout: no reply arrived before the deadline, or the
	// request's context ended first.
	KindTimeout ErrorKind = "timeout"

	// KindProtocol: a request or reply could not be encoded or decoded.
	KindProtocol ErrorKind = "protocol"

	// KindRemote: the server answered with an error, typically because
	// its handler failed.
	KindRemote ErrorKind = "remote"
)

var (
	ErrTransport = errors.New("control: transport error")
	ErrTimeout   = errors.New("control: request timed out")
	ErrProtocol  = errors.New("control: protocol error")
	ErrRemote    = errors.New("control: server returned an error")

	// ErrHandler wraps handler failures in server logs.
	ErrHandler = errors.New("control: handler failed")

	// ErrClientClosed is reported by requests on a closed client.
	ErrClientClosed = errors.New("control: client closed")
)

// Error is a failed response seen from the client side.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("control: %s error: %s", e.Kind, e.Message)
}

// Unwrap maps the kind onto its sentinel so callers can use errors.Is.
func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindTransport:
		return ErrTransport
	case KindTimeout:
		return ErrTimeout
	case KindProtocol:
		return ErrProtocol
	default:
		return ErrRemote
	}
}
