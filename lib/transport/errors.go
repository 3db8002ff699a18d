// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
)

// Error is a failure to create, bind, connect to, or send on a socket.
// Endpoint is the zero value when the operation has no address.
type Error struct {
	Op       string
	Endpoint endpoint.Endpoint
	Err      error
}

func (e *Error) Error() string {
	if e.Endpoint == (endpoint.Endpoint{}) {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsAgain reports whether err is EAGAIN: a non-blocking send found the
// queue at its high water mark, or a non-blocking receive found nothing.
func IsAgain(err error) bool {
	return errnoOf(err) == zmq4.Errno(syscall.EAGAIN)
}

// IsTerminated reports whether err is ETERM, returned on sockets whose
// context is being torn down.
func IsTerminated(err error) bool {
	return errnoOf(err) == zmq4.ETERM
}

// IsInterrupted reports whether err is EINTR. Poll and receive calls
// are retried when interrupted.
func IsInterrupted(err error) bool {
	return errnoOf(err) == zmq4.Errno(syscall.EINTR)
}

func errnoOf(err error) zmq4.Errno {
	if err == nil {
		return 0
	}
	var transportError *Error
	if errors.As(err, &transportError) {
		err = transportError.Err
	}
	return zmq4.AsErrno(err)
}
