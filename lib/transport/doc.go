// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport owns the ZeroMQ context that every IPC socket is
// created from, plus the small amount of socket plumbing the bus and
// control packages share.
//
// A [Context] is an ordinary value held by whoever created it. There is
// no process-wide singleton: two unrelated channels in one process may
// use two contexts, and tearing one down does not affect the other.
// Components that are handed a nil context create their own and close
// it with themselves (see [Acquire]).
//
// Sockets created by [Context.NewSocket] start with zero linger, so
// closing a socket discards anything still queued for sending. Code
// that must flush a final message (the control server's terminate
// acknowledgement) raises the linger explicitly before closing.
//
// ZeroMQ sockets are not safe for concurrent use. Every socket in this
// repository is confined to one goroutine or guarded by a mutex; the
// helpers here do no locking of their own.
//
// Failures to create, bind, connect or send are reported as [*Error],
// the TransportError of the error taxonomy.
package transport
