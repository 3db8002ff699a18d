// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package control implements the parent/child command channel: a child
// process runs a [Server] and its parent drives it through a [Client].
//
// The channel is strict request/response. Every request is a CBOR map
// {cmd: string, args: map} and gets exactly one CBOR map back, either
// the handler's result or {error: string}. Only one request is
// outstanding per client at a time, and a server handles one request
// at a time; more throughput means opening another channel.
//
// Two commands are answered by the server itself and never reach the
// handler:
//
//   - "__ping__" returns {reply: "__pong__", source: <server name>}.
//   - "__terminate__" returns {reply: "__terminate_ack__", source:
//     <server name>}, after which the server closes its socket and
//     Serve returns.
//
// Client failures are data, not Go errors. [Client.Request] always
// returns a [Response]; a timeout, an unreachable server or an
// undecodable reply comes back as {error: string} tagged with an
// error kind, which [Response.Err] turns into an [*Error] that matches
// [ErrTimeout], [ErrTransport] or [ErrProtocol] under errors.Is. After
// a timeout the client rebuilds its socket so the next request works.
//
// Endpoints are loopback only.
package control
