// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus is the telemetry publish/subscribe bus: a capture process
// publishes topic-tagged payloads, a [Broker] relays them, and any number
// of consumer processes dispatch them to per-topic handlers.
//
// Data flow:
//
//	Publisher (PUB) → Broker frontend (XSUB) → Broker backend (XPUB) → Router (SUB)
//
// Every message is two frames, [topic, payload]. The payload is opaque
// to this package; [Publisher.PublishValue] and [Message.Decode] use
// CBOR for callers that have no encoding of their own.
//
// The bus is a latest-value stream, not a log. A [Publisher] holds at
// most one unsent message: publishing while one is pending replaces it,
// and the displaced message is dropped with a debug diagnostic. A
// [Router] that falls behind coalesces each received batch to the newest
// message per topic. Subscribers therefore always converge on the most
// recent value and never replay a backlog. Messages published before a
// subscriber's subscription reaches the broker are lost (slow joiner),
// as are messages published while the broker is down.
//
// Topic filtering is a prefix match performed by the transport;
// dispatch is an exact match on the route table, so a message whose
// topic merely starts with a registered topic is discarded.
package bus
