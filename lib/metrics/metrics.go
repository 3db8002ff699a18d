// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors for the telemetry
// bus and the control channel.
//
// Collectors are registered on the Registerer passed to the
// constructor, never on the global default registry, so tests and
// multiple components in one process do not collide. A nil *Bus or
// *Control is valid and records nothing; components accept them as
// optional configuration.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "png_ipc"

// Drop and discard reasons used as label values.
const (
	// ReasonReplaced: a newer publish displaced the pending message.
	ReasonReplaced = "replaced"
	// ReasonQueueFull: a message that could not be sent because the
	// transport queue was full was superseded before its retry.
	ReasonQueueFull = "queue_full"
	// ReasonSendFailed: the transport rejected a send for a reason
	// other than a full queue.
	ReasonSendFailed = "send_failed"
	// ReasonClosed: publish after Close.
	ReasonClosed = "closed"
	// ReasonEncode: PublishValue could not encode the value.
	ReasonEncode = "encode"
	// ReasonUnrouted: no handler registered for the topic.
	ReasonUnrouted = "unrouted"
	// ReasonMalformed: the message did not have two frames.
	ReasonMalformed = "malformed"
	// ReasonCoalesced: a newer message on the same topic arrived in
	// the same receive batch.
	ReasonCoalesced = "coalesced"
)

// Outcome labels for control channel requests.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
	OutcomeTransport = "transport"
	OutcomeProtocol  = "protocol"
)

// Bus counts telemetry bus traffic on both the publishing and the
// subscribing side.
type Bus struct {
	published       *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	handlerFailures *prometheus.CounterVec
	discarded       *prometheus.CounterVec
}

// NewBus creates the bus collectors and registers them on registerer.
// A nil registerer leaves them unregistered.
func NewBus(registerer prometheus.Registerer) *Bus {
	bus := &Bus{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Messages handed to the transport by publishers.",
		}, []string{"topic"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dropped_total",
			Help:      "Messages dropped on the publishing side.",
		}, []string{"topic", "reason"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "delivered_total",
			Help:      "Messages passed to a subscriber handler.",
		}, []string{"topic"}),
		handlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_failures_total",
			Help:      "Subscriber handler invocations that returned an error or panicked.",
		}, []string{"topic"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "discarded_total",
			Help:      "Received messages not passed to any handler.",
		}, []string{"reason"}),
	}
	if registerer != nil {
		registerer.MustRegister(bus.published, bus.dropped, bus.delivered, bus.handlerFailures, bus.discarded)
	}
	return bus
}

// Published records a message sent by a publisher.
func (b *Bus) Published(topic string) {
	if b == nil {
		return
	}
	b.published.WithLabelValues(topic).Inc()
}

// Dropped records a publisher-side drop.
func (b *Bus) Dropped(topic, reason string) {
	if b == nil {
		return
	}
	b.dropped.WithLabelValues(topic, reason).Inc()
}

// Delivered records a handler invocation.
func (b *Bus) Delivered(topic string) {
	if b == nil {
		return
	}
	b.delivered.WithLabelValues(topic).Inc()
}

// HandlerFailed records a failed handler invocation.
func (b *Bus) HandlerFailed(topic string) {
	if b == nil {
		return
	}
	b.handlerFailures.WithLabelValues(topic).Inc()
}

// Discarded records a received message that reached no handler.
func (b *Bus) Discarded(reason string) {
	if b == nil {
		return
	}
	b.discarded.WithLabelValues(reason).Inc()
}

// Control counts control channel requests.
type Control struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	reconnects prometheus.Counter
}

// NewControl creates the control channel collectors and registers them
// on registerer. A nil registerer leaves them unregistered.
func NewControl(registerer prometheus.Registerer) *Control {
	control := &Control{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Control requests by side, command and outcome.",
		}, []string{"side", "command", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "request_duration_seconds",
			Help:      "Client-observed round trip time of control requests.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"command"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "reconnects_total",
			Help:      "Client sockets recreated after a timeout or send failure.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(control.requests, control.latency, control.reconnects)
	}
	return control
}

// ServerRequest records a request handled by a server.
func (c *Control) ServerRequest(command, outcome string) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues("server", command, outcome).Inc()
}

// ClientRequest records a request issued by a client and its duration.
func (c *Control) ClientRequest(command, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues("client", command, outcome).Inc()
	c.latency.WithLabelValues(command).Observe(elapsed.Seconds())
}

// Reconnected records a client socket rebuild.
func (c *Control) Reconnected() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}
