// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/clock"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/codec"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/metrics"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/transport"
)

const (
	defaultSendHWM = 1

	// Interval between attempts to hand the pending message to a
	// transport queue that reported itself full.
	defaultRetryInterval = 5 * time.Millisecond
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	// Endpoint is the broker frontend.
	Endpoint endpoint.Endpoint

	// Context is the transport context to create the socket on. When
	// nil the publisher creates and owns one.
	Context *transport.Context

	// SendHWM is the transport send queue depth. Zero means 1.
	SendHWM int

	// Clock paces send retries. Nil means the real clock.
	Clock clock.Clock

	Logger  *slog.Logger
	Metrics *metrics.Bus
}

// frameSender is the part of a PUB socket the sender goroutine uses.
type frameSender interface {
	SendMessageDontwait(parts ...interface{}) (int, error)
	Close() error
}

// Publisher sends topic-tagged messages to the broker. Publish never
// blocks: the publisher keeps only the newest unsent message, and a
// background goroutine owns the socket and drains that slot.
//
// Safe for concurrent use.
type Publisher struct {
	logger  *slog.Logger
	metrics *metrics.Bus
	clock   clock.Clock
	release func() error
	socket  frameSender

	mu      sync.Mutex
	pending *Message
	closed  bool
	dropped atomic.Uint64

	// notify (capacity 1) wakes the sender when pending is set.
	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewPublisher connects to the broker frontend and starts the sender.
// Connecting is asynchronous: messages published before the broker is
// reachable are dropped by the transport.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if err := config.Endpoint.RequireLoopback(); err != nil {
		return nil, fmt.Errorf("bus: publisher: %w", err)
	}
	sendHWM := config.SendHWM
	if sendHWM <= 0 {
		sendHWM = defaultSendHWM
	}
	publisherClock := config.Clock
	if publisherClock == nil {
		publisherClock = clock.Real()
	}

	transportContext, release, err := transport.Acquire(config.Context)
	if err != nil {
		return nil, err
	}
	socket, err := openPublisherSocket(transportContext, config.Endpoint, sendHWM)
	if err != nil {
		release()
		return nil, err
	}

	publisher := &Publisher{
		logger:  loggerOrDiscard(config.Logger),
		metrics: config.Metrics,
		clock:   publisherClock,
		release: release,
		socket:  socket,
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go publisher.run()
	return publisher, nil
}

func openPublisherSocket(transportContext *transport.Context, target endpoint.Endpoint, sendHWM int) (*zmq4.Socket, error) {
	socket, err := transportContext.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, err
	}
	if err := socket.SetSndhwm(sendHWM); err != nil {
		socket.Close()
		return nil, &transport.Error{Op: "set send hwm", Endpoint: target, Err: err}
	}
	// Report a full queue as EAGAIN instead of dropping silently, so
	// the sender can retry with the newest value.
	if err := socket.SetXpubNodrop(true); err != nil {
		socket.Close()
		return nil, &transport.Error{Op: "set nodrop", Endpoint: target, Err: err}
	}
	if err := transport.Connect(socket, target); err != nil {
		socket.Close()
		return nil, err
	}
	return socket, nil
}

// Publish queues payload for sending on topic. If a message is
// already waiting to be sent it is replaced and counted as dropped.
// Publish after Close drops the message.
func (p *Publisher) Publish(topic string, payload []byte) {
	message := &Message{Topic: topic, Payload: payload}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.drop(topic, metrics.ReasonClosed)
		return
	}
	displaced := p.pending
	p.pending = message
	p.mu.Unlock()

	if displaced != nil {
		p.drop(displaced.Topic, metrics.ReasonReplaced)
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// PublishValue encodes value as CBOR and publishes it. Values that
// cannot be encoded are dropped and logged.
func (p *Publisher) PublishValue(topic string, value any) {
	payload, err := codec.Marshal(value)
	if err != nil {
		p.logger.Warn("dropping unencodable telemetry value", "topic", topic, "error", err)
		p.drop(topic, metrics.ReasonEncode)
		return
	}
	p.Publish(topic, payload)
}

// Dropped returns the number of messages dropped since creation.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops the sender and closes the socket. A message still
// pending is discarded. Safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
	<-p.done
	return p.release()
}

func (p *Publisher) drop(topic, reason string) {
	p.metrics.Dropped(topic, reason)
	p.dropped.Add(1)
	p.logger.Debug("telemetry message dropped", "topic", topic, "reason", reason)
}

// run owns the socket for the publisher's lifetime.
func (p *Publisher) run() {
	defer close(p.done)
	defer p.socket.Close()

	var retry <-chan time.Time
	for {
		select {
		case <-p.stop:
			return
		case <-p.notify:
		case <-retry:
		}
		retry = nil

		message := p.take()
		if message == nil {
			continue
		}
		if !p.send(message) {
			p.requeue(message)
			retry = p.clock.After(defaultRetryInterval)
		}
	}
}

func (p *Publisher) take() *Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	message := p.pending
	p.pending = nil
	return message
}

// requeue puts message back unless a newer one arrived meanwhile.
func (p *Publisher) requeue(message *Message) {
	p.mu.Lock()
	if p.pending == nil && !p.closed {
		p.pending = message
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.drop(message.Topic, metrics.ReasonQueueFull)
}

// send reports false when the transport queue is full and the message
// should be retried. Other failures drop the message as send_failed.
func (p *Publisher) send(message *Message) bool {
	_, err := p.socket.SendMessageDontwait(message.Topic, message.Payload)
	switch {
	case err == nil:
		p.metrics.Published(message.Topic)
		return true
	case transport.IsAgain(err):
		return false
	default:
		p.logger.Warn("telemetry send failed", "topic", message.Topic, "error", err)
		p.drop(message.Topic, metrics.ReasonSendFailed)
		return true
	}
}
