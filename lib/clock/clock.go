// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for periodic work in this repository:
// heartbeat probing and child-process startup and shutdown deadlines.
//
// Production code is handed Real(). Tests hand in a FakeClock and move
// time forward with Advance, using WaitForTimers to make sure the code
// under test has registered its ticker or deadline first:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go monitor.run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
//
// Socket poll timeouts are not routed through Clock: libzmq waits on
// the real clock and there is nothing to fake.
package clock

import "time"

// Clock abstracts the parts of the time package that periodic loops use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C, a channel of capacity 1. Ticks
// that arrive while the previous one is unread are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop ends tick delivery. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}
