// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor runs a child process and owns the parent side of
// its control channel.
//
// [Start] executes the child with [EndpointEnvVar] set to the control
// endpoint it must bind, then pings until the child answers or the
// startup timeout expires. A child that exits or stays silent during
// startup is killed and reported as an error.
//
// [Child.Stop] asks the child to terminate over the control channel and
// waits for it to exit. A child that does not exit within the stop
// timeout is killed. A background goroutine reaps the process in every
// case, so no zombie outlives the Child.
//
// With a heartbeat configured, a [control.Monitor] pings the child on
// an interval for as long as it runs.
package supervisor
