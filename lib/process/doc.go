// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers shared by the broker, the
// IPC command-line tool and supervised child processes.
//
//   - [Fatal] reports an error from run() to stderr and exits. It is
//     for the window before the structured logger exists.
//   - [NewLogger] builds the process logger from the configured level
//     and format.
package process
