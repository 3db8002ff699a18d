// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the broker,
// the control channel and the telemetry bus.
//
// Configuration is loaded from a single file specified by either the
// PNG_IPC_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search. Binaries call [LoadOrDefault], which runs on [Default] when
// neither is given.
//
// The file may contain development and production sections that
// override the logging and metrics settings when [Config].Environment
// matches. Production defaults to JSON logs at info level.
//
// ${VAR} and ${VAR:-default} patterns in the file are expanded from
// the environment before parsing. No other environment variables
// override config values.
//
// [Config.Validate] enforces the loopback-only rule for every endpoint:
// nothing in this system is exposed beyond the local machine.
package config
