// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// ParseLevel maps a configured level name to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// NewLogger creates the process logger writing to output.
//
// format is "text", "json" or "auto". Auto picks text when output is a
// terminal and JSON otherwise, so a process started by a supervisor
// writes machine-parseable lines while an interactive run stays
// readable.
func NewLogger(output *os.File, level, format string) (*slog.Logger, error) {
	parsed, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: parsed}

	if format == "auto" {
		format = "json"
		if term.IsTerminal(int(output.Fd())) {
			format = "text"
		}
	}

	switch format {
	case "text", "":
		return slog.New(slog.NewTextHandler(output, options)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(output, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
