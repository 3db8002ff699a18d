// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

// png-ipc is the operator tool for the IPC substrate. It talks to a
// child's control channel (ping, call, terminate), publishes to and
// subscribes from the telemetry broker, supervises a child process over
// its control channel, and can itself serve a control channel.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/process"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("png-ipc")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &application{stdout: os.Stdout, stderr: os.Stderr}
	return app.rootCommand().Execute(ctx, os.Args[1:], os.Stderr)
}

// application carries the output streams shared by every command.
type application struct {
	stdout io.Writer
	stderr *os.File
}

func (a *application) rootCommand() *Command {
	return &Command{
		Name:    "png-ipc",
		Summary: "Inspect and drive the control channel and telemetry bus",
		Subcommands: []*Command{
			a.pingCommand(),
			a.callCommand(),
			a.terminateCommand(),
			a.publishCommand(),
			a.subscribeCommand(),
			a.serveCommand(),
			a.superviseCommand(),
			a.versionCommand(),
		},
	}
}

func (a *application) versionCommand() *Command {
	return &Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(context.Context, []string) error {
			version.Fprint(a.stdout, "png-ipc")
			return nil
		},
	}
}
