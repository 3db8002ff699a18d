// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/control"
)

// channelOptions are the flags of commands that talk to a control
// server.
type channelOptions struct {
	common         commonOptions
	endpoint       string
	timeout        time.Duration
	connectTimeout time.Duration
}

func (o *channelOptions) flagSet(name string) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
		o.common.addFlags(flagSet, "warn")
		flagSet.StringVar(&o.endpoint, "endpoint", "", "control endpoint (default: control.endpoint from config)")
		flagSet.DurationVar(&o.timeout, "timeout", 0, "request timeout (default: control.request_timeout from config)")
		flagSet.DurationVar(&o.connectTimeout, "connect-timeout", 0, "how long to wait for a reachable server (default: control.connect_timeout from config)")
		return flagSet
	}
}

// withClient connects a control client, runs fn, and closes the client.
func (a *application) withClient(o *channelOptions, fn func(client *control.Client, timeout time.Duration) error) error {
	cfg, logger, err := o.common.load(a.stderr)
	if err != nil {
		return err
	}
	target, err := endpointOr("endpoint", o.endpoint, cfg.Control.Endpoint)
	if err != nil {
		return err
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = cfg.Control.RequestTimeout
	}
	connectTimeout := o.connectTimeout
	if connectTimeout <= 0 {
		connectTimeout = cfg.Control.ConnectTimeout
	}

	client, err := control.NewClient(control.ClientConfig{
		Endpoint:       target,
		Timeout:        timeout,
		ConnectTimeout: connectTimeout,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client, timeout)
}

// printResponse writes a successful response to stdout, or returns the
// failure it carries.
func (a *application) printResponse(response control.Response) error {
	if err := response.Err(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, response.String())
	return nil
}

func (a *application) pingCommand() *Command {
	var options channelOptions
	return &Command{
		Name:    "ping",
		Summary: "Check that a control server answers",
		Flags:   options.flagSet("ping"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("ping takes no arguments")
			}
			return a.withClient(&options, func(client *control.Client, timeout time.Duration) error {
				started := time.Now()
				response := client.Ping(ctx, timeout)
				if err := response.Err(); err != nil {
					return err
				}
				if response.Reply() != control.ReplyPong {
					return fmt.Errorf("unexpected ping reply: %s", response)
				}
				fmt.Fprintf(a.stdout, "pong from %s in %s\n", response.Source(), time.Since(started).Round(time.Microsecond))
				return nil
			})
		},
	}
}

func (a *application) callCommand() *Command {
	var options channelOptions
	return &Command{
		Name:    "call",
		Summary: "Send a command with key=value arguments",
		Description: "Send a command to a control server and print the response.\n\n" +
			"Argument values are read as JSON when they parse as JSON and as\n" +
			"plain strings otherwise, so lap=3 sends an integer and mode=race\n" +
			"sends a string.",
		Usage: "<command> [key=value...] [flags]",
		Flags: options.flagSet("call"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("call requires a command name")
			}
			requestArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			return a.withClient(&options, func(client *control.Client, timeout time.Duration) error {
				return a.printResponse(client.Request(ctx, args[0], requestArgs, timeout))
			})
		},
	}
}

func (a *application) terminateCommand() *Command {
	var options channelOptions
	return &Command{
		Name:    "terminate",
		Summary: "Ask a control server to acknowledge and shut down",
		Flags:   options.flagSet("terminate"),
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("terminate takes no arguments")
			}
			return a.withClient(&options, func(client *control.Client, timeout time.Duration) error {
				return a.printResponse(client.Terminate(ctx, timeout))
			})
		},
	}
}
