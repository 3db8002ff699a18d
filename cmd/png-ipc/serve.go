// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/control"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/supervisor"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/version"
)

type serveOptions struct {
	common        commonOptions
	endpoint      string
	name          string
	metricsListen string
}

func (a *application) serveCommand() *Command {
	var options serveOptions
	return &Command{
		Name:    "serve",
		Summary: "Run a control server that answers status and echo",
		Description: "Run a control server until it is terminated over the channel or\n" +
			"interrupted. It answers \"status\" with its name, pid and uptime\n" +
			"and \"echo\" with its arguments.\n\n" +
			"The endpoint is --endpoint, else $" + supervisor.EndpointEnvVar + " as set by\n" +
			"a supervising parent, else control.endpoint from config.",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			options.common.addFlags(flagSet, "")
			flagSet.StringVar(&options.endpoint, "endpoint", "", "endpoint to bind")
			flagSet.StringVar(&options.name, "name", "", "name reported in ping replies (default: control.name from config)")
			flagSet.StringVar(&options.metricsListen, "metrics-listen", "", metricsListenUsage)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("serve takes no arguments")
			}
			return a.serve(ctx, &options)
		},
	}
}

func (a *application) serve(ctx context.Context, options *serveOptions) error {
	cfg, logger, err := options.common.load(a.stderr)
	if err != nil {
		return err
	}
	endpointFlag := options.endpoint
	if endpointFlag == "" {
		endpointFlag = os.Getenv(supervisor.EndpointEnvVar)
	}
	target, err := endpointOr("endpoint", endpointFlag, cfg.Control.Endpoint)
	if err != nil {
		return err
	}
	name := options.name
	if name == "" {
		name = cfg.Control.Name
	}
	metricsListen, err := metricsListenOr(options.metricsListen, cfg.Metrics.Listen)
	if err != nil {
		return err
	}

	registry, stopMetrics := startMetrics(ctx, metricsListen, logger)
	defer stopMetrics()

	server, err := control.NewServer(control.ServerConfig{
		Endpoint:     target,
		Name:         name,
		PollInterval: cfg.Control.PollInterval,
		Logger:       logger,
		Metrics:      controlMetrics(registry),
	})
	if err != nil {
		return err
	}
	defer server.Close()

	handler := newStatusHandler(server.Name(), time.Now)
	logger.Info("control server ready", "name", server.Name(), "endpoint", server.Endpoint().String())
	fmt.Fprintf(a.stdout, "serving %s on %s\n", server.Name(), server.Endpoint())
	return server.Serve(ctx, handler.handle)
}

// statusHandler answers the serve command's requests.
type statusHandler struct {
	name     string
	now      func() time.Time
	started  time.Time
	requests atomic.Int64
}

func newStatusHandler(name string, now func() time.Time) *statusHandler {
	return &statusHandler{name: name, now: now, started: now()}
}

func (h *statusHandler) handle(_ context.Context, request control.Request) (control.Response, error) {
	served := h.requests.Add(1)
	switch request.Cmd {
	case "status":
		return control.Response{
			"name":      h.name,
			"pid":       os.Getpid(),
			"uptime_ms": h.now().Sub(h.started).Milliseconds(),
			"requests":  served,
			"version":   version.Info(),
		}, nil
	case "echo":
		response := control.Response{}
		for key, value := range request.Args {
			response[key] = value
		}
		return response, nil
	default:
		return nil, fmt.Errorf("unknown command %q", request.Cmd)
	}
}
