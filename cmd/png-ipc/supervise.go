// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/supervisor"
)

type superviseOptions struct {
	common         commonOptions
	endpoint       string
	startupTimeout time.Duration
	stopTimeout    time.Duration
	metricsListen  string
}

func (a *application) superviseCommand() *Command {
	var options superviseOptions
	return &Command{
		Name:    "supervise",
		Summary: "Run a program and watch its control channel",
		Description: "Start a program, wait until it answers a ping on its control\n" +
			"endpoint, and ping it every control.heartbeat_interval. After\n" +
			"control.heartbeat_failure_threshold missed pings the child is\n" +
			"reported unresponsive.\n\n" +
			"The child learns its endpoint from $" + supervisor.EndpointEnvVar + ". On\n" +
			"interrupt the child is asked to terminate and killed if it has not\n" +
			"exited within --stop-timeout. A child that exits on its own ends\n" +
			"the command with its exit code.",
		Usage: "[flags] [--] <program> [args...]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("supervise", pflag.ContinueOnError)
			// Everything from the program name on belongs to the child.
			flagSet.SetInterspersed(false)
			options.common.addFlags(flagSet, "")
			flagSet.StringVar(&options.endpoint, "endpoint", "", "child control endpoint (default: control.endpoint from config)")
			flagSet.DurationVar(&options.startupTimeout, "startup-timeout", supervisor.DefaultStartupTimeout, "how long the child has to answer its first ping")
			flagSet.DurationVar(&options.stopTimeout, "stop-timeout", supervisor.DefaultStopTimeout, "how long the child has to exit after terminate")
			flagSet.StringVar(&options.metricsListen, "metrics-listen", "", "loopback host:port serving control client metrics on /metrics")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("supervise requires a program to run")
			}
			return a.supervise(ctx, &options, args[0], args[1:])
		},
	}
}

func (a *application) supervise(ctx context.Context, options *superviseOptions, path string, args []string) error {
	cfg, logger, err := options.common.load(a.stderr)
	if err != nil {
		return err
	}
	target, err := endpointOr("endpoint", options.endpoint, cfg.Control.Endpoint)
	if err != nil {
		return err
	}
	metricsListen, err := metricsListenOr(options.metricsListen, "")
	if err != nil {
		return err
	}

	registry, stopMetrics := startMetrics(ctx, metricsListen, logger)
	defer stopMetrics()

	childConfig := supervisor.ConfigFromControl(cfg.Control)
	childConfig.Path = path
	childConfig.Args = args
	childConfig.Endpoint = target
	childConfig.Stdout = a.stdout
	childConfig.Stderr = a.stderr
	childConfig.StartupTimeout = options.startupTimeout
	childConfig.StopTimeout = options.stopTimeout
	childConfig.Logger = logger
	childConfig.Metrics = controlMetrics(registry)
	childConfig.Heartbeat.OnUnhealthy = func(failures int, err error) {
		logger.Warn("child unresponsive", "path", path, "missed_pings", failures, "error", err)
	}
	childConfig.Heartbeat.OnRecovered = func() {
		logger.Info("child responsive again", "path", path)
	}

	child, err := supervisor.Start(ctx, childConfig)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "supervising %s (pid %d) on %s\n", path, child.Pid(), target)

	select {
	case <-child.Done():
		// Releases the control client; the process is already gone.
		child.Stop(context.Background())
		exitCode, _ := child.Wait()
		if exitCode != 0 {
			return fmt.Errorf("%s exited with code %d", path, exitCode)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("stopping child", "path", path, "pid", child.Pid())
	return child.Stop(context.Background())
}
