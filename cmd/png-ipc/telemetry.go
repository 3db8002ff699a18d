// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/bus"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/codec"
)

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type publishOptions struct {
	common        commonOptions
	frontend      string
	count         int
	interval      time.Duration
	settle        time.Duration
	metricsListen string
}

func (a *application) publishCommand() *Command {
	var options publishOptions
	return &Command{
		Name:    "publish",
		Summary: "Publish a JSON value on a topic",
		Description: "Publish a JSON value, encoded as CBOR, to the broker frontend.\n\n" +
			"Subscribers only see messages sent after their subscription\n" +
			"reaches the broker, so the publisher waits --settle before the\n" +
			"first message. Only the newest value is kept when sending falls\n" +
			"behind.\n\n" +
			"Bus metrics are served only with --metrics-listen. metrics.listen\n" +
			"from config belongs to the broker.",
		Usage: "<topic> <json> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("publish", pflag.ContinueOnError)
			options.common.addFlags(flagSet, "warn")
			flagSet.StringVar(&options.frontend, "frontend", "", "broker frontend (default: broker.frontend from config)")
			flagSet.IntVar(&options.count, "count", 1, "number of times to publish the value")
			flagSet.DurationVar(&options.interval, "interval", 100*time.Millisecond, "delay after each publish")
			flagSet.DurationVar(&options.settle, "settle", 250*time.Millisecond, "delay before the first publish")
			flagSet.StringVar(&options.metricsListen, "metrics-listen", "", "loopback host:port serving bus metrics on /metrics")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("publish requires a topic and a JSON value")
			}
			if options.count < 1 {
				return fmt.Errorf("--count must be at least 1")
			}
			topic := args[0]
			value, err := parseJSON(args[1])
			if err != nil {
				return err
			}

			cfg, logger, err := options.common.load(a.stderr)
			if err != nil {
				return err
			}
			target, err := endpointOr("frontend", options.frontend, cfg.Broker.Frontend)
			if err != nil {
				return err
			}
			metricsListen, err := metricsListenOr(options.metricsListen, "")
			if err != nil {
				return err
			}

			registry, stopMetrics := startMetrics(ctx, metricsListen, logger)
			defer stopMetrics()
			publisher, err := bus.NewPublisher(bus.PublisherConfig{
				Endpoint: target,
				SendHWM:  cfg.Bus.SendHWM,
				Logger:   logger,
				Metrics:  busMetrics(registry),
			})
			if err != nil {
				return err
			}
			defer publisher.Close()

			if !sleep(ctx, options.settle) {
				return ctx.Err()
			}
			published := 0
			for published < options.count {
				publisher.PublishValue(topic, value)
				published++
				if !sleep(ctx, options.interval) {
					break
				}
			}
			fmt.Fprintf(a.stdout, "published %d message(s) on %q to %s, %d dropped\n",
				published, topic, target, publisher.Dropped())
			return nil
		},
	}
}

type subscribeOptions struct {
	common        commonOptions
	backend       string
	count         int
	metricsListen string
}

func (a *application) subscribeCommand() *Command {
	var options subscribeOptions
	return &Command{
		Name:    "subscribe",
		Summary: "Print messages on one or more topics",
		Description: "Subscribe to the broker backend and print each message as\n" +
			"\"<topic> <payload>\", with the payload in CBOR diagnostic notation.\n" +
			"Runs until interrupted or until --count messages were printed.",
		Usage: "<topic>... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("subscribe", pflag.ContinueOnError)
			options.common.addFlags(flagSet, "warn")
			flagSet.StringVar(&options.backend, "backend", "", "broker backend (default: broker.backend from config)")
			flagSet.IntVar(&options.count, "count", 0, "exit after this many messages (0: run until interrupted)")
			flagSet.StringVar(&options.metricsListen, "metrics-listen", "", "loopback host:port serving bus metrics on /metrics")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("subscribe requires at least one topic")
			}
			cfg, logger, err := options.common.load(a.stderr)
			if err != nil {
				return err
			}
			target, err := endpointOr("backend", options.backend, cfg.Broker.Backend)
			if err != nil {
				return err
			}
			metricsListen, err := metricsListenOr(options.metricsListen, "")
			if err != nil {
				return err
			}

			registry, stopMetrics := startMetrics(ctx, metricsListen, logger)
			defer stopMetrics()
			router, err := bus.NewRouter(bus.RouterConfig{
				Endpoint:     target,
				PollInterval: cfg.Bus.PollInterval,
				ReceiveHWM:   cfg.Bus.ReceiveHWM,
				Logger:       logger,
				Metrics:      busMetrics(registry),
			})
			if err != nil {
				return err
			}

			received := 0
			printMessage := func(_ context.Context, message bus.Message) error {
				text, err := codec.Diagnose(message.Payload)
				if err != nil {
					text = fmt.Sprintf("<%d bytes, not CBOR>", len(message.Payload))
				}
				fmt.Fprintf(a.stdout, "%s %s\n", message.Topic, text)
				received++
				if options.count > 0 && received >= options.count {
					router.Stop()
				}
				return nil
			}
			for _, topic := range args {
				if err := router.Register(topic, printMessage); err != nil {
					router.Stop()
					return err
				}
			}
			return router.Start(ctx)
		},
	}
}
