// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/config"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/control"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/metrics"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/transport"
)

// EndpointEnvVar carries the control endpoint to the child.
const EndpointEnvVar = "PNG_CONTROL_ENDPOINT"

const (
	DefaultStartupTimeout = 10 * time.Second
	DefaultStopTimeout    = 5 * time.Second

	// Per-ping timeout while waiting for the child to come up.
	startupPingTimeout = 250 * time.Millisecond
)

var (
	// ErrExited is returned by Start when the child exits before it
	// answers a ping.
	ErrExited = errors.New("supervisor: child exited during startup")

	// ErrStartupTimeout is returned by Start when the child does not
	// answer a ping within the startup timeout.
	ErrStartupTimeout = errors.New("supervisor: child did not answer within startup timeout")

	// ErrKilled is returned by Stop when the child had to be killed.
	ErrKilled = errors.New("supervisor: child killed after stop timeout")
)

// Config describes the child to run.
type Config struct {
	// Path is the executable. Args excludes the program name.
	Path string
	Args []string

	// Env is appended to the parent's environment.
	Env []string

	// Stdout and Stderr receive the child's output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	// Endpoint is the control endpoint the child binds. It must be
	// loopback with a fixed port.
	Endpoint endpoint.Endpoint

	// Context is the transport context for the control client. When
	// nil the client owns one.
	Context *transport.Context

	StartupTimeout time.Duration
	StopTimeout    time.Duration

	// RequestTimeout and ConnectTimeout configure the control client.
	RequestTimeout time.Duration
	ConnectTimeout time.Duration

	// Heartbeat enables liveness monitoring when non-nil.
	Heartbeat *control.MonitorConfig

	Logger  *slog.Logger
	Metrics *metrics.Control
}

// ConfigFromControl returns a Config for the child described by the
// control section of the process configuration: its endpoint, the
// client timeouts and a heartbeat at the configured interval and
// failure threshold. Each heartbeat ping is bounded by the request
// timeout but never outlasts the interval. The caller fills in Path,
// Args and the output streams.
func ConfigFromControl(settings config.ControlConfig) Config {
	return Config{
		Endpoint:       settings.Endpoint,
		RequestTimeout: settings.RequestTimeout,
		ConnectTimeout: settings.ConnectTimeout,
		Heartbeat: &control.MonitorConfig{
			Interval:         settings.HeartbeatInterval,
			Timeout:          min(settings.RequestTimeout, settings.HeartbeatInterval),
			FailureThreshold: settings.HeartbeatFailureThreshold,
		},
	}
}

// Child is a running child process and its control client.
type Child struct {
	cmd         *exec.Cmd
	client      *control.Client
	logger      *slog.Logger
	stopTimeout time.Duration

	monitor *control.Monitor

	done     chan struct{}
	exitCode int
	waitErr  error

	stopOnce sync.Once
	stopErr  error
}

// Start runs the child and waits until it answers a ping.
func Start(ctx context.Context, config Config) (*Child, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("supervisor: no executable path")
	}
	if err := config.Endpoint.RequireLoopback(); err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	if config.Endpoint.IsEphemeral() {
		return nil, fmt.Errorf("supervisor: endpoint %s needs a fixed port", config.Endpoint)
	}
	startupTimeout := config.StartupTimeout
	if startupTimeout <= 0 {
		startupTimeout = DefaultStartupTimeout
	}
	stopTimeout := config.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client, err := control.NewClient(control.ClientConfig{
		Endpoint:       config.Endpoint,
		Context:        config.Context,
		Timeout:        config.RequestTimeout,
		ConnectTimeout: config.ConnectTimeout,
		Logger:         logger,
		Metrics:        config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(config.Path, config.Args...)
	cmd.Env = append(os.Environ(), config.Env...)
	cmd.Env = append(cmd.Env, EndpointEnvVar+"="+config.Endpoint.String())
	cmd.Stdout = config.Stdout
	cmd.Stderr = config.Stderr

	if err := cmd.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("supervisor: starting %s: %w", config.Path, err)
	}

	child := &Child{
		cmd:         cmd,
		client:      client,
		logger:      logger.With("pid", cmd.Process.Pid, "path", config.Path),
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}
	go child.reap()

	if err := child.awaitReady(ctx, startupTimeout); err != nil {
		child.kill()
		client.Close()
		return nil, err
	}

	if config.Heartbeat != nil {
		heartbeat := *config.Heartbeat
		if heartbeat.Logger == nil {
			heartbeat.Logger = child.logger
		}
		child.monitor = control.StartMonitor(context.Background(), client, heartbeat)
	}

	child.logger.Info("child started", "endpoint", config.Endpoint.String())
	return child, nil
}

// reap waits for the process so it never lingers as a zombie, and
// records its exit status.
func (c *Child) reap() {
	waitErr := c.cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	c.exitCode = exitCode
	c.waitErr = waitErr
	close(c.done)
	c.logger.Info("child exited", "exit_code", exitCode, "error", waitErr)
}

// awaitReady pings until the child answers, exits, or the timeout or
// ctx expires.
func (c *Child) awaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		select {
		case <-c.done:
			return fmt.Errorf("%w: exit code %d", ErrExited, c.exitCode)
		default:
		}

		response := c.client.Ping(ctx, startupPingTimeout)
		lastErr = response.Err()
		if lastErr == nil {
			return nil
		}

		select {
		case <-c.done:
			return fmt.Errorf("%w: exit code %d", ErrExited, c.exitCode)
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w (%s): %v", ErrStartupTimeout, timeout, lastErr)
			}
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Client returns the control client connected to the child.
func (c *Child) Client() *control.Client { return c.client }

// Request sends a command to the child.
func (c *Child) Request(ctx context.Context, command string, args map[string]any, timeout time.Duration) control.Response {
	return c.client.Request(ctx, command, args, timeout)
}

// Pid returns the child's process ID.
func (c *Child) Pid() int { return c.cmd.Process.Pid }

// Done is closed when the child process has exited.
func (c *Child) Done() <-chan struct{} { return c.done }

// Healthy reports the heartbeat monitor's view of the child. Without a
// heartbeat it reports whether the process is still running.
func (c *Child) Healthy() bool {
	select {
	case <-c.done:
		return false
	default:
	}
	if c.monitor == nil {
		return true
	}
	return c.monitor.Healthy()
}

// Wait blocks until the child exits and returns its exit code and the
// error from the underlying wait. A child killed by a signal reports
// exit code -1.
func (c *Child) Wait() (int, error) {
	<-c.done
	return c.exitCode, c.waitErr
}

// Stop asks the child to terminate and waits up to the stop timeout for
// it to exit, killing it otherwise. ctx bounds the whole operation;
// cancelling it kills the child immediately. Stop releases the control
// client and is safe to call more than once.
func (c *Child) Stop(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.stopErr = c.stop(ctx)
	})
	return c.stopErr
}

func (c *Child) stop(ctx context.Context) error {
	defer c.client.Close()
	if c.monitor != nil {
		c.monitor.Stop()
	}

	select {
	case <-c.done:
		return nil
	default:
	}

	response := c.client.Terminate(ctx, c.stopTimeout)
	if err := response.Err(); err != nil {
		c.logger.Warn("terminate request failed", "error", err)
	}

	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return nil
	case <-timer.C:
		c.logger.Warn("child did not exit after terminate, killing", "stop_timeout", c.stopTimeout)
	case <-ctx.Done():
		c.logger.Warn("stop cancelled, killing child", "error", ctx.Err())
	}
	c.kill()
	return ErrKilled
}

// kill sends SIGKILL and waits for the reaper.
func (c *Child) kill() {
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.logger.Error("killing child failed", "error", err)
	}
	<-c.done
}
