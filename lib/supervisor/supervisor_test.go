// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/config"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/control"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/endpoint"
	"github.com/ashwin-nat/pits-n-giggles-sub005/lib/testutil"
)

// childModeEnv turns the test binary into a child process. Modes:
//
//	serve   serve control requests until terminated
//	linger  like serve, but keep running after the terminate ack
//	silent  never bind the control endpoint
//	exit    exit immediately with code 3
const childModeEnv = "PNG_SUPERVISOR_TEST_CHILD"

func TestMain(m *testing.M) {
	if mode := os.Getenv(childModeEnv); mode != "" {
		os.Exit(runChild(mode))
	}
	goleak.VerifyTestMain(m)
}

func runChild(mode string) int {
	switch mode {
	case "exit":
		return 3
	case "silent":
		time.Sleep(time.Minute)
		return 0
	}

	target, err := endpoint.Parse(os.Getenv(EndpointEnvVar))
	if err != nil {
		fmt.Fprintf(os.Stderr, "child: %v\n", err)
		return 1
	}
	server, err := control.NewServer(control.ServerConfig{
		Endpoint:     target,
		Name:         "supervised-child",
		PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "child: %v\n", err)
		return 1
	}
	err = server.Serve(context.Background(), func(_ context.Context, request control.Request) (control.Response, error) {
		if request.Cmd == "status" {
			return control.Response{"pid": os.Getpid()}, nil
		}
		return nil, fmt.Errorf("unknown command %q", request.Cmd)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "child: %v\n", err)
		return 1
	}
	if mode == "linger" {
		time.Sleep(time.Minute)
	}
	return 0
}

const testTimeout = 10 * time.Second

func childConfig(t *testing.T, mode string) Config {
	t.Helper()
	return Config{
		Path:           os.Args[0],
		Args:           []string{"-test.run=^$"},
		Env:            []string{childModeEnv + "=" + mode},
		Stderr:         os.Stderr,
		Endpoint:       endpoint.Loopback(testutil.UnusedLoopbackPort(t)),
		StartupTimeout: testTimeout,
		StopTimeout:    2 * time.Second,
		ConnectTimeout: 200 * time.Millisecond,
	}
}

func startChild(t *testing.T, config Config) *Child {
	t.Helper()
	child, err := Start(context.Background(), config)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		child.Stop(context.Background())
		child.Wait()
	})
	return child
}

func TestStartRequestStop(t *testing.T) {
	child := startChild(t, childConfig(t, "serve"))

	response := child.Request(context.Background(), "status", nil, time.Second)
	if err := response.Err(); err != nil {
		t.Fatalf("status: %v", err)
	}
	if got := fmt.Sprint(response["pid"]); got != strconv.Itoa(child.Pid()) {
		t.Errorf("child reported pid %s, Pid() = %d", got, child.Pid())
	}

	pong := child.Client().Ping(context.Background(), time.Second)
	if pong.Source() != "supervised-child" {
		t.Errorf("ping source = %q", pong.Source())
	}

	if err := child.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	exitCode, err := child.Wait()
	if exitCode != 0 || err != nil {
		t.Errorf("Wait = %d, %v; want clean exit", exitCode, err)
	}
	if child.Healthy() {
		t.Error("Healthy() = true after exit")
	}
	if err := child.Stop(context.Background()); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestStopKillsChildThatKeepsRunning(t *testing.T) {
	config := childConfig(t, "linger")
	config.StopTimeout = 200 * time.Millisecond
	child := startChild(t, config)

	started := time.Now()
	if err := child.Stop(context.Background()); !errors.Is(err, ErrKilled) {
		t.Fatalf("Stop = %v, want ErrKilled", err)
	}
	if elapsed := time.Since(started); elapsed > testTimeout {
		t.Errorf("Stop took %v", elapsed)
	}
	if exitCode, _ := child.Wait(); exitCode != -1 {
		t.Errorf("exit code = %d, want -1 for a killed child", exitCode)
	}
}

func TestStartFailsWhenChildExits(t *testing.T) {
	_, err := Start(context.Background(), childConfig(t, "exit"))
	if !errors.Is(err, ErrExited) {
		t.Fatalf("Start = %v, want ErrExited", err)
	}
}

func TestStartTimesOutOnSilentChild(t *testing.T) {
	config := childConfig(t, "silent")
	config.StartupTimeout = 300 * time.Millisecond

	started := time.Now()
	_, err := Start(context.Background(), config)
	if !errors.Is(err, ErrStartupTimeout) {
		t.Fatalf("Start = %v, want ErrStartupTimeout", err)
	}
	if elapsed := time.Since(started); elapsed > testTimeout {
		t.Errorf("Start took %v", elapsed)
	}
}

func TestHeartbeatReportsDeadChild(t *testing.T) {
	unhealthy := make(chan int, 1)
	config := childConfig(t, "serve")
	config.Heartbeat = &control.MonitorConfig{
		Interval:         50 * time.Millisecond,
		Timeout:          100 * time.Millisecond,
		FailureThreshold: 1,
		OnUnhealthy:      func(failures int, _ error) { unhealthy <- failures },
	}
	child := startChild(t, config)

	if !child.Healthy() {
		t.Fatal("Healthy() = false right after start")
	}
	if err := child.cmd.Process.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	testutil.RequireClosed(t, child.Done(), testTimeout, "child exit")

	failures := testutil.RequireReceive(t, unhealthy, testTimeout, "OnUnhealthy after child death")
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
	if err := child.Stop(context.Background()); err != nil {
		t.Errorf("Stop after exit = %v", err)
	}
}

func TestStartRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"no path", Config{Endpoint: endpoint.Loopback(5557)}},
		{"ephemeral endpoint", Config{Path: os.Args[0], Endpoint: endpoint.Loopback(0)}},
		{"remote endpoint", Config{Path: os.Args[0], Endpoint: endpoint.Endpoint{Kind: endpoint.TCP, Host: "10.0.0.5", Port: 5557}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Start(context.Background(), test.config); err == nil {
				t.Error("Start succeeded")
			}
		})
	}
}

func TestConfigFromControl(t *testing.T) {
	settings := config.Default().Control
	settings.Endpoint = endpoint.Loopback(6001)
	settings.HeartbeatInterval = 500 * time.Millisecond
	settings.HeartbeatFailureThreshold = 4

	got := ConfigFromControl(settings)
	if got.Endpoint != settings.Endpoint {
		t.Errorf("Endpoint = %s, want %s", got.Endpoint, settings.Endpoint)
	}
	if got.RequestTimeout != settings.RequestTimeout || got.ConnectTimeout != settings.ConnectTimeout {
		t.Errorf("client timeouts = %s/%s, want %s/%s",
			got.RequestTimeout, got.ConnectTimeout, settings.RequestTimeout, settings.ConnectTimeout)
	}
	if got.Heartbeat == nil {
		t.Fatal("Heartbeat = nil")
	}
	if got.Heartbeat.Interval != 500*time.Millisecond || got.Heartbeat.FailureThreshold != 4 {
		t.Errorf("heartbeat = %+v", *got.Heartbeat)
	}
	// The 5s request timeout is capped at the heartbeat interval.
	if got.Heartbeat.Timeout != 500*time.Millisecond {
		t.Errorf("heartbeat timeout = %s, want 500ms", got.Heartbeat.Timeout)
	}
}

func TestConfigFromControlHeartbeatSupervisesChild(t *testing.T) {
	settings := config.Default().Control
	settings.Endpoint = endpoint.Loopback(testutil.UnusedLoopbackPort(t))
	settings.HeartbeatInterval = 50 * time.Millisecond
	settings.HeartbeatFailureThreshold = 2

	cfg := ConfigFromControl(settings)
	cfg.Path = os.Args[0]
	cfg.Env = []string{childModeEnv + "=serve"}
	cfg.StartupTimeout = testTimeout
	unhealthy := make(chan int, 1)
	cfg.Heartbeat.OnUnhealthy = func(failures int, _ error) {
		select {
		case unhealthy <- failures:
		default:
		}
	}

	child, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { child.Stop(context.Background()) })
	if !child.Healthy() {
		t.Error("child unhealthy right after start")
	}

	if err := child.cmd.Process.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if failures := testutil.RequireReceive(t, unhealthy, testTimeout, "heartbeat noticing the dead child"); failures != 2 {
		t.Errorf("failures at unhealthy = %d, want 2", failures)
	}
}
