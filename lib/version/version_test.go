// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

// withInjected sets the ldflags variables for the duration of a test.
func withInjected(t *testing.T, commit, dirty, buildTime string) {
	t.Helper()
	savedCommit, savedDirty, savedTime := GitCommit, GitDirty, BuildTime
	GitCommit, GitDirty, BuildTime = commit, dirty, buildTime
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime = savedCommit, savedDirty, savedTime
	})
}

func TestResolvePrefersInjectedValues(t *testing.T) {
	withInjected(t, "abc1234", "true", "2026-03-01T12:00:00Z")

	got := resolve(map[string]string{
		"vcs.revision": "ffffffffffffffffffff",
		"vcs.time":     "2020-01-01T00:00:00Z",
	})
	if got.commit != "abc1234" || !got.dirty || got.buildTime != "2026-03-01T12:00:00Z" {
		t.Errorf("resolve = %+v", got)
	}
	if info := got.info(); info != Version+" (abc1234-dirty, 2026-03-01T12:00:00Z)" {
		t.Errorf("info = %q", info)
	}
}

func TestResolveFallsBackToVCSSettings(t *testing.T) {
	withInjected(t, "unknown", "false", "unknown")

	got := resolve(map[string]string{
		"vcs.revision": "0123456789abcdef",
		"vcs.time":     "2026-02-10T08:30:00Z",
		"vcs.modified": "true",
	})
	if got.commit != "0123456" {
		t.Errorf("commit = %q, want 0123456", got.commit)
	}
	if !got.dirty {
		t.Error("dirty = false, want true from vcs.modified")
	}
	if got.buildTime != "2026-02-10T08:30:00Z" {
		t.Errorf("buildTime = %q", got.buildTime)
	}
}

func TestResolveWithoutAnyStamp(t *testing.T) {
	withInjected(t, "unknown", "false", "unknown")

	got := resolve(nil)
	if info := got.info(); info != Version+" (unknown, unknown)" {
		t.Errorf("info = %q", info)
	}
}

func TestFprint(t *testing.T) {
	var buffer bytes.Buffer
	Fprint(&buffer, "png-broker")

	output := buffer.String()
	if !strings.HasPrefix(output, "png-broker "+Version) {
		t.Errorf("output = %q", output)
	}
	if !strings.Contains(output, runtime.Version()) {
		t.Errorf("output %q lacks Go version", output)
	}
}
