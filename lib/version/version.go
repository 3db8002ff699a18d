// Copyright 2026 The Pits n' Giggles Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

const shortCommitLength = 7

// stamp is the resolved build identity: ldflags values where injected,
// otherwise the toolchain's VCS settings.
type stamp struct {
	commit    string
	dirty     bool
	buildTime string
}

var resolved = sync.OnceValue(func() stamp {
	settings := map[string]string{}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			settings[setting.Key] = setting.Value
		}
	}
	return resolve(settings)
})

// resolve merges the ldflags variables with VCS build settings keyed as
// in debug.BuildInfo (vcs.revision, vcs.time, vcs.modified).
func resolve(settings map[string]string) stamp {
	result := stamp{commit: GitCommit, dirty: GitDirty == "true", buildTime: BuildTime}

	if result.commit == "unknown" {
		if revision := settings["vcs.revision"]; revision != "" {
			if len(revision) > shortCommitLength {
				revision = revision[:shortCommitLength]
			}
			result.commit = revision
			result.dirty = settings["vcs.modified"] == "true"
		}
	}
	if result.buildTime == "unknown" {
		if vcsTime := settings["vcs.time"]; vcsTime != "" {
			result.buildTime = vcsTime
		}
	}
	return result
}

func (s stamp) info() string {
	dirty := ""
	if s.dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, s.commit, dirty, s.buildTime)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return resolved().info()
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Commit returns the git commit SHA.
func Commit() string {
	return resolved().commit
}

// Print writes "name" followed by Full to stdout.
func Print(name string) {
	Fprint(os.Stdout, name)
}

// Fprint writes "name" followed by Full to w.
func Fprint(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n", name, Full())
}
