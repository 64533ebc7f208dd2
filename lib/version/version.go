// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/sk8brd/sk8brd/lib/version.GitCommit=$(git rev-parse --short HEAD)"
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

var vcsOnce sync.Once

// fillFromBuildInfo copies the toolchain's VCS stamp into GitCommit,
// GitDirty and BuildTime when ldflags did not set them.
func fillFromBuildInfo() {
	vcsOnce.Do(func() {
		if GitCommit != "unknown" {
			return
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				GitCommit = setting.Value[:min(len(setting.Value), 7)]
			case "vcs.modified":
				GitDirty = setting.Value
			case "vcs.time":
				if BuildTime == "unknown" {
					BuildTime = setting.Value
				}
			}
		}
	})
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	fillFromBuildInfo()
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Client returns the identifier the client sends in Hello, e.g.
// "sk8brd/0.1.0-dev".
func Client(binary string) string {
	return binary + "/" + Version
}
