// Package version reports the gateway's build information.
//
// Release builds stamp the variables with ldflags:
//
//	go build -ldflags "-X github.com/angeloszaimis/instance-gateway/internal/version.Version=1.0.0 \
//	                   -X github.com/angeloszaimis/instance-gateway/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/angeloszaimis/instance-gateway/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String formats the build information, e.g. "1.0.0 (abc1234) built 2026-01-15T10:00:00Z".
// Unstamped builds fall back to the VCS data the toolchain embedded.
func String() string {
	commit, built := Commit, BuildTime
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "unknown":
				commit = shorten(s.Value)
			case s.Key == "vcs.time" && built == "unknown":
				built = s.Value
			}
		}
	}
	return fmt.Sprintf("%s (%s) built %s", Version, commit, built)
}

func shorten(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
