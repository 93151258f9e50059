// Package version reports the build of the idscan binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set by ldflags, e.g. -X github.com/MeKo-Tech/idscan/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	// Platform is GOOS/GOARCH.
	Platform string `json:"platform"`
}

// Info returns the ldflags values, falling back to module build info for
// binaries built with go install.
func Info() Build {
	b := Build{
		Version:  Version,
		Commit:   GitCommit,
		Date:     BuildDate,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	return b.withBuildInfo(bi)
}

func (b Build) withBuildInfo(bi *debug.BuildInfo) Build {
	if b.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		b.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		}
	}
	return b
}

// String is the one-line form used in logs.
func (b Build) String() string {
	return fmt.Sprintf("idscan %s (%s, %s)", b.Version, b.Commit, b.Platform)
}
