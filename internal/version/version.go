// Package version holds build metadata injected with
//
//	-ldflags "-X github.com/smazurov/gpionode/internal/version.Version=..."
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build metadata reported by GET /api/version.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build metadata. A binary built without ldflags falls
// back to the VCS revision recorded by the Go toolchain.
func Get() Info {
	commit := GitCommit
	if commit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					commit = s.Value
				}
			}
		}
	}
	return Info{
		Version:   Version,
		GitCommit: commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String formats Info for `gpionode --version`.
func (i Info) String() string {
	return fmt.Sprintf("gpionode %s (commit %s, built %s, %s %s)", i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}
