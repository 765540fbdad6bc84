// Package version carries build metadata stamped in via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time, e.g.
// go build -ldflags "-X github.com/teranos/cadence/version.Version=v0.3.0"
var (
	CommitHash = "dev"
	BuildTime  = "unknown"
	Version    = "dev"
)

// Info contains version and build information
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("cadence %s (commit %s, built %s, %s)", i.Version, i.CommitHash, i.BuildTime, i.GoVersion)
}

// UserAgent identifies cadence to the services it calls
func UserAgent() string {
	return "cadence/" + Version
}
