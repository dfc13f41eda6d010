// Package version holds build-time version metadata for Pulseboard.
package version

import "fmt"

// Set via -ldflags at build time, e.g.
//
//	go build -ldflags "-X github.com/HerbHall/pulseboard/internal/version.Version=0.2.0"
var (
	Version = "0.1.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Info returns a human-readable version line for --version output.
func Info() string {
	return fmt.Sprintf("pulseboard %s (commit %s, built %s)", Version, Commit, Date)
}

// Map returns version metadata for inclusion in health responses.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
