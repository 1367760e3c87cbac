// Package version exposes the build identity stamped into the venuedesk
// binaries via -ldflags; the status endpoint and the startup banner read it.
package version

var (
	// Version is the semantic version (set via ldflags).
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash (set via ldflags).
	GitCommit = "unknown"

	// BuildTime is the build timestamp (set via ldflags).
	BuildTime = "unknown"
)

// Info returns the one-line version string used in logs and /status.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
