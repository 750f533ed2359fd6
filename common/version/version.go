// Package version carries the build identity stamped in via ldflags.
package version

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash.
	GitCommit = "unknown"

	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// Info renders the full build identity on one line.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
