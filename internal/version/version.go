// Package version holds build-time version information.
package version

// Overridden at build time:
// go build -ldflags "-X driftmap/internal/version.Version=0.5.0 -X driftmap/internal/version.Commit=abc123"
var (
	// Version is the semantic version of driftmap.
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time).
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time).
	BuildDate = "unknown"
)

// Info returns the version, with the short commit when one was stamped.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}

// Full returns the complete build description.
func Full() string {
	return "driftmap version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}
