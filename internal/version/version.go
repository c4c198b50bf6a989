// Package version holds the build version, overridden at link time with
// -ldflags "-X github.com/lordrhodos/apicurio-studio/internal/version.Version=...".
package version

// Version is the designhub release.
var Version = "0.1.0-dev"

// GitCommit is the commit the binary was built from.
var GitCommit = ""

// Full returns the version with the commit, when known.
func Full() string {
	if GitCommit == "" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
