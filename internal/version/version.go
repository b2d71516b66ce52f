package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns the version line reported by the version endpoint,
// e.g. "tofnode: 0.3.1 (a1b2c3d)".
func String() string {
	return fmt.Sprintf("tofnode: %s (%s)", Version, GitSHA)
}
