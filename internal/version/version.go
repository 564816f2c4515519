// Package version carries build identification, injected at link time via
// -ldflags "-X".
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns the version with the commit SHA for logs.
func String() string {
	return Version + " (" + GitSHA + ")"
}
