// Package version exposes build metadata injected via -ldflags.
package version

// Set at build time:
//
//	go build -ldflags "-X github.com/rshade/phonelookup/pkg/version.version=v1.2.3"
//
//nolint:gochecknoglobals // ldflags injection target
var (
	version = "dev"
	commit  = "none"
)

// GetVersion returns the build version, or "dev" for local builds.
func GetVersion() string {
	return version
}

// GetCommit returns the git commit the binary was built from.
func GetCommit() string {
	return commit
}
