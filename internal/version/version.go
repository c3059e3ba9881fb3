// Package version exposes the build metadata stamped into release binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden via ldflags on release builds.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Version returns the release version. Plain `go install` builds carry no
// ldflags, so the module version from the build info stands in.
func Version() string {
	if version != "dev" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return version
}

// BuildInfo renders the one-line banner printed by the version command.
func BuildInfo() string {
	return fmt.Sprintf("datasmith %s (commit: %s, built: %s, go: %s)",
		Version(), commit, date, runtime.Version())
}
