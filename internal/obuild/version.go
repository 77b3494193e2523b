package obuild

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Commit stores the commit hash of this build, overridden via
// -ldflags "-X ...obuild.Commit=...". Empty unless the build pipeline sets
// it explicitly.
var Commit string

// CommitHash falls back to the VCS revision embedded by the Go toolchain
// (module-aware builds) when Commit was not set via ldflags.
var CommitHash = vcsRevision()

// RawTags holds the comma-separated build tags this binary was compiled
// with, set via -ldflags.
var RawTags string

// GoVersion records the Go toolchain version used to build this binary.
var GoVersion = runtime.Version()

// semanticVersion is the orbitd release version. Bumped by hand per
// release; has no relation to the module's own go.mod version directive.
const semanticVersion = "0.1.0"

// Version returns the semantic version string for this build.
func Version() string {
	return semanticVersion
}

// Tags returns the list of build tags this binary was compiled with.
func Tags() []string {
	if RawTags == "" {
		return nil
	}
	return strings.Split(RawTags, ",")
}

// vcsRevision reads the VCS revision embedded by the Go toolchain into the
// binary's build info, for module-aware builds that didn't set Commit via
// ldflags.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}

	return ""
}
