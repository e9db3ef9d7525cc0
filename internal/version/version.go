package version

import (
	"runtime/debug"
)

// Set through -ldflags "-X github.com/fmueller/vidscribe/internal/version.Version=..." on release builds.
var (
	Version = "1.0.0"
	Commit  = ""
)

// Resolve returns the full version string. Development builds carry the
// short VCS revision recorded by the toolchain, with a -dirty marker when
// the working tree had local modifications.
func Resolve() string {
	return resolveVersion(Version, Commit, readBuildSettings)
}

func resolveVersion(base, commit string, settings func() map[string]string) string {
	if base == "" {
		base = "0.0.0"
	}

	suffix := computeSuffix(commit, settings)
	if suffix == "" {
		return base
	}
	return base + "-" + suffix
}

func computeSuffix(commit string, settings func() map[string]string) string {
	if commit != "" {
		return shortRevision(commit)
	}

	values := settings()
	revision := shortRevision(values["vcs.revision"])
	if revision == "" {
		return ""
	}
	if values["vcs.modified"] == "true" {
		return revision + "-dirty"
	}
	return revision
}

func shortRevision(revision string) string {
	if len(revision) > 7 {
		return revision[:7]
	}
	return revision
}

func readBuildSettings() map[string]string {
	values := make(map[string]string)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return values
	}
	for _, setting := range info.Settings {
		values[setting.Key] = setting.Value
	}
	return values
}
