package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const appName = "vidscribe"

type Runtime struct {
	OS   string
	Arch string
}

func CurrentRuntime() Runtime {
	return Runtime{
		OS:   runtime.GOOS,
		Arch: NormalizeArch(runtime.GOARCH),
	}
}

func (r Runtime) String() string {
	return r.OS + "/" + r.Arch
}

func NormalizeArch(arch string) string {
	switch arch {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	default:
		return arch
	}
}

// DefaultWorkDirFor returns the directory that holds transient audio
// artifacts. Unknown platforms fall back to the system temp directory.
func DefaultWorkDirFor(goos, homeDir, xdgCacheHome, tempDir string) (string, error) {
	switch goos {
	case "linux":
		if xdgCacheHome != "" {
			return filepath.Join(xdgCacheHome, appName, "audio"), nil
		}
		if homeDir == "" {
			return "", errors.New("home directory is empty")
		}
		return filepath.Join(homeDir, ".cache", appName, "audio"), nil
	case "darwin":
		if homeDir == "" {
			return "", errors.New("home directory is empty")
		}
		return filepath.Join(homeDir, "Library", "Caches", appName, "audio"), nil
	default:
		if tempDir == "" {
			return "", fmt.Errorf("no work directory for OS %s", goos)
		}
		return filepath.Join(tempDir, appName), nil
	}
}

// ResolveWorkDir returns override when set, otherwise the platform default.
// xdgCacheHome is the caller's XDG_CACHE_HOME and only matters on linux.
func ResolveWorkDir(override, xdgCacheHome string) (string, error) {
	if override != "" {
		return filepath.Clean(override), nil
	}

	// An unresolvable home is reported by DefaultWorkDirFor when it matters.
	homeDir, _ := os.UserHomeDir()

	return DefaultWorkDirFor(runtime.GOOS, homeDir, xdgCacheHome, os.TempDir())
}
