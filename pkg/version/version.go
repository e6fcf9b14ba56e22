package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X .../pkg/version.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo is the version block reported by the health endpoint
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetVersion returns the release version, or dev-<commit> for untagged builds
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if GitCommit != "unknown" && len(GitCommit) >= 8 {
		return fmt.Sprintf("dev-%s", GitCommit[:8])
	}
	return Version
}

// GetFullVersion returns a single-line description of the build
func GetFullVersion() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", GetVersion(), GitCommit, BuildDate, runtime.Version())
}

// GetBuildInfo returns the structured build description
func GetBuildInfo() *BuildInfo {
	return &BuildInfo{
		Version:   GetVersion(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}
