// Package version holds build information injected with -ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// BuildInfo is the build information served by GET /api/version.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

func Info() BuildInfo {
	return BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}
}

// String formats the build information for the version command.
func (b BuildInfo) String() string {
	return fmt.Sprintf("Card Runner %s\nBuild Time: %s\nGit Commit: %s", b.Version, b.BuildTime, b.GitCommit)
}
