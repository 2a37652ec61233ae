// Package version exposes build information for the transcribed binary.
package version

import (
	"runtime/debug"
)

// Set at build time via -ldflags, e.g.
// -X github.com/skillsenselab/transcribed/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Info is the version block reported by the health endpoint.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

// Get returns the build information, filling gaps from the embedded VCS
// metadata when ldflags were not set.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = buildInfo.GoVersion
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = shorten(setting.Value)
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = setting.Value
				}
			}
		}
	}
	return info
}

func shorten(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
