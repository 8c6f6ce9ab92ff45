package version

import (
	"fmt"
	"runtime/debug"
)

// Set through -ldflags "-X .../internal/version.Version=v1.2.3" (likewise
// Commit and BuildTime). Empty values fall back to the VCS stamp the Go
// toolchain embeds in module builds.
var (
	Version   string
	Commit    string
	BuildTime string
)

const unknown = "unknown"

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
}

func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return resolve(bi)
}

func resolve(bi *debug.BuildInfo) Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}

	if bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	if info.BuildTime == "" {
		info.BuildTime = unknown
	}
	return info
}

// String is the one-line form printed by `etl version`.
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, commit, i.BuildTime)
}
