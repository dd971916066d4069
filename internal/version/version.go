// Package version carries build metadata injected with -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
)

// Set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" toml:"version"`
	GitCommit string `json:"git_commit" toml:"git_commit"`
	BuildDate string `json:"build_date" toml:"build_date"`
	BuildID   string `json:"build_id" toml:"build_id"`
	GoVersion string `json:"go_version" toml:"go_version"`
	Compiler  string `json:"compiler" toml:"compiler"`
	Platform  string `json:"platform" toml:"platform"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line form printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s %s)", i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}
