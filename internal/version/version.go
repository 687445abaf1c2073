// Package version reports how the cardshell binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X github.com/dailycards/cardshell/internal/version.Version=v1.2.3".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const unknown = "unknown"

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time" yaml:"build_time"`
	Dirty     bool      `json:"dirty" yaml:"dirty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
}

// vcs holds what the toolchain stamped into the binary.
type vcs struct {
	module   string
	revision string
	time     string
	modified bool
}

func readVCS() vcs {
	var v vcs
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	if info.Main.Version != "(devel)" {
		v.module = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			v.revision = s.Value
		case "vcs.time":
			v.time = s.Value
		case "vcs.modified":
			v.modified = s.Value == "true"
		}
	}
	return v
}

// GetBuildInfo collects the linker-provided values, falling back to the
// VCS stamp the Go toolchain embeds.
func GetBuildInfo() *BuildInfo {
	stamp := readVCS()

	info := &BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseTime(BuildTime),
		Dirty:     stamp.modified,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if info.Version == "" || info.Version == "dev" {
		switch {
		case stamp.module != "":
			info.Version = stamp.module
		case len(stamp.revision) >= 7:
			info.Version = "dev-" + stamp.revision[:7]
		default:
			info.Version = "dev"
		}
	}
	if info.GitCommit == "" || info.GitCommit == unknown {
		info.GitCommit = unknown
		if stamp.revision != "" {
			info.GitCommit = stamp.revision
		}
	}
	if info.BuildTime.IsZero() {
		info.BuildTime = parseTime(stamp.time)
	}
	return info
}

// GetShortVersion returns "v1.2.3 (abcdef0)", "dev-abcdef0" or "dev".
func GetShortVersion() string {
	return GetBuildInfo().Short()
}

// Short formats the version with an abbreviated commit.
func (b *BuildInfo) Short() string {
	if b.GitCommit == unknown || len(b.GitCommit) < 7 {
		return b.Version
	}
	commit := b.GitCommit[:7]
	if strings.HasPrefix(b.Version, "dev") {
		return "dev-" + commit
	}
	return fmt.Sprintf("%s (%s)", b.Version, commit)
}

// String is the multi-line form printed by `cardshell version`.
func (b *BuildInfo) String() string {
	lines := []string{"cardshell " + b.Version}
	if b.GitCommit != unknown {
		commit := b.GitCommit
		if b.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, "  commit:   "+commit)
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "  built:    "+b.BuildTime.UTC().Format(time.RFC3339))
	}
	lines = append(lines,
		"  go:       "+b.GoVersion,
		"  platform: "+b.Platform)
	return strings.Join(lines, "\n")
}

// IsRelease reports whether the binary carries a release version.
func (b *BuildInfo) IsRelease() bool {
	return b.Version != "dev" && !strings.HasPrefix(b.Version, "dev-")
}

func parseTime(s string) time.Time {
	if s == "" || s == unknown {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
