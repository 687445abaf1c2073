package version

import (
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withLinkerValues(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestGetBuildInfoUsesLinkerValues(t *testing.T) {
	withLinkerValues(t, "v1.4.0", "0123456789abcdef", "2026-03-01T10:00:00Z")

	info := GetBuildInfo()
	assert.Equal(t, "v1.4.0", info.Version)
	assert.Equal(t, "0123456789abcdef", info.GitCommit)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), info.BuildTime)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.True(t, info.IsRelease())
	assert.Equal(t, "v1.4.0 (0123456)", GetShortVersion())
}

func TestShort(t *testing.T) {
	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{"release", BuildInfo{Version: "v2.0.0", GitCommit: "abcdef0123"}, "v2.0.0 (abcdef0)"},
		{"dev with commit", BuildInfo{Version: "dev", GitCommit: "abcdef0123"}, "dev-abcdef0"},
		{"no commit", BuildInfo{Version: "v2.0.0", GitCommit: "unknown"}, "v2.0.0"},
		{"short commit", BuildInfo{Version: "dev", GitCommit: "abc"}, "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Short())
		})
	}
}

func TestString(t *testing.T) {
	info := BuildInfo{
		Version:   "v1.0.0",
		GitCommit: "abcdef0123",
		Dirty:     true,
		BuildTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
	}

	out := info.String()
	assert.True(t, strings.HasPrefix(out, "cardshell v1.0.0"))
	assert.Contains(t, out, "abcdef0123 (dirty)")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, "linux/amd64")

	bare := BuildInfo{Version: "dev", GitCommit: "unknown", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	assert.NotContains(t, bare.String(), "commit:")
	assert.NotContains(t, bare.String(), "built:")
	assert.False(t, bare.IsRelease())
}

func TestParseTime(t *testing.T) {
	assert.True(t, parseTime("").IsZero())
	assert.True(t, parseTime("unknown").IsZero())
	assert.True(t, parseTime("yesterday").IsZero())
	assert.Equal(t, 2026, parseTime("2026-05-06 07:08:09").Year())
	assert.Equal(t, 2026, parseTime("2026-05-06T07:08:09").Year())
}
