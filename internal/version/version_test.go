package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"unknown", time.Time{}},
		{"garbage", time.Time{}},
		{"2024-03-01T10:20:30Z", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-03-01 10:20:30", time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, tt.want.Equal(parseTime(tt.in)), "got %v", parseTime(tt.in))
		})
	}
}

func TestInfoFormatting(t *testing.T) {
	release := Info{
		Version:   "v1.2.0",
		GitCommit: "0123456789abcdef",
		BuildTime: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Dirty:     true,
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
	}
	assert.True(t, release.IsRelease())
	assert.Equal(t, "v1.2.0 (0123456)", release.Short())
	assert.Equal(t, "Version: v1.2.0\nCommit: 0123456789abcdef (dirty)\nBuilt: 2024-03-01T10:00:00Z\nGo: go1.24.4\nPlatform: linux/amd64", release.Detailed())

	dev := Info{Version: "dev-0123456", GitCommit: "unknown", GoVersion: "go1.24.4", Platform: "linux/amd64"}
	assert.False(t, dev.IsRelease())
	assert.Equal(t, "dev-0123456", dev.Short())
	assert.Equal(t, "Version: dev-0123456\nGo: go1.24.4\nPlatform: linux/amd64", dev.Detailed())
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
