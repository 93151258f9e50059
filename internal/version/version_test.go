package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithBuildInfo(t *testing.T) {
	tests := []struct {
		name string
		in   Build
		bi   debug.BuildInfo
		want Build
	}{
		{
			name: "module version and vcs stamp",
			in:   Build{Version: "dev", Commit: "unknown", Date: "unknown"},
			bi: debug.BuildInfo{
				Main: debug.Module{Version: "v0.3.1"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
				},
			},
			want: Build{Version: "v0.3.1", Commit: "abc123", Date: "2026-10-01T12:00:00Z"},
		},
		{
			name: "ldflags win",
			in:   Build{Version: "v1.0.0", Commit: "deadbeef", Date: "2026-09-30"},
			bi: debug.BuildInfo{
				Main:     debug.Module{Version: "v0.3.1"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
			},
			want: Build{Version: "v1.0.0", Commit: "deadbeef", Date: "2026-09-30"},
		},
		{
			name: "devel build keeps dev",
			in:   Build{Version: "dev", Commit: "unknown", Date: "unknown"},
			bi:   debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: Build{Version: "dev", Commit: "unknown", Date: "unknown"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.withBuildInfo(&tt.bi))
		})
	}
}

func TestString(t *testing.T) {
	b := Build{Version: "v1.0.0", Commit: "deadbeef", Platform: "linux/amd64"}
	assert.Equal(t, "idscan v1.0.0 (deadbeef, linux/amd64)", b.String())
}
