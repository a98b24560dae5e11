package version

import (
	"runtime/debug"
	"testing"
)

func TestWithVCS(t *testing.T) {
	base := Info{Version: "dev", Commit: "none", BuildDate: "unknown", GoVersion: "go1.25.5"}
	stamp := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-14T09:26:53Z"},
	}

	tests := []struct {
		name     string
		in       Info
		settings []debug.BuildSetting
		want     Info
	}{
		{
			name:     "fills missing values from vcs",
			in:       base,
			settings: stamp,
			want:     Info{Version: "dev", Commit: "0123456", BuildDate: "2026-03-14T09:26:53Z", GoVersion: "go1.25.5"},
		},
		{
			name:     "ldflags win",
			in:       Info{Version: "v1.0.0", Commit: "abc1234", BuildDate: "2026-01-01", GoVersion: "go1.25.5"},
			settings: stamp,
			want:     Info{Version: "v1.0.0", Commit: "abc1234", BuildDate: "2026-01-01", GoVersion: "go1.25.5"},
		},
		{
			name: "no vcs stamp",
			in:   base,
			want: base,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withVCS(tt.in, tt.settings); got != tt.want {
				t.Errorf("withVCS() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	got := Info{Version: "v1.0.0", Commit: "abc1234", BuildDate: "2026-01-01", GoVersion: "go1.25.5"}.String()
	want := "emerald v1.0.0 (commit=abc1234, built=2026-01-01, go=go1.25.5)"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
