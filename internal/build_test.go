package internal

import (
	"runtime/debug"
	"testing"
	"time"
)

func Test_readBuild(t *testing.T) {
	settings := func(kv ...string) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			info := &debug.BuildInfo{}
			for i := 0; i < len(kv); i += 2 {
				info.Settings = append(info.Settings, debug.BuildSetting{Key: kv[i], Value: kv[i+1]})
			}
			return info, true
		}
	}

	tests := map[string]struct {
		read        func() (*debug.BuildInfo, bool)
		want        Build
		wantVersion string
	}{
		"ok, no build info": {
			read:        func() (*debug.BuildInfo, bool) { return nil, false },
			want:        Build{Revision: "unknown"},
			wantVersion: "unknown",
		},
		"ok, clean checkout": {
			read: settings(
				"vcs.revision", "0123456789abcdef0123",
				"vcs.time", "2024-03-01T10:00:00Z",
				"vcs.modified", "false",
			),
			want: Build{
				Revision: "0123456789abcdef0123",
				Time:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			},
			wantVersion: "0123456789ab",
		},
		"ok, modified checkout": {
			read:        settings("vcs.revision", "abc", "vcs.modified", "true"),
			want:        Build{Revision: "abc", Modified: true},
			wantVersion: "abc-dirty",
		},
		"ok, malformed time is ignored": {
			read:        settings("vcs.revision", "abc", "vcs.time", "yesterday"),
			want:        Build{Revision: "abc"},
			wantVersion: "abc",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := readBuild(tc.read)
			if got.Revision != tc.want.Revision || !got.Time.Equal(tc.want.Time) || got.Modified != tc.want.Modified {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}

			if v := got.Version(); v != tc.wantVersion {
				t.Errorf("got version %q, want %q", v, tc.wantVersion)
			}
		})
	}
}
