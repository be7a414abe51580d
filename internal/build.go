package internal

import (
	"log/slog"
	"runtime/debug"
	"time"
)

// Build describes the commit a binary was built from.
type Build struct {
	Revision string
	Time     time.Time
	Modified bool
}

// BuildInfo is read from the binary once at startup. Binaries built outside
// of a checkout report an "unknown" revision.
var BuildInfo = readBuild(debug.ReadBuildInfo)

func readBuild(read func() (*debug.BuildInfo, bool)) Build {
	b := Build{Revision: "unknown"}

	info, ok := read()
	if !ok {
		return b
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			b.Revision = setting.Value
		case "vcs.time":
			// Malformed times are ignored, they only end up in logs.
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err == nil {
				b.Time = t
			}
		case "vcs.modified":
			b.Modified = setting.Value == "true"
		}
	}

	return b
}

// Version is the short form of the revision, shown in page footers and used
// to bust asset caches.
func (b Build) Version() string {
	v := b.Revision
	if len(v) > 12 {
		v = v[:12]
	}
	if b.Modified {
		v += "-dirty"
	}
	return v
}

func (b Build) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("revision", b.Revision),
		slog.Time("time", b.Time),
		slog.Bool("modified", b.Modified),
	)
}
