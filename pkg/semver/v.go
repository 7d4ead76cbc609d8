// Package semver renders semantic version fingerprints of the binaries.
package semver

import (
	"runtime/debug"
	"strconv"
	"strings"
)

// V is structured semantic version representation
type V struct {
	Major, Minor, Patch uint
	PreRelease          string
	BuildMetadata       []string
}

func (v V) String() string {
	buf := strings.Builder{}
	buf.WriteString(strconv.FormatUint(uint64(v.Major), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(v.Minor), 10))
	buf.WriteByte('.')
	buf.WriteString(strconv.FormatUint(uint64(v.Patch), 10))
	if v.PreRelease != "" {
		buf.WriteByte('-')
		buf.WriteString(v.PreRelease)
	}
	if len(v.BuildMetadata) > 0 {
		buf.WriteByte('+')
		buf.WriteString(strings.Join(v.BuildMetadata, "."))
	}

	return buf.String()
}

// WithRevision - returns copy of v with short VCS revision appended to build metadata.
// A "dirty" tag follows the revision when the tree had uncommitted changes.
func (v V) WithRevision(settings []debug.BuildSetting) V {
	revision, dirty := "", false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return v
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	meta := append(append([]string{}, v.BuildMetadata...), revision)
	if dirty {
		meta = append(meta, "dirty")
	}
	v.BuildMetadata = meta
	return v
}

// Binary - version of running binary, v with VCS revision if the build info has it.
func Binary(v V) string {
	if info, ok := debug.ReadBuildInfo(); ok {
		v = v.WithRevision(info.Settings)
	}
	return v.String()
}
