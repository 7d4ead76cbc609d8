package semver

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestV_String(test *testing.T) {
	cases := []struct {
		v        V
		expected string
	}{
		{V{}, "0.0.0"},
		{V{Major: 1}, "1.0.0"},
		{V{Major: 1, Minor: 2, Patch: 3}, "1.2.3"},
		{V{PreRelease: "alfa"}, "0.0.0-alfa"},
		{V{BuildMetadata: []string{"tag1", "tag2"}}, "0.0.0+tag1.tag2"},
		{V{Major: 1, Minor: 2, Patch: 3, PreRelease: "beta", BuildMetadata: []string{"x64"}}, "1.2.3-beta+x64"},
	}

	for _, c := range cases {
		require.Equal(test, c.expected, c.v.String(), "%#v", c.v)
	}
}

func TestV_WithRevision(test *testing.T) {
	base := V{Minor: 1, BuildMetadata: []string{"linux"}}
	cases := []struct {
		settings []debug.BuildSetting
		expected string
	}{
		{nil, "0.1.0+linux"},
		{[]debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}}, "0.1.0+linux.0123456"},
		{[]debug.BuildSetting{{Key: "vcs.revision", Value: "abc"}, {Key: "vcs.modified", Value: "true"}}, "0.1.0+linux.abc.dirty"},
		{[]debug.BuildSetting{{Key: "vcs.modified", Value: "true"}}, "0.1.0+linux"},
	}
	for _, c := range cases {
		require.Equal(test, c.expected, base.WithRevision(c.settings).String())
	}
	require.Equal(test, []string{"linux"}, base.BuildMetadata, "receiver must stay untouched")
	require.NotEmpty(test, Binary(base))
}
