package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "/"},
		{"root", "/", "/"},
		{"relative", "a/b", "/a/b"},
		{"trailing separator", "/a/b/", "/a/b"},
		{"repeated separators", "//a///b//", "/a/b"},
		{"dot segments", "./a/./b/.", "/a/b"},
		{"parent resolved", "a/b/../c", "/a/c"},
		{"backslashes", `a\b\c`, "/a/b/c"},
		{"protocol", "file://a//b/", "file:///a/b"},
		{"protocol with root", "ftp:///", "ftp:///"},
		{"protocol parent", "mem://x/y/../z", "mem:///x/z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", "a", "a/b/c", "./a//b/", "/x/./y", "file://a/b", "s3://bucket//k/"}
	for _, in := range inputs {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestNormalizeEscapesRoot(t *testing.T) {
	for _, in := range []string{"..", "../a", "a/../..", "/a/b/../../../c", "file://../etc"} {
		_, err := Normalize(in)
		assert.ErrorIs(t, err, ErrPathEscapesRoot, "input %q", in)
	}
}

func TestNormalizeEmptyScheme(t *testing.T) {
	_, err := Normalize("://a")
	assert.ErrorIs(t, err, ErrMalformedURL)
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in         string
		wantParent string
		wantName   string
	}{
		{"/a/b/c", "/a/b", "c"},
		{"/a/b/c/", "/a/b", "c"},
		{"/a", "", "a"},
		{"a", "", "a"},
		{"/", "", ""},
	}
	for _, tt := range tests {
		parent, name := Split(tt.in)
		assert.Equal(t, tt.wantParent, parent, "parent of %q", tt.in)
		assert.Equal(t, tt.wantName, name, "name of %q", tt.in)
	}
}

func TestParseURL(t *testing.T) {
	t.Run("with scheme", func(t *testing.T) {
		scheme, p, err := ParseURL("sftp:///srv/data", "")
		require.NoError(t, err)
		assert.Equal(t, "sftp", scheme)
		assert.Equal(t, "/srv/data", p)
	})

	t.Run("default scheme", func(t *testing.T) {
		scheme, p, err := ParseURL("/srv/data", "file")
		require.NoError(t, err)
		assert.Equal(t, "file", scheme)
		assert.Equal(t, "/srv/data", p)
	})

	t.Run("missing scheme", func(t *testing.T) {
		_, _, err := ParseURL("/srv/data", "")
		assert.ErrorIs(t, err, ErrMalformedURL)
	})

	t.Run("query and fragment preserved", func(t *testing.T) {
		scheme, p, err := ParseURL("s3:///a/b?versionId=3#frag", "")
		require.NoError(t, err)
		assert.Equal(t, "s3", scheme)
		assert.Equal(t, "/a/b?versionId=3#frag", p)
	})

	t.Run("round trip", func(t *testing.T) {
		for _, url := range []string{"file:///a", "mem://x/y", "s3:///k?x=1"} {
			scheme, p, err := ParseURL(url, "")
			require.NoError(t, err)
			assert.Equal(t, url, JoinProtocol(scheme, p))
		}
	})
}

func TestTrim(t *testing.T) {
	assert.Equal(t, "/", Trim(""))
	assert.Equal(t, "/", Trim("/"))
	assert.Equal(t, "/a/b/", Trim("a/b"))
	assert.Equal(t, "/a/b/", Trim("/a/b/"))
}

func TestExt(t *testing.T) {
	assert.Equal(t, "json", Ext("/a/config.json"))
	assert.Equal(t, "gz", Ext("archive.tar.gz"))
	assert.Equal(t, "", Ext("Makefile"))
	assert.Equal(t, "gitignore", Ext(".gitignore"))
}

func TestIsWithin(t *testing.T) {
	assert.True(t, IsWithin("/a/b", "/a"))
	assert.True(t, IsWithin("/a", "/a"))
	assert.True(t, IsWithin("/anything", "/"))
	assert.False(t, IsWithin("/ab", "/a"))
	assert.False(t, IsWithin("/a", "/a/b"))
}

func TestJoin(t *testing.T) {
	got, err := Join("/a", "b", "../c")
	require.NoError(t, err)
	assert.Equal(t, "/a/c", got)

	_, err = Join("/", "..")
	assert.ErrorIs(t, err, ErrPathEscapesRoot)
}
