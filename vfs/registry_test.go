package vfs

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/driver/memory"
	"github.com/gobeaver/nodefs/paths"
)

func TestRegister(t *testing.T) {
	reg := NewRegistry()

	t.Run("nil backend", func(t *testing.T) {
		assert.ErrorIs(t, reg.Register("mem", nil), ErrNilBackend)
	})

	t.Run("invalid names", func(t *testing.T) {
		for _, name := range []string{"", "1mem", "my mem", "mem:", "a/b"} {
			assert.ErrorIs(t, reg.Register(name, memory.New()), ErrInvalidProtocol, name)
		}
	})

	t.Run("replace", func(t *testing.T) {
		first, second := memory.New(), memory.New()
		require.NoError(t, reg.Register("mem", first))
		require.NoError(t, reg.Register("mem", second))

		fs, err := reg.Resolve("mem")
		require.NoError(t, err)
		assert.Same(t, second, fs)
	})

	t.Run("protocols sorted", func(t *testing.T) {
		require.NoError(t, reg.Register("s3-archive", memory.New()))
		require.NoError(t, reg.Register("assets", memory.New()))
		assert.Equal(t, []string{"assets", "mem", "s3-archive"}, reg.Protocols())
	})

	t.Run("unregister", func(t *testing.T) {
		require.NoError(t, reg.Unregister("assets"))
		assert.ErrorIs(t, reg.Unregister("assets"), ErrUnknownProtocol)

		_, err := reg.Resolve("assets")
		assert.ErrorIs(t, err, ErrUnknownProtocol)
	})
}

func TestRegistryURLOperations(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	require.NoError(t, reg.Write(ctx, "mem:///docs/a.txt", strings.NewReader("hello")))
	require.NoError(t, reg.CreateDir(ctx, "mem:///empty"))

	ok, err := reg.Has(ctx, "mem:///docs/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Has(ctx, "mem:///docs")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Has(ctx, "mem:///missing")
	require.NoError(t, err)
	assert.False(t, ok)

	data, err := reg.ReadAll(ctx, "mem:///docs//./a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	rc, err := reg.Read(ctx, "mem:///docs/a.txt")
	require.NoError(t, err)
	rc.Close()

	size, err := reg.Size(ctx, "mem:///docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	mime, err := reg.MimeType(ctx, "mem:///docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime)

	_, err = reg.MimeType(ctx, "mem:///docs")
	assert.ErrorIs(t, err, nodefs.ErrIsDir)

	mtime, err := reg.ModTime(ctx, "mem:///docs/a.txt")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), mtime, time.Minute)

	sum, err := reg.Checksum(ctx, "mem:///docs/a.txt", nodefs.ChecksumMD5)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)

	entries, err := reg.List(ctx, "mem:///", true)
	require.NoError(t, err)
	var listed []string
	for _, e := range entries {
		listed = append(listed, e.Path)
	}
	assert.Equal(t, []string{"docs", "docs/a.txt", "empty"}, listed)

	require.NoError(t, reg.Delete(ctx, "mem:///docs/a.txt"))
	require.NoError(t, reg.DeleteDir(ctx, "mem:///docs"))
	_, err = reg.Stat(ctx, "mem:///docs")
	assert.True(t, nodefs.IsNotExist(err))

	_, err = reg.Stat(ctx, "ftp:///x")
	assert.ErrorIs(t, err, ErrUnknownProtocol)

	_, err = reg.Stat(ctx, "mem:///../x")
	assert.ErrorIs(t, err, paths.ErrPathEscapesRoot)
}

func TestRegistryDefaultProtocol(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(WithDefaultProtocol("mem"))
	require.NoError(t, reg.Register("mem", memory.New()))

	require.NoError(t, reg.Write(ctx, "/bare.txt", strings.NewReader("x")))
	ok, err := reg.Has(ctx, "mem:///bare.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mem", reg.DefaultProtocol())
}

func TestRegistryVisibility(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	reg := NewRegistry()
	require.NoError(t, reg.Register("mem", mem))
	require.NoError(t, reg.Register("plain", plainFS{mem}))
	require.NoError(t, reg.Register("ro", nodefs.NewReadOnlyFileSystem(mem)))

	require.NoError(t, reg.Write(ctx, "mem:///secret.txt", strings.NewReader("x"),
		nodefs.WithVisibility(nodefs.VisibilityPrivate)))
	require.NoError(t, reg.Write(ctx, "mem:///open.txt", strings.NewReader("x")))

	tests := []struct {
		url  string
		want nodefs.Visibility
	}{
		{"mem:///secret.txt", nodefs.VisibilityPrivate},
		{"mem:///open.txt", nodefs.VisibilityPublic},
		{"plain:///secret.txt", nodefs.VisibilityPublic},
		{"ro:///open.txt", nodefs.VisibilityPrivate},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			v, err := reg.Visibility(ctx, tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestRegistryRename(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Write(ctx, "mem:///dir/a.txt", strings.NewReader("a")))
	require.NoError(t, reg.Write(ctx, "mem:///dir/b.txt", strings.NewReader("b")))

	url, err := reg.Rename(ctx, "mem:///dir/a.txt", "c.txt")
	require.NoError(t, err)
	assert.Equal(t, "mem:///dir/c.txt", url)

	data, err := reg.ReadAll(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	_, err = reg.Rename(ctx, "mem:///dir/c.txt", "b.txt")
	assert.ErrorIs(t, err, ErrCollisionOnRename)
	assert.True(t, nodefs.IsExist(err))

	for _, name := range []string{"", ".", "..", "x/y", `x\y`} {
		_, err = reg.Rename(ctx, "mem:///dir/c.txt", name)
		assert.ErrorIs(t, err, nodefs.ErrInvalidName, name)
	}

	_, err = reg.Rename(ctx, "mem:///", "x")
	assert.ErrorIs(t, err, ErrNoParentAvailable)

	_, err = reg.Rename(ctx, "mem:///dir/missing.txt", "x.txt")
	assert.True(t, nodefs.IsNotExist(err))
}

func TestRegistryCopyAcrossProtocols(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register("other", memory.New()))

	require.NoError(t, reg.Write(ctx, "mem:///site/index.html", strings.NewReader("<html></html>"),
		nodefs.WithMetadata(map[string]string{"owner": "web"})))
	require.NoError(t, reg.Write(ctx, "mem:///site/css/app.css", strings.NewReader("body{}")))

	require.NoError(t, reg.Copy(ctx, "mem:///site/index.html", "other:///index.html"))
	info, err := reg.Stat(ctx, "other:///index.html")
	require.NoError(t, err)
	assert.Equal(t, "text/html", info.ContentType)
	assert.Equal(t, "web", info.Metadata["owner"])

	require.NoError(t, reg.Copy(ctx, "mem:///site", "other:///backup/site"))
	data, err := reg.ReadAll(ctx, "other:///backup/site/css/app.css")
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))

	ok, err := reg.Has(ctx, "mem:///site/css/app.css")
	require.NoError(t, err)
	assert.True(t, ok, "copy keeps the source")

	err = reg.Copy(ctx, "mem:///missing", "other:///x")
	assert.True(t, nodefs.IsNotExist(err))
}

func TestRegistryMoveAcrossProtocols(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register("other", memory.New()))

	require.NoError(t, reg.Write(ctx, "mem:///dir/a.txt", strings.NewReader("a")))
	require.NoError(t, reg.Write(ctx, "mem:///dir/sub/b.txt", strings.NewReader("b")))

	require.NoError(t, reg.Move(ctx, "mem:///dir", "other:///moved"))

	data, err := reg.ReadAll(ctx, "other:///moved/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	ok, err := reg.Has(ctx, "mem:///dir")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistryMoveFallsBackWithoutNativeMove(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	require.NoError(t, reg.Register("plain", plainFS{memory.New()}))
	require.NoError(t, reg.Register("cached", nodefs.NewCachingFileSystem(plainFS{memory.New()}, nodefs.NewMemoryCache())))

	for _, protocol := range []string{"plain", "cached"} {
		t.Run(protocol, func(t *testing.T) {
			base := protocol + ":///"
			require.NoError(t, reg.Write(ctx, base+"a/one.txt", strings.NewReader("1")))
			require.NoError(t, reg.Write(ctx, base+"a/deep/two.txt", strings.NewReader("22")))

			require.NoError(t, reg.Copy(ctx, base+"a", base+"copy"))
			require.NoError(t, reg.Move(ctx, base+"a", base+"b"))

			for _, url := range []string{base + "b/one.txt", base + "b/deep/two.txt", base + "copy/deep/two.txt"} {
				ok, err := reg.Has(ctx, url)
				require.NoError(t, err)
				assert.True(t, ok, url)
			}
			ok, err := reg.Has(ctx, base+"a")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRegistryMoveKeepsSourceOnFailure(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	broken := memory.New()
	require.NoError(t, reg.Register("broken", failingFS{FileSystem: broken, failOn: "fail"}))

	require.NoError(t, reg.Write(ctx, "mem:///dir/a.txt", strings.NewReader("a")))
	require.NoError(t, reg.Write(ctx, "mem:///dir/fail.txt", strings.NewReader("f")))

	err := reg.Move(ctx, "mem:///dir", "broken:///dir")
	assert.ErrorIs(t, err, errInjected)

	for _, url := range []string{"mem:///dir/a.txt", "mem:///dir/fail.txt"} {
		ok, err := reg.Has(ctx, url)
		require.NoError(t, err)
		assert.True(t, ok, url)
	}
	ok, err := broken.DirExists(ctx, "dir")
	require.NoError(t, err)
	assert.False(t, ok, "partial destination is removed")
}

func TestRegistryMoveIntoItself(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Write(ctx, "mem:///dir/a.txt", strings.NewReader("a")))

	assert.ErrorIs(t, reg.Move(ctx, "mem:///dir", "mem:///dir/inner"), nodefs.ErrNotAllowed)
	assert.ErrorIs(t, reg.Copy(ctx, "mem:///dir", "mem:///dir/inner"), nodefs.ErrNotAllowed)
	assert.ErrorIs(t, reg.Move(ctx, "mem:///", "mem:///x"), nodefs.ErrNotAllowed)
}

func TestRegistryWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register("plain", plainFS{memory.New()}))

	token, err := reg.Watch(ctx, "mem:///logs/*.log")
	require.NoError(t, err)
	require.NoError(t, reg.Write(ctx, "mem:///logs/a.log", bytes.NewReader([]byte("x"))))
	assert.Eventually(t, token.HasChanged, time.Second, 5*time.Millisecond)

	token, err = reg.Watch(ctx, "plain:///**")
	require.NoError(t, err)
	assert.IsType(t, nodefs.CancelledChangeToken{}, token)
}
