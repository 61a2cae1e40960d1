package nodefs

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		c := NewMemoryCache()
		c.Set("a", 1, 0)

		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)

		_, ok = c.Get("missing")
		assert.False(t, ok)

		stats := c.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
		assert.Equal(t, int64(1), stats.Size)
		assert.InDelta(t, 0.5, stats.HitRate, 0.001)
	})

	t.Run("expired entries miss", func(t *testing.T) {
		c := NewMemoryCache()
		c.Set("a", "x", time.Millisecond)
		time.Sleep(5 * time.Millisecond)

		_, ok := c.Get("a")
		assert.False(t, ok)
	})

	t.Run("cleanup drops expired entries only", func(t *testing.T) {
		c := NewMemoryCache()
		c.Set("short", 1, time.Millisecond)
		c.Set("long", 2, time.Hour)
		time.Sleep(5 * time.Millisecond)

		c.Cleanup()
		assert.Equal(t, int64(1), c.Stats().Size)
	})

	t.Run("delete func", func(t *testing.T) {
		c := NewMemoryCache()
		c.Set("stat:a", 1, 0)
		c.Set("stat:b", 2, 0)
		c.DeleteFunc(func(key string) bool { return strings.HasSuffix(key, ":a") })

		_, ok := c.Get("stat:a")
		assert.False(t, ok)
		_, ok = c.Get("stat:b")
		assert.True(t, ok)
	})

	t.Run("concurrent access", func(t *testing.T) {
		c := NewMemoryCache()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				c.Set("k", i, 0)
				c.Get("k")
			}(i)
		}
		wg.Wait()
		_, ok := c.Get("k")
		assert.True(t, ok)
	})
}

func TestCachingFileSystem(t *testing.T) {
	ctx := context.Background()

	t.Run("caches existence checks", func(t *testing.T) {
		inner := newMapFS()
		require.NoError(t, inner.Write(ctx, "a.txt", strings.NewReader("a")))
		fs := NewCachingFileSystem(inner, NewMemoryCache())

		for i := 0; i < 3; i++ {
			exists, err := fs.FileExists(ctx, "a.txt")
			require.NoError(t, err)
			assert.True(t, exists)
		}
		assert.Equal(t, 1, inner.count("fileexists"))
	})

	t.Run("write invalidates the parent listing", func(t *testing.T) {
		inner := newMapFS()
		require.NoError(t, inner.CreateDir(ctx, "docs"))
		fs := NewCachingFileSystem(inner, NewMemoryCache())

		files, err := fs.ListContents(ctx, "docs", false)
		require.NoError(t, err)
		assert.Empty(t, files)

		require.NoError(t, fs.Write(ctx, "docs/readme.md", strings.NewReader("hi")))

		files, err = fs.ListContents(ctx, "docs", false)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "docs/readme.md", files[0].Path)
		assert.Equal(t, 2, inner.count("list"))
	})

	t.Run("delete dir invalidates descendants", func(t *testing.T) {
		inner := newMapFS()
		require.NoError(t, inner.Write(ctx, "a/b/c.txt", strings.NewReader("c")))
		fs := NewCachingFileSystem(inner, NewMemoryCache())

		exists, err := fs.FileExists(ctx, "a/b/c.txt")
		require.NoError(t, err)
		require.True(t, exists)

		require.NoError(t, fs.DeleteDir(ctx, "a"))

		exists, err = fs.FileExists(ctx, "a/b/c.txt")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("unrelated entries survive invalidation", func(t *testing.T) {
		inner := newMapFS()
		require.NoError(t, inner.Write(ctx, "x/one.txt", strings.NewReader("1")))
		fs := NewCachingFileSystem(inner, NewMemoryCache())

		_, err := fs.Stat(ctx, "x/one.txt")
		require.NoError(t, err)
		require.NoError(t, fs.Write(ctx, "y/two.txt", strings.NewReader("2")))
		_, err = fs.Stat(ctx, "x/one.txt")
		require.NoError(t, err)

		assert.Equal(t, 1, inner.count("stat"))
	})

	t.Run("stat results are copies", func(t *testing.T) {
		inner := newMapFS()
		require.NoError(t, inner.Write(ctx, "a.txt", strings.NewReader("abc")))
		fs := NewCachingFileSystem(inner, NewMemoryCache())

		info, err := fs.Stat(ctx, "a.txt")
		require.NoError(t, err)
		info.Size = 99

		info, err = fs.Stat(ctx, "a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(3), info.Size)
	})

	t.Run("hit and miss callbacks", func(t *testing.T) {
		inner := newMapFS()
		var hits, misses int
		fs := NewCachingFileSystem(inner, NewMemoryCache(),
			WithCacheHitCallback(func(op, path string) { hits++ }),
			WithCacheMissCallback(func(op, path string) { misses++ }),
		)

		_, _ = fs.DirExists(ctx, "")
		_, _ = fs.DirExists(ctx, "")
		assert.Equal(t, 1, hits)
		assert.Equal(t, 1, misses)
	})

	t.Run("disabled caching passes through", func(t *testing.T) {
		inner := newMapFS()
		fs := NewCachingFileSystem(inner, NewMemoryCache(), WithCacheExists(false))

		_, _ = fs.FileExists(ctx, "a")
		_, _ = fs.FileExists(ctx, "a")
		assert.Equal(t, 2, inner.count("fileexists"))
	})

	t.Run("move without native support", func(t *testing.T) {
		fs := NewCachingFileSystem(newMapFS(), NewMemoryCache())

		err := fs.Move(ctx, "a", "b")
		assert.ErrorIs(t, err, ErrNotSupported)
	})

	t.Run("native move invalidates both sides", func(t *testing.T) {
		inner := &movableFS{newMapFS()}
		require.NoError(t, inner.Write(ctx, "src.txt", strings.NewReader("s")))
		fs := NewCachingFileSystem(inner, NewMemoryCache())

		exists, err := fs.FileExists(ctx, "src.txt")
		require.NoError(t, err)
		require.True(t, exists)

		require.NoError(t, fs.Move(ctx, "src.txt", "dst.txt"))

		exists, err = fs.FileExists(ctx, "src.txt")
		require.NoError(t, err)
		assert.False(t, exists)
		exists, err = fs.FileExists(ctx, "dst.txt")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("checksum falls back to streaming", func(t *testing.T) {
		inner := newMapFS()
		require.NoError(t, inner.Write(ctx, "a.txt", strings.NewReader("hello")))
		fs := NewCachingFileSystem(inner, NewMemoryCache())

		sum, err := fs.Checksum(ctx, "a.txt", ChecksumMD5)
		require.NoError(t, err)
		assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)
	})

	t.Run("watch without backend support", func(t *testing.T) {
		fs := NewCachingFileSystem(newMapFS(), NewMemoryCache())

		token, err := fs.Watch(ctx, "**/*")
		require.NoError(t, err)
		assert.True(t, token.HasChanged())
		assert.False(t, token.ActiveChangeCallbacks())
	})
}

func TestRelated(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"a/b", "a/b", true},
		{"a", "a/b", true},
		{"a/b/c", "a", true},
		{"", "anything", true},
		{"a/b", "a/bc", false},
		{"x", "y", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, related(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
