package nodefs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOnlyFileSystem(t *testing.T) {
	ctx := context.Background()
	inner := newMapFS()
	require.NoError(t, inner.Write(ctx, "docs/a.txt", strings.NewReader("alpha")))

	ro := NewReadOnlyFileSystem(inner)
	assert.True(t, ro.IsReadOnly())
	assert.Same(t, inner, ro.Unwrap())

	t.Run("reads pass through", func(t *testing.T) {
		data, err := ro.ReadAll(ctx, "docs/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "alpha", string(data))

		files, err := ro.ListContents(ctx, "docs", false)
		require.NoError(t, err)
		assert.Len(t, files, 1)
	})

	t.Run("mutations are rejected", func(t *testing.T) {
		tests := []struct {
			name string
			op   func() error
		}{
			{"write", func() error { return ro.Write(ctx, "b.txt", strings.NewReader("b")) }},
			{"delete", func() error { return ro.Delete(ctx, "docs/a.txt") }},
			{"createdir", func() error { return ro.CreateDir(ctx, "new") }},
			{"deletedir", func() error { return ro.DeleteDir(ctx, "docs") }},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.op()
				require.Error(t, err)
				assert.True(t, IsReadOnlyError(err))

				var pe *PathError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.name, pe.Op)
			})
		}

		exists, err := inner.FileExists(ctx, "docs/a.txt")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("visibility is private", func(t *testing.T) {
		v, err := ro.Visibility(ctx, "docs/a.txt")
		require.NoError(t, err)
		assert.Equal(t, VisibilityPrivate, v)
	})

	t.Run("checksum", func(t *testing.T) {
		sum, err := ro.Checksum(ctx, "docs/a.txt", ChecksumCRC32)
		require.NoError(t, err)
		assert.NotEmpty(t, sum)
	})
}

func TestReadOnlyOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("allow create dir", func(t *testing.T) {
		inner := newMapFS()
		ro := NewReadOnlyFileSystem(inner, WithAllowCreateDir(true))

		require.NoError(t, ro.CreateDir(ctx, "staging"))
		exists, err := inner.DirExists(ctx, "staging")
		require.NoError(t, err)
		assert.True(t, exists)

		assert.Error(t, ro.Write(ctx, "staging/x", strings.NewReader("x")))
	})

	t.Run("write attempt handler", func(t *testing.T) {
		audit := errors.New("audited")
		var seen []string
		ro := NewReadOnlyFileSystem(newMapFS(), WithWriteAttemptHandler(func(op, path string) error {
			seen = append(seen, op+" "+path)
			return audit
		}))

		err := ro.Delete(ctx, "x")
		assert.ErrorIs(t, err, audit)
		assert.Equal(t, []string{"delete x"}, seen)
	})

	t.Run("handler may let writes through", func(t *testing.T) {
		inner := newMapFS()
		ro := NewReadOnlyFileSystem(inner, WithWriteAttemptHandler(func(op, path string) error { return nil }))

		require.NoError(t, ro.Write(ctx, "ok.txt", strings.NewReader("ok")))
		exists, err := inner.FileExists(ctx, "ok.txt")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}
