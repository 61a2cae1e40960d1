package vfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nodefs/driver/memory"
)

func TestNewDefaultRegistry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	reg, err := NewDefaultRegistry(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"file", "local"}, reg.Protocols())
	assert.Equal(t, DefaultProtocol, reg.DefaultProtocol())

	root, err := Open("/", WithRegistry(reg))
	require.NoError(t, err)
	file, err := root.CreateFile(ctx, "notes/hello.txt", []byte("hi"))
	require.NoError(t, err)

	onDisk, err := os.ReadFile(filepath.Join(dir, "notes", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(onDisk))

	// both protocols share one backend
	data, err := reg.ReadAll(ctx, "local:///notes/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	data, err = file.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))

	_, err = NewDefaultRegistry(filepath.Join(dir, "notes", "hello.txt"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	reg := Default()
	require.NotNil(t, reg)
	assert.Same(t, reg, Default())
	assert.Contains(t, reg.Protocols(), "file")

	require.NoError(t, Register("scratch-default", memory.New()))
	t.Cleanup(func() { _ = reg.Unregister("scratch-default") })
	assert.Contains(t, Default().Protocols(), "scratch-default")
}
