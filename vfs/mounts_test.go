package vfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nodefs"
	_ "github.com/gobeaver/nodefs/driver/memory"
)

const mountYAML = `
mounts:
  - protocol: scratch
    driver: memory
  - protocol: archive
    driver: memory
    readonly: true
  - protocol: hot
    driver: memory
    cache: true
    cache_ttl: 60s
`

func TestLoadMounts(t *testing.T) {
	table, err := LoadMounts(strings.NewReader(mountYAML))
	require.NoError(t, err)
	require.Len(t, table.Mounts, 3)

	assert.Equal(t, "scratch", table.Mounts[0].Protocol)
	assert.True(t, table.Mounts[1].ReadOnly)
	assert.True(t, table.Mounts[2].Cache)
	assert.Equal(t, 60*time.Second, table.Mounts[2].CacheTTL)

	empty, err := LoadMounts(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Mounts)
}

func TestLoadMountsValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing protocol",
			yaml: "mounts:\n  - driver: memory\n",
			want: "empty protocol",
		},
		{
			name: "missing driver",
			yaml: "mounts:\n  - protocol: a\n",
			want: "driver is required",
		},
		{
			name: "duplicate protocol",
			yaml: "mounts:\n  - protocol: a\n    driver: memory\n  - protocol: a\n    driver: memory\n",
			want: "listed twice",
		},
		{
			name: "unknown field",
			yaml: "mounts:\n  - protocol: a\n    driver: memory\n    colour: red\n",
			want: "decode mount table",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMounts(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadMounts(strings.NewReader("mounts:\n  - driver: memory\n"))
	assert.ErrorIs(t, err, ErrInvalidProtocol)
}

func TestMountTableApply(t *testing.T) {
	ctx := context.Background()
	table, err := LoadMounts(strings.NewReader(mountYAML))
	require.NoError(t, err)

	reg := NewRegistry()
	require.NoError(t, table.Apply(reg))
	assert.Equal(t, []string{"archive", "hot", "scratch"}, reg.Protocols())

	require.NoError(t, reg.Write(ctx, "scratch:///a.txt", strings.NewReader("a")))
	require.NoError(t, reg.Write(ctx, "hot:///b.txt", strings.NewReader("b")))

	err = reg.Write(ctx, "archive:///c.txt", strings.NewReader("c"))
	assert.ErrorIs(t, err, nodefs.ErrReadOnly)

	hot, err := reg.Resolve("hot")
	require.NoError(t, err)
	assert.IsType(t, &nodefs.CachingFileSystem{}, hot)
	archive, err := reg.Resolve("archive")
	require.NoError(t, err)
	assert.IsType(t, &nodefs.ReadOnlyFileSystem{}, archive)

	v, err := reg.Visibility(ctx, "hot:///b.txt")
	require.NoError(t, err)
	assert.Equal(t, nodefs.VisibilityPublic, v)
}

func TestMountTableApplyUnknownDriver(t *testing.T) {
	table := &MountTable{Mounts: []Mount{
		{Protocol: "ok", Driver: "memory"},
		{Protocol: "bad", Driver: "floppy"},
	}}
	reg := NewRegistry()

	err := table.Apply(reg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `mount "bad"`)
	assert.Empty(t, reg.Protocols())
}

func TestLoadMountFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mountYAML), 0o644))

	table, err := LoadMountFile(path)
	require.NoError(t, err)
	assert.Len(t, table.Mounts, 3)

	_, err = LoadMountFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMountDriverConfig(t *testing.T) {
	cfg := Mount{Protocol: "x", Driver: "local"}.DriverConfig()
	assert.Equal(t, "local", cfg.Driver)
	assert.Equal(t, ".", cfg.LocalBasePath)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, 22, cfg.SFTPPort)

	cfg = Mount{
		Driver:    "s3",
		Bucket:    "media",
		Prefix:    "public/",
		Region:    "eu-west-1",
		Endpoint:  "http://localhost:9000",
		Container: "blobs",
		Port:      2222,
	}.DriverConfig()
	assert.Equal(t, "media", cfg.S3Bucket)
	assert.Equal(t, "media", cfg.GCSBucket)
	assert.Equal(t, "public/", cfg.AzurePrefix)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.Equal(t, "http://localhost:9000", cfg.AzureEndpoint)
	assert.Equal(t, "blobs", cfg.AzureContainerName)
	assert.Equal(t, 2222, cfg.SFTPPort)
}
