package cli

import (
	"fmt"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/internal/logging"
	"github.com/gobeaver/nodefs/vfs"

	// drivers register themselves with the factory
	_ "github.com/gobeaver/nodefs/driver/azure"
	_ "github.com/gobeaver/nodefs/driver/gcs"
	_ "github.com/gobeaver/nodefs/driver/local"
	_ "github.com/gobeaver/nodefs/driver/memory"
	_ "github.com/gobeaver/nodefs/driver/s3"
	_ "github.com/gobeaver/nodefs/driver/sftp"
)

// buildRegistry registers the configured driver under "file" and under its
// own name, then applies the mount table if one is given.
func buildRegistry(cfg *nodefs.Config, mountFile string) (*vfs.Registry, error) {
	backend, err := nodefs.CreateDriver(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s driver: %w", cfg.Driver, err)
	}
	if cfg.CacheEnabled {
		backend = nodefs.NewCachingFileSystem(backend, nodefs.NewMemoryCache(), nodefs.WithCacheTTL(cfg.CacheTTL()))
	}

	reg := vfs.NewRegistry()
	if err := reg.Register(vfs.DefaultProtocol, backend); err != nil {
		return nil, err
	}
	if cfg.Driver != vfs.DefaultProtocol {
		if err := reg.Register(cfg.Driver, backend); err != nil {
			return nil, err
		}
	}

	if mountFile == "" {
		return reg, nil
	}
	table, err := vfs.LoadMountFile(mountFile)
	if err != nil {
		return nil, fmt.Errorf("load mounts: %w", err)
	}
	if err := table.Apply(reg); err != nil {
		return nil, err
	}
	log := logging.For("cli")
	log.Debug().
		Str("file", mountFile).
		Int("mounts", len(table.Mounts)).
		Msg("mount table applied")
	return reg, nil
}
