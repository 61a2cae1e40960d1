package vfs

import (
	"os"
	"sync"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/driver/local"
	"github.com/gobeaver/nodefs/internal/logging"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry. On first use it registers a
// cached local backend rooted at the working directory under both "file"
// and "local". The cache TTL comes from BEAVER_NODEFS_CACHE_TTL_SECONDS.
func Default() *Registry {
	defaultOnce.Do(func() {
		logger := logging.For("registry")

		var cacheOpts []nodefs.CacheOption
		if cfg, err := nodefs.GetConfig(); err != nil {
			logger.Warn().Err(err).Msg("using default cache settings")
		} else {
			cacheOpts = append(cacheOpts, nodefs.WithCacheTTL(cfg.CacheTTL()))
		}

		wd, err := os.Getwd()
		if err == nil {
			defaultRegistry, err = NewDefaultRegistry(wd, cacheOpts...)
		}
		if err != nil {
			logger.Error().Err(err).Msg("local backend unavailable")
			defaultRegistry = NewRegistry()
		}
	})
	return defaultRegistry
}

// Register binds fs to protocol in the default registry.
func Register(protocol string, fs nodefs.FileSystem) error {
	return Default().Register(protocol, fs)
}

// NewDefaultRegistry builds a registry shaped like Default, with the local
// backend rooted at root.
func NewDefaultRegistry(root string, cacheOpts ...nodefs.CacheOption) (*Registry, error) {
	backend, err := local.New(root)
	if err != nil {
		return nil, err
	}
	cached := nodefs.NewCachingFileSystem(backend, nodefs.NewMemoryCache(), cacheOpts...)

	r := NewRegistry()
	for _, protocol := range []string{"file", "local"} {
		if err := r.Register(protocol, cached); err != nil {
			return nil, err
		}
	}
	return r, nil
}
