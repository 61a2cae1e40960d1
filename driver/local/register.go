package local

import "github.com/gobeaver/nodefs"

func init() {
	nodefs.RegisterDriver("local", func(cfg *nodefs.Config) (nodefs.FileSystem, error) {
		return New(cfg.LocalBasePath)
	})
}
