package memory

import "github.com/gobeaver/nodefs"

func init() {
	nodefs.RegisterDriver("memory", func(cfg *nodefs.Config) (nodefs.FileSystem, error) {
		return New(), nil
	})
}
