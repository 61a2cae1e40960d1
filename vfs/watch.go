package vfs

import (
	"context"
	"strings"

	"github.com/gobeaver/nodefs"
)

// Watch returns a token that fires when an entry below n matching the glob
// pattern changes. Backends that cannot watch return a token that never
// fires.
//
//	stop := nodefs.OnChange(func() (nodefs.ChangeToken, error) {
//	    return dir.Watch(ctx, "**/*.json")
//	}, reload)
func (n *Node) Watch(ctx context.Context, pattern string) (nodefs.ChangeToken, error) {
	fs, err := n.backend()
	if err != nil {
		return nil, err
	}
	return watch(ctx, fs, joinRel(n.rel(), strings.TrimLeft(pattern, "/")))
}
