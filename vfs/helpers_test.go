package vfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/driver/memory"
)

// newTestRegistry returns a registry with an empty memory backend under
// "mem" and a root node on it.
func newTestRegistry(t *testing.T) (*Registry, *Node) {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register("mem", memory.New()))
	root, err := Open("/", WithRegistry(reg), WithProtocol("mem"))
	require.NoError(t, err)
	return reg, root
}

// seed creates:
//
//	/.env
//	/composer.json
//	/docs/.cache/index
//	/docs/.draft.md
//	/docs/guide.txt
//	/docs/readme.md
//	/src/main.go
//	/src/vendor/lib.go
func seed(t *testing.T, root *Node) {
	t.Helper()
	ctx := context.Background()
	files := map[string]string{
		".env":              "SECRET=1",
		"composer.json":     "{}",
		"docs/.cache/index": "cached",
		"docs/.draft.md":    "draft",
		"docs/guide.txt":    "Go is fun",
		"docs/readme.md":    "hello world",
		"src/main.go":       "package main",
		"src/vendor/lib.go": "package lib",
	}
	for name, content := range files {
		_, err := root.CreateFile(ctx, name, []byte(content))
		require.NoError(t, err)
	}
}

func pathsOf(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Path()
	}
	return out
}

// plainFS hides every optional capability of the wrapped backend.
type plainFS struct {
	nodefs.FileSystem
}

var errInjected = errors.New("injected failure")

// failingFS fails writes to paths containing failOn.
type failingFS struct {
	nodefs.FileSystem
	failOn string
}

func (f failingFS) Write(ctx context.Context, p string, r io.Reader, opts ...nodefs.Option) error {
	if strings.Contains(p, f.failOn) {
		return &nodefs.PathError{Op: "write", Path: p, Err: errInjected}
	}
	return f.FileSystem.Write(ctx, p, r, opts...)
}
