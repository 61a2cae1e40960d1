package nodefs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

func init() {
	// Register test drivers
	RegisterDriver("test-map", newMapDriver)
}

func newMapDriver(cfg *Config) (FileSystem, error) {
	if cfg.LocalBasePath == "" {
		return nil, fmt.Errorf("base path is required")
	}
	return newMapFS(), nil
}

// mapFS is a flat in-package backend for testing the decorators. It counts
// metadata calls so tests can tell cache hits from pass-through.
type mapFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
	calls map[string]int
}

func newMapFS() *mapFS {
	return &mapFS{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"": true},
		calls: make(map[string]int),
	}
}

func clean(path string) string {
	return strings.Trim(path, "/")
}

func (fs *mapFS) count(op string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.calls[op]
}

func (fs *mapFS) record(op string) {
	fs.calls[op]++
}

func (fs *mapFS) mkdirs(path string) {
	for path != "" {
		fs.dirs[path] = true
		i := strings.LastIndex(path, "/")
		if i < 0 {
			break
		}
		path = path[:i]
	}
}

func (fs *mapFS) Write(ctx context.Context, path string, reader io.Reader, options ...Option) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	path = clean(path)
	if i := strings.LastIndex(path, "/"); i >= 0 {
		fs.mkdirs(path[:i])
	}
	fs.files[path] = data
	return nil
}

func (fs *mapFS) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	data, err := fs.ReadAll(ctx, path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (fs *mapFS) ReadAll(ctx context.Context, path string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[clean(path)]
	if !ok {
		return nil, &PathError{Op: "read", Path: path, Err: ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (fs *mapFS) Delete(ctx context.Context, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.files[clean(path)]; !ok {
		return &PathError{Op: "delete", Path: path, Err: ErrNotExist}
	}
	delete(fs.files, clean(path))
	return nil
}

func (fs *mapFS) FileExists(ctx context.Context, path string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.record("fileexists")
	_, ok := fs.files[clean(path)]
	return ok, nil
}

func (fs *mapFS) DirExists(ctx context.Context, path string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.record("direxists")
	return fs.dirs[clean(path)], nil
}

func (fs *mapFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.record("stat")
	p := clean(path)
	name := p[strings.LastIndex(p, "/")+1:]
	if data, ok := fs.files[p]; ok {
		return &FileInfo{Name: name, Path: p, Size: int64(len(data)), ModTime: time.Now()}, nil
	}
	if fs.dirs[p] {
		return &FileInfo{Name: name, Path: p, IsDir: true}, nil
	}
	return nil, &PathError{Op: "stat", Path: path, Err: ErrNotExist}
}

func (fs *mapFS) ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.record("list")
	p := clean(path)
	if !fs.dirs[p] {
		return nil, &PathError{Op: "list", Path: path, Err: ErrNotExist}
	}
	prefix := ""
	if p != "" {
		prefix = p + "/"
	}
	var out []FileInfo
	include := func(name string) bool {
		if !strings.HasPrefix(name, prefix) || name == p {
			return false
		}
		return recursive || !strings.Contains(name[len(prefix):], "/")
	}
	for name := range fs.dirs {
		if name != "" && include(name) {
			out = append(out, FileInfo{Name: name[strings.LastIndex(name, "/")+1:], Path: name, IsDir: true})
		}
	}
	for name, data := range fs.files {
		if include(name) {
			out = append(out, FileInfo{Name: name[strings.LastIndex(name, "/")+1:], Path: name, Size: int64(len(data))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (fs *mapFS) CreateDir(ctx context.Context, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mkdirs(clean(path))
	return nil
}

func (fs *mapFS) DeleteDir(ctx context.Context, path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	p := clean(path)
	if !fs.dirs[p] {
		return &PathError{Op: "deletedir", Path: path, Err: ErrNotExist}
	}
	for name := range fs.files {
		if strings.HasPrefix(name, p+"/") {
			delete(fs.files, name)
		}
	}
	for name := range fs.dirs {
		if name == p || strings.HasPrefix(name, p+"/") {
			delete(fs.dirs, name)
		}
	}
	return nil
}

// movableFS adds a native Move to mapFS.
type movableFS struct {
	*mapFS
}

func (fs *movableFS) Move(ctx context.Context, src, dst string) error {
	data, err := fs.ReadAll(ctx, src)
	if err != nil {
		return err
	}
	if err := fs.Write(ctx, dst, bytes.NewReader(data)); err != nil {
		return err
	}
	return fs.Delete(ctx, src)
}
