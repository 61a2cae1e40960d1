package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/internal/logging"
	"github.com/gobeaver/nodefs/internal/objstore"
	"github.com/gobeaver/nodefs/paths"
)

// DefaultProtocol is used for bare paths that carry no scheme.
const DefaultProtocol = "file"

var protocolPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.\-]*$`)

// Registry maps protocol names to backends and routes protocol-qualified
// URLs such as "mem:///docs/a.txt" to them.
//
// Example:
//
//	reg := vfs.NewRegistry()
//	reg.Register("mem", memory.New())
//	reg.Register("assets", s3Backend)
//	err := reg.Copy(ctx, "mem:///report.pdf", "assets:///reports/report.pdf")
type Registry struct {
	mu              sync.RWMutex
	backends        map[string]nodefs.FileSystem
	defaultProtocol string
	log             zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDefaultProtocol sets the protocol used for URLs without a scheme.
func WithDefaultProtocol(protocol string) RegistryOption {
	return func(r *Registry) {
		r.defaultProtocol = protocol
	}
}

// WithLogger replaces the registry's logger.
func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		backends:        make(map[string]nodefs.FileSystem),
		defaultProtocol: DefaultProtocol,
		log:             logging.For("registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ============================================================================
// Registration
// ============================================================================

// Register binds fs to protocol. Registering an existing protocol again
// replaces its backend.
func (r *Registry) Register(protocol string, fs nodefs.FileSystem) error {
	if fs == nil {
		return fmt.Errorf("register %q: %w", protocol, ErrNilBackend)
	}
	if !protocolPattern.MatchString(protocol) {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, protocol)
	}

	r.mu.Lock()
	_, replaced := r.backends[protocol]
	r.backends[protocol] = fs
	r.mu.Unlock()

	if replaced {
		r.log.Debug().Str("protocol", protocol).Msg("backend replaced")
	} else {
		r.log.Debug().Str("protocol", protocol).Msg("backend registered")
	}
	return nil
}

// Unregister removes the backend bound to protocol.
func (r *Registry) Unregister(protocol string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[protocol]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownProtocol, protocol)
	}
	delete(r.backends, protocol)
	r.log.Debug().Str("protocol", protocol).Msg("backend unregistered")
	return nil
}

// Resolve returns the backend bound to protocol.
func (r *Registry) Resolve(protocol string) (nodefs.FileSystem, error) {
	r.mu.RLock()
	fs, exists := r.backends[protocol]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, protocol)
	}
	return fs, nil
}

// Protocols returns the registered protocol names, sorted.
func (r *Registry) Protocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultProtocol returns the protocol used for URLs without a scheme.
func (r *Registry) DefaultProtocol() string {
	return r.defaultProtocol
}

// endpoint is one side of a routed operation.
type endpoint struct {
	fs  nodefs.FileSystem
	url string
	rel string
}

// locate splits url into its backend and the backend-relative path.
func (r *Registry) locate(op, url string) (endpoint, error) {
	scheme, p, err := paths.ParseURL(url, r.defaultProtocol)
	if err != nil {
		return endpoint{}, pathErr(op, url, err)
	}
	fs, err := r.Resolve(scheme)
	if err != nil {
		return endpoint{}, pathErr(op, url, err)
	}
	clean, err := paths.Normalize(p)
	if err != nil {
		return endpoint{}, pathErr(op, url, err)
	}
	return endpoint{fs: fs, url: paths.JoinProtocol(scheme, clean), rel: paths.Relative(clean)}, nil
}

// ============================================================================
// URL-addressed operations
// ============================================================================

// Has reports whether a file or directory exists at url.
func (r *Registry) Has(ctx context.Context, url string) (bool, error) {
	ep, err := r.locate("has", url)
	if err != nil {
		return false, err
	}
	return exists(ctx, ep.fs, ep.rel)
}

func exists(ctx context.Context, fs nodefs.FileSystem, rel string) (bool, error) {
	ok, err := fs.FileExists(ctx, rel)
	if err != nil || ok {
		return ok, err
	}
	return fs.DirExists(ctx, rel)
}

// Read opens the file at url.
func (r *Registry) Read(ctx context.Context, url string) (io.ReadCloser, error) {
	ep, err := r.locate("read", url)
	if err != nil {
		return nil, err
	}
	return ep.fs.Read(ctx, ep.rel)
}

// ReadAll reads the whole file at url.
func (r *Registry) ReadAll(ctx context.Context, url string) ([]byte, error) {
	ep, err := r.locate("read", url)
	if err != nil {
		return nil, err
	}
	return ep.fs.ReadAll(ctx, ep.rel)
}

// Write stores content at url.
func (r *Registry) Write(ctx context.Context, url string, content io.Reader, opts ...nodefs.Option) error {
	ep, err := r.locate("write", url)
	if err != nil {
		return err
	}
	return ep.fs.Write(ctx, ep.rel, content, opts...)
}

// Delete removes the file at url.
func (r *Registry) Delete(ctx context.Context, url string) error {
	ep, err := r.locate("delete", url)
	if err != nil {
		return err
	}
	return ep.fs.Delete(ctx, ep.rel)
}

// DeleteDir removes the directory at url recursively.
func (r *Registry) DeleteDir(ctx context.Context, url string) error {
	ep, err := r.locate("deletedir", url)
	if err != nil {
		return err
	}
	return ep.fs.DeleteDir(ctx, ep.rel)
}

// CreateDir creates the directory at url and any missing parents.
func (r *Registry) CreateDir(ctx context.Context, url string) error {
	ep, err := r.locate("createdir", url)
	if err != nil {
		return err
	}
	return ep.fs.CreateDir(ctx, ep.rel)
}

// List returns the entries below url. Entry paths are relative to the
// backend root.
func (r *Registry) List(ctx context.Context, url string, recursive bool) ([]nodefs.FileInfo, error) {
	ep, err := r.locate("list", url)
	if err != nil {
		return nil, err
	}
	return ep.fs.ListContents(ctx, ep.rel, recursive)
}

// Stat returns the metadata of the entry at url.
func (r *Registry) Stat(ctx context.Context, url string) (*nodefs.FileInfo, error) {
	ep, err := r.locate("stat", url)
	if err != nil {
		return nil, err
	}
	return ep.fs.Stat(ctx, ep.rel)
}

// Size returns the size in bytes of the entry at url.
func (r *Registry) Size(ctx context.Context, url string) (int64, error) {
	info, err := r.Stat(ctx, url)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// ModTime returns the modification time of the entry at url.
func (r *Registry) ModTime(ctx context.Context, url string) (time.Time, error) {
	info, err := r.Stat(ctx, url)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime, nil
}

// MimeType returns the content type the backend stored for the file at
// url, or one guessed from its extension.
func (r *Registry) MimeType(ctx context.Context, url string) (string, error) {
	info, err := r.Stat(ctx, url)
	if err != nil {
		return "", err
	}
	if info.IsDir {
		return "", pathErr("mimetype", url, nodefs.ErrIsDir)
	}
	return contentType(info), nil
}

func contentType(info *nodefs.FileInfo) string {
	if info.ContentType != "" {
		return info.ContentType
	}
	return nodefs.GuessContentType(info.Path, nil)
}

// Visibility reports whether the entry at url is public (writable) or
// private. Backends without visibility support are public unless they are
// read-only.
func (r *Registry) Visibility(ctx context.Context, url string) (nodefs.Visibility, error) {
	ep, err := r.locate("visibility", url)
	if err != nil {
		return "", err
	}
	return visibility(ctx, ep.fs, ep.rel)
}

func visibility(ctx context.Context, fs nodefs.FileSystem, rel string) (nodefs.Visibility, error) {
	if v, ok := fs.(nodefs.CanVisibility); ok {
		return v.Visibility(ctx, rel)
	}
	if ro, ok := fs.(interface{ IsReadOnly() bool }); ok && ro.IsReadOnly() {
		return nodefs.VisibilityPrivate, nil
	}
	return nodefs.VisibilityPublic, nil
}

// Checksum returns the hex checksum of the file at url, computed by the
// backend when it can.
func (r *Registry) Checksum(ctx context.Context, url string, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	ep, err := r.locate("checksum", url)
	if err != nil {
		return "", err
	}
	return nodefs.Checksum(ctx, ep.fs, ep.rel, algorithm)
}

// Watch returns a change token for the glob pattern in url, e.g.
// "mem:///logs/*.log". Backends that cannot watch return a token that
// never fires.
func (r *Registry) Watch(ctx context.Context, url string) (nodefs.ChangeToken, error) {
	scheme, pattern, err := paths.ParseURL(url, r.defaultProtocol)
	if err != nil {
		return nil, pathErr("watch", url, err)
	}
	fs, err := r.Resolve(scheme)
	if err != nil {
		return nil, pathErr("watch", url, err)
	}
	return watch(ctx, fs, paths.Relative(pattern))
}

func watch(ctx context.Context, fs nodefs.FileSystem, pattern string) (nodefs.ChangeToken, error) {
	watcher, ok := fs.(nodefs.CanWatch)
	if !ok {
		return nodefs.CancelledChangeToken{}, nil
	}
	return watcher.Watch(ctx, pattern)
}

// ============================================================================
// Rename, Copy and Move
// ============================================================================

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Rename renames the entry at url within its parent directory and returns
// the new URL.
func (r *Registry) Rename(ctx context.Context, url, newName string) (string, error) {
	if !validName(newName) {
		return "", pathErr("rename", url, fmt.Errorf("%w: %q", nodefs.ErrInvalidName, newName))
	}
	src, err := r.locate("rename", url)
	if err != nil {
		return "", err
	}
	if src.rel == "" {
		return "", pathErr("rename", url, ErrNoParentAvailable)
	}
	isDir, err := kindOf(ctx, "rename", src)
	if err != nil {
		return "", err
	}

	parent, _ := paths.Split(src.rel)
	dst := src
	dst.rel = joinRel(parent, newName)
	dst.url = paths.JoinProtocol(schemeOf(src.url), "/"+dst.rel)

	taken, err := exists(ctx, dst.fs, dst.rel)
	if err != nil {
		return "", err
	}
	if taken {
		return "", pathErr("rename", dst.url, ErrCollisionOnRename)
	}
	if err := r.move(ctx, src, dst, isDir); err != nil {
		return "", err
	}
	return dst.url, nil
}

func schemeOf(url string) string {
	scheme, _, _ := strings.Cut(url, paths.SchemeSeparator)
	return scheme
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	if name == "" {
		return dir
	}
	return dir + "/" + name
}

// kindOf reports whether the entry at ep is a directory.
func kindOf(ctx context.Context, op string, ep endpoint) (bool, error) {
	info, err := ep.fs.Stat(ctx, ep.rel)
	if err != nil {
		return false, pathErr(op, ep.url, err)
	}
	return info.IsDir, nil
}

// Copy copies the file or directory at src to dst. Within one backend the
// native copy is used when available; otherwise content is streamed.
func (r *Registry) Copy(ctx context.Context, src, dst string) error {
	from, to, err := r.endpoints("copy", src, dst)
	if err != nil {
		return err
	}
	isDir, err := kindOf(ctx, "copy", from)
	if err != nil {
		return err
	}
	return r.copy(ctx, from, to, isDir)
}

// Move moves the file or directory at src to dst. A move that cannot be
// done natively copies first and deletes the source only once the copy is
// complete.
func (r *Registry) Move(ctx context.Context, src, dst string) error {
	from, to, err := r.endpoints("move", src, dst)
	if err != nil {
		return err
	}
	isDir, err := kindOf(ctx, "move", from)
	if err != nil {
		return err
	}
	return r.move(ctx, from, to, isDir)
}

func (r *Registry) endpoints(op, src, dst string) (from, to endpoint, err error) {
	if from, err = r.locate(op, src); err != nil {
		return from, to, fmt.Errorf("resolve source: %w", err)
	}
	if to, err = r.locate(op, dst); err != nil {
		return from, to, fmt.Errorf("resolve destination: %w", err)
	}
	return from, to, nil
}

// intoSelf reports whether a directory would be copied into its own
// subtree.
func intoSelf(from, to endpoint, isDir bool) bool {
	return isDir && from.fs == to.fs && objstore.Within(to.rel, from.rel)
}

func (r *Registry) copy(ctx context.Context, from, to endpoint, isDir bool) error {
	if intoSelf(from, to, isDir) {
		return pathErr("copy", to.url, nodefs.ErrNotAllowed)
	}

	if from.fs == to.fs {
		if copier, ok := from.fs.(nodefs.CanCopy); ok {
			err := copier.Copy(ctx, from.rel, to.rel)
			if !errors.Is(err, nodefs.ErrNotSupported) {
				return err
			}
			r.log.Debug().Str("src", from.url).Msg("native copy not supported, streaming")
		}
	} else {
		r.log.Debug().Str("src", from.url).Str("dst", to.url).Msg("copying across backends")
	}

	if isDir {
		return copyTree(ctx, from, to)
	}
	return copyFile(ctx, from.fs, from.rel, to.fs, to.rel)
}

// copyFile streams one file, carrying its content type and metadata.
func copyFile(ctx context.Context, srcFS nodefs.FileSystem, src string, dstFS nodefs.FileSystem, dst string) error {
	info, err := srcFS.Stat(ctx, src)
	if err != nil {
		return fmt.Errorf("get source info: %w", err)
	}

	reader, err := srcFS.Read(ctx, src)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	defer reader.Close()

	opts := []nodefs.Option{nodefs.WithOverwrite(true)}
	if info.ContentType != "" {
		opts = append(opts, nodefs.WithContentType(info.ContentType))
	}
	if len(info.Metadata) > 0 {
		opts = append(opts, nodefs.WithMetadata(info.Metadata))
	}

	if err := dstFS.Write(ctx, dst, reader, opts...); err != nil {
		return fmt.Errorf("write destination: %w", err)
	}
	return nil
}

// copyTree recreates the directory at from below to, entry by entry.
func copyTree(ctx context.Context, from, to endpoint) error {
	if err := to.fs.CreateDir(ctx, to.rel); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	entries, err := from.fs.ListContents(ctx, from.rel, true)
	if err != nil {
		return fmt.Errorf("list source: %w", err)
	}

	for _, entry := range entries {
		target := joinRel(to.rel, suffix(entry.Path, from.rel))
		if entry.IsDir {
			if err := to.fs.CreateDir(ctx, target); err != nil {
				return fmt.Errorf("create destination: %w", err)
			}
			continue
		}
		if err := copyFile(ctx, from.fs, entry.Path, to.fs, target); err != nil {
			return err
		}
	}
	return nil
}

// suffix returns p relative to dir.
func suffix(p, dir string) string {
	if dir == "" {
		return p
	}
	return strings.TrimPrefix(p, dir+"/")
}

func (r *Registry) move(ctx context.Context, from, to endpoint, isDir bool) error {
	if from.rel == "" {
		return pathErr("move", from.url, nodefs.ErrNotAllowed)
	}
	if intoSelf(from, to, isDir) {
		return pathErr("move", to.url, nodefs.ErrNotAllowed)
	}

	if from.fs == to.fs {
		if mover, ok := from.fs.(nodefs.CanMove); ok {
			err := mover.Move(ctx, from.rel, to.rel)
			if !errors.Is(err, nodefs.ErrNotSupported) {
				return err
			}
			r.log.Debug().Str("src", from.url).Msg("native move not supported, copying")
		}
	}

	existed, err := exists(ctx, to.fs, to.rel)
	if err != nil {
		return err
	}

	if err := r.copy(ctx, from, to, isDir); err != nil {
		r.discard(ctx, to, isDir, existed)
		return err
	}
	if isDir {
		if err := verifyTree(ctx, from, to); err != nil {
			r.discard(ctx, to, isDir, existed)
			return err
		}
	}

	if isDir {
		err = from.fs.DeleteDir(ctx, from.rel)
	} else {
		err = from.fs.Delete(ctx, from.rel)
	}
	if err != nil {
		return fmt.Errorf("delete source after move: %w", err)
	}
	return nil
}

// verifyTree checks that every entry below from is present below to.
func verifyTree(ctx context.Context, from, to endpoint) error {
	want, err := from.fs.ListContents(ctx, from.rel, true)
	if err != nil {
		return fmt.Errorf("verify move: %w", err)
	}
	got, err := to.fs.ListContents(ctx, to.rel, true)
	if err != nil {
		return fmt.Errorf("verify move: %w", err)
	}

	present := make(map[string]nodefs.FileInfo, len(got))
	for _, entry := range got {
		present[suffix(entry.Path, to.rel)] = entry
	}
	for _, entry := range want {
		rel := suffix(entry.Path, from.rel)
		copied, ok := present[rel]
		if !ok || copied.IsDir != entry.IsDir || (!entry.IsDir && copied.Size != entry.Size) {
			return pathErr("move", joinRel(to.rel, rel), ErrIncompleteCopy)
		}
	}
	return nil
}

// discard removes a partial destination left by a failed move. A
// destination that existed before the move is left alone.
func (r *Registry) discard(ctx context.Context, to endpoint, isDir, existed bool) {
	if existed {
		return
	}
	var err error
	if isDir {
		err = to.fs.DeleteDir(ctx, to.rel)
	} else {
		err = to.fs.Delete(ctx, to.rel)
	}
	if err != nil && !nodefs.IsNotExist(err) {
		r.log.Warn().Err(err).Str("dst", to.url).Msg("failed to remove partial copy")
	}
}
