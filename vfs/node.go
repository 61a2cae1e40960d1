package vfs

import (
	"context"
	"errors"
	"strings"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/paths"
)

// Kind tells directories and files apart.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
)

func (k Kind) String() string {
	if k == KindFile {
		return "file"
	}
	return "directory"
}

// Node is a handle on a directory or file of one protocol. Nodes hold no
// open resources; every method resolves the backend when called.
//
// A non-root node keeps a pointer to the node it was derived from, which
// is how recursive filters reach it.
type Node struct {
	registry *Registry
	protocol string
	path     string
	parent   *Node
	root     bool

	// kind is trusted only when resolved is set, i.e. when it came from a
	// backend listing or a write.
	kind     Kind
	resolved bool

	filters   filterSet
	recursive filterSet
	seq       *filterSeq
}

type openOptions struct {
	registry *Registry
	protocol string
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

// WithRegistry opens the node on r instead of the default registry.
func WithRegistry(r *Registry) OpenOption {
	return func(o *openOptions) {
		o.registry = r
	}
}

// WithProtocol sets the protocol for bare paths.
func WithProtocol(protocol string) OpenOption {
	return func(o *openOptions) {
		o.protocol = protocol
	}
}

// Open returns a root directory node for url, which is either a bare path
// or "protocol://path".
//
//	root, err := vfs.Open("/srv/www")             // file:///srv/www
//	root, err := vfs.Open("assets:///img")         // registered "assets" backend
//	root, err := vfs.Open("/", vfs.WithProtocol("mem"), vfs.WithRegistry(reg))
func Open(url string, opts ...OpenOption) (*Node, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = Default()
	}
	if o.protocol == "" {
		o.protocol = o.registry.DefaultProtocol()
	}

	scheme, p, err := paths.ParseURL(url, o.protocol)
	if err != nil {
		return nil, pathErr("open", url, err)
	}
	return o.registry.Root(scheme, p)
}

// Root returns a root directory node at p on protocol.
func (r *Registry) Root(protocol, p string) (*Node, error) {
	if _, err := r.Resolve(protocol); err != nil {
		return nil, pathErr("open", paths.JoinProtocol(protocol, p), err)
	}
	clean, err := paths.Normalize(p)
	if err != nil {
		return nil, pathErr("open", paths.JoinProtocol(protocol, p), err)
	}
	return &Node{
		registry:  r,
		protocol:  protocol,
		path:      clean,
		root:      true,
		kind:      KindDirectory,
		resolved:  true,
		filters:   filterSet{},
		recursive: filterSet{},
		seq:       &filterSeq{},
	}, nil
}

// child derives the node for name directly below n.
func (n *Node) child(name string, kind Kind) *Node {
	p := n.path + "/" + name
	if n.path == "/" {
		p = "/" + name
	}
	return &Node{
		registry:  n.registry,
		protocol:  n.protocol,
		path:      p,
		parent:    n,
		kind:      kind,
		filters:   filterSet{},
		recursive: filterSet{},
		seq:       n.seq,
	}
}

func (n *Node) resolvedChild(name string, kind Kind) *Node {
	c := n.child(name, kind)
	c.resolved = true
	return c
}

func (n *Node) backend() (nodefs.FileSystem, error) {
	fs, err := n.registry.Resolve(n.protocol)
	if err != nil {
		return nil, pathErr("resolve", n.URL(), err)
	}
	return fs, nil
}

// rel is the path handed to the backend.
func (n *Node) rel() string {
	return paths.Relative(n.path)
}

func (n *Node) endpoint() (endpoint, error) {
	fs, err := n.backend()
	if err != nil {
		return endpoint{}, err
	}
	return endpoint{fs: fs, url: n.URL(), rel: n.rel()}, nil
}

// ============================================================================
// Accessors
// ============================================================================

// Name returns the last path segment; it is empty for a node at "/".
func (n *Node) Name() string { return paths.Base(n.path) }

// Path returns the normalized absolute path within the protocol.
func (n *Node) Path() string { return n.path }

// DirPath returns the path in directory form, "/a/b/".
func (n *Node) DirPath() string { return paths.Trim(n.path) }

// URL returns "protocol://path".
func (n *Node) URL() string { return paths.JoinProtocol(n.protocol, n.path) }

func (n *Node) String() string { return n.URL() }

func (n *Node) Protocol() string { return n.protocol }

func (n *Node) IsRoot() bool { return n.root }

// Kind returns the node kind as last seen. Nodes that were never looked up
// in a listing report KindDirectory.
func (n *Node) Kind() Kind { return n.kind }

func (n *Node) Registry() *Registry { return n.registry }

// ============================================================================
// Navigation
// ============================================================================

// Parent returns the node n was derived from.
func (n *Node) Parent() (*Node, error) {
	if n.root || n.parent == nil {
		return nil, pathErr("parent", n.URL(), ErrNoParentAvailable)
	}
	return n.parent, nil
}

// Get returns the node at p relative to n. Leading ".." segments climb
// through Parent. The last segment becomes a file node only if a file of
// that name exists; anything else yields a directory node, so a directory
// can be addressed before it is created.
func (n *Node) Get(ctx context.Context, p string) (*Node, error) {
	cur := n
	rest := strings.ReplaceAll(p, `\`, "/")
	for rest != "" {
		seg, remainder, _ := strings.Cut(rest, "/")
		if seg == ".." {
			parent, err := cur.Parent()
			if err != nil {
				return nil, err
			}
			cur = parent
		} else if seg != "" && seg != "." {
			break
		}
		rest = remainder
	}

	segments, err := paths.Segments(rest)
	if err != nil {
		return nil, pathErr("get", cur.URL(), err)
	}
	if len(segments) == 0 {
		return cur, nil
	}

	last := len(segments) - 1
	for _, seg := range segments[:last] {
		cur = cur.child(seg, KindDirectory)
	}

	fs, err := cur.backend()
	if err != nil {
		return nil, err
	}
	entries, err := fs.ListContents(ctx, cur.rel(), false)
	if err != nil && !nodefs.IsNotExist(err) && !errors.Is(err, nodefs.ErrNotDir) {
		return nil, err
	}
	for _, entry := range entries {
		if entry.Name != segments[last] {
			continue
		}
		if entry.IsDir {
			return cur.resolvedChild(entry.Name, KindDirectory), nil
		}
		return cur.resolvedChild(entry.Name, KindFile), nil
	}
	return cur.child(segments[last], KindDirectory), nil
}

// ============================================================================
// Existence
// ============================================================================

// IsDirectory reports whether n is an existing directory. Roots always
// are.
func (n *Node) IsDirectory(ctx context.Context) (bool, error) {
	if n.root {
		return true, nil
	}
	fs, err := n.backend()
	if err != nil {
		return false, err
	}

	parent, name := paths.Split(n.rel())
	entries, err := fs.ListContents(ctx, parent, false)
	if err != nil {
		if nodefs.IsNotExist(err) || errors.Is(err, nodefs.ErrNotDir) {
			return false, nil
		}
		return false, err
	}
	for _, entry := range entries {
		if entry.Name == name && entry.IsDir {
			return true, nil
		}
	}
	return false, nil
}

// IsFile reports whether n is an existing file.
func (n *Node) IsFile(ctx context.Context) (bool, error) {
	fs, err := n.backend()
	if err != nil {
		return false, err
	}
	ok, err := fs.FileExists(ctx, n.rel())
	if err != nil || !ok {
		return false, err
	}
	isDir, err := n.IsDirectory(ctx)
	return !isDir, err
}

// Exists reports whether n is an existing file or directory.
func (n *Node) Exists(ctx context.Context) (bool, error) {
	ok, err := n.IsDirectory(ctx)
	if err != nil || ok {
		return ok, err
	}
	return n.IsFile(ctx)
}

// stat returns the backend metadata of n, mapping absence to notFound.
func (n *Node) stat(ctx context.Context, op string, notFound error) (*nodefs.FileInfo, nodefs.FileSystem, error) {
	fs, err := n.backend()
	if err != nil {
		return nil, nil, err
	}
	info, err := fs.Stat(ctx, n.rel())
	if err != nil {
		if nodefs.IsNotExist(err) {
			return nil, nil, pathErr(op, n.URL(), notFound)
		}
		return nil, nil, err
	}
	return info, fs, nil
}
