package vfs

import (
	"context"
	"errors"
	"iter"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/paths"
)

// ListContents returns the entries below n that pass the active filters:
// directories first, then files, each ordered by path. Every returned node
// is linked to its real parent, so nested entries of a recursive listing
// inherit the recursive filters of their ancestors.
func (n *Node) ListContents(ctx context.Context, recursive bool) ([]*Node, error) {
	ok, err := n.IsDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pathErr("list", n.URL(), ErrDirectoryNotFound)
	}

	fs, err := n.backend()
	if err != nil {
		return nil, err
	}
	entries, err := fs.ListContents(ctx, n.rel(), recursive)
	if err != nil {
		if nodefs.IsNotExist(err) {
			return nil, pathErr("list", n.URL(), ErrDirectoryNotFound)
		}
		return nil, err
	}

	dirs := map[string]*Node{n.path: n}
	var dirNodes, fileNodes []*Node
	for _, entry := range entries {
		if !entry.IsDir {
			continue
		}
		node := n.attach(dirs, entry, KindDirectory)
		dirs[node.path] = node
		dirNodes = append(dirNodes, node)
	}
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		fileNodes = append(fileNodes, n.attach(dirs, entry, KindFile))
	}

	filters := n.activeFilters()
	ctx = withListingRoot(ctx, n)
	out := make([]*Node, 0, len(dirNodes)+len(fileNodes))
	for _, candidate := range append(dirNodes, fileNodes...) {
		ok, err := accept(ctx, filters, candidate)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// attach builds the node for a listed entry below its parent node. Entries
// arrive ordered by path, so a parent directory is always seen before its
// children.
func (n *Node) attach(dirs map[string]*Node, entry nodefs.FileInfo, kind Kind) *Node {
	parentPath, name := paths.Split("/" + entry.Path)
	if parentPath == "" {
		parentPath = "/"
	}
	parent, ok := dirs[parentPath]
	if !ok {
		parent = n
	}
	return parent.resolvedChild(name, kind)
}

// ListFiles lists the files below n.
func (n *Node) ListFiles(ctx context.Context, recursive bool) ([]*Node, error) {
	return n.listWith(ctx, IsFile(), recursive)
}

// ListDirectories lists the directories below n.
func (n *Node) ListDirectories(ctx context.Context, recursive bool) ([]*Node, error) {
	return n.listWith(ctx, IsDirectory(), recursive)
}

// listWith lists with f added for the duration of the call.
func (n *Node) listWith(ctx context.Context, f Filter, recursive bool) ([]*Node, error) {
	idx := n.AddFilter(f, false)
	defer n.RemoveFilter(idx) //nolint:errcheck
	return n.ListContents(ctx, recursive)
}

// Search returns every node below n whose name contains word, ignoring
// case.
func (n *Node) Search(ctx context.Context, word string) ([]*Node, error) {
	return n.listWith(ctx, Search(word), true)
}

// SearchFiles returns the files below n whose name contains word.
func (n *Node) SearchFiles(ctx context.Context, word string) ([]*Node, error) {
	idx := n.AddFilter(Search(word), false)
	defer n.RemoveFilter(idx) //nolint:errcheck
	return n.ListFiles(ctx, true)
}

// SearchDirectories returns the directories below n whose name contains
// word.
func (n *Node) SearchDirectories(ctx context.Context, word string) ([]*Node, error) {
	idx := n.AddFilter(Search(word), false)
	defer n.RemoveFilter(idx) //nolint:errcheck
	return n.ListDirectories(ctx, true)
}

// SearchContent returns the files below n whose content contains word.
func (n *Node) SearchContent(ctx context.Context, word string) ([]*Node, error) {
	idx := n.AddFilter(SearchContent(word), false)
	defer n.RemoveFilter(idx) //nolint:errcheck
	return n.ListFiles(ctx, true)
}

// ============================================================================
// Keyed access
// ============================================================================

// Lookup returns the direct child called name. ".." returns the parent.
func (n *Node) Lookup(ctx context.Context, name string) (*Node, error) {
	if name == ".." {
		return n.Parent()
	}
	children, err := n.ListContents(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, pathErr("lookup", paths.JoinProtocol(n.protocol, n.DirPath()+name), ErrFileNotFound)
}

// Has reports whether Lookup would find name.
func (n *Node) Has(ctx context.Context, name string) (bool, error) {
	_, err := n.Lookup(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case nodefs.IsNotExist(err), errors.Is(err, ErrNoParentAvailable):
		return false, nil
	default:
		return false, err
	}
}

// Set writes content to the child file called name, creating or replacing
// it.
func (n *Node) Set(ctx context.Context, name string, content []byte) error {
	existing, err := n.Lookup(ctx, name)
	switch {
	case err == nil:
		if existing.kind == KindDirectory {
			return pathErr("set", existing.URL(), ErrCannotWriteToDirectory)
		}
		return existing.write(ctx, content)
	case errors.Is(err, ErrFileNotFound):
		_, err = n.CreateFile(ctx, name, content)
		return err
	default:
		return err
	}
}

// Unset deletes the child called name.
func (n *Node) Unset(ctx context.Context, name string) error {
	child, err := n.Lookup(ctx, name)
	if err != nil {
		return err
	}
	_, err = child.Delete(ctx)
	return err
}

// ============================================================================
// Iteration
// ============================================================================

// All iterates over the non-recursive listing of n. Each range queries the
// backend again. A listing failure is yielded once with a nil node.
//
//	for child, err := range dir.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(child.Name())
//	}
func (n *Node) All(ctx context.Context) iter.Seq2[*Node, error] {
	return func(yield func(*Node, error) bool) {
		children, err := n.ListContents(ctx, false)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, c := range children {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Count returns the number of entries in the non-recursive listing.
func (n *Node) Count(ctx context.Context) (int, error) {
	children, err := n.ListContents(ctx, false)
	if err != nil {
		return 0, err
	}
	return len(children), nil
}
