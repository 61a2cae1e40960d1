package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/paths"
)

// Mkdir creates the directory sub below n, with every missing parent, and
// returns its node. An empty sub creates n itself. Existing directories are
// left as they are.
func (n *Node) Mkdir(ctx context.Context, sub string) (*Node, error) {
	segments, err := paths.Segments(sub)
	if err != nil {
		return nil, pathErr("mkdir", n.URL(), err)
	}

	target := n
	for _, seg := range segments {
		target = target.child(seg, KindDirectory)
	}

	if target.rel() != "" {
		fs, err := target.backend()
		if err != nil {
			return nil, err
		}
		if err := fs.CreateDir(ctx, target.rel()); err != nil {
			if nodefs.IsExist(err) {
				return nil, pathErr("mkdir", target.URL(), nodefs.ErrNotDir)
			}
			return nil, err
		}
	}
	target.kind = KindDirectory
	target.resolved = true
	return target, nil
}

// Delete removes n, recursively for directories, and returns the parent.
// Deleting a root empties it and returns nil.
func (n *Node) Delete(ctx context.Context) (*Node, error) {
	fs, err := n.backend()
	if err != nil {
		return nil, err
	}

	if n.root {
		if err := fs.DeleteDir(ctx, n.rel()); err != nil {
			return nil, err
		}
		return nil, nil
	}

	info, _, err := n.stat(ctx, "delete", ErrFileNotFound)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		err = fs.DeleteDir(ctx, n.rel())
	} else {
		err = fs.Delete(ctx, n.rel())
	}
	if err != nil {
		return nil, err
	}
	return n.parent, nil
}

// Rename gives n a new name within its parent and returns the renamed node.
func (n *Node) Rename(ctx context.Context, newName string) (*Node, error) {
	if n.root {
		return nil, pathErr("rename", n.URL(), ErrNoParentAvailable)
	}
	url, err := n.registry.Rename(ctx, n.URL(), newName)
	if err != nil {
		if nodefs.IsNotExist(err) {
			return nil, pathErr("rename", n.URL(), ErrFileNotFound)
		}
		return nil, err
	}

	info, err := n.registry.Stat(ctx, url)
	if err != nil {
		return nil, err
	}
	if info.IsDir {
		return n.parent.resolvedChild(newName, KindDirectory), nil
	}
	return n.parent.resolvedChild(newName, KindFile), nil
}

// Copy copies n into the existing directory target, which may belong to
// another protocol, and returns the copy.
func (n *Node) Copy(ctx context.Context, target *Node) (*Node, error) {
	return n.transfer(ctx, "copy", target)
}

// Move moves n into the existing directory target and returns the moved
// node. Within one backend the move is native where supported. Otherwise
// the content is copied and verified before the source is deleted; on
// failure the source stays in place.
func (n *Node) Move(ctx context.Context, target *Node) (*Node, error) {
	return n.transfer(ctx, "move", target)
}

func (n *Node) transfer(ctx context.Context, op string, target *Node) (*Node, error) {
	if target == nil {
		return nil, pathErr(op, n.URL(), ErrDirectoryNotFound)
	}
	if n.Name() == "" {
		return nil, pathErr(op, n.URL(), nodefs.ErrNotAllowed)
	}

	ok, err := target.IsDirectory(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pathErr(op, target.URL(), ErrDirectoryNotFound)
	}

	info, _, err := n.stat(ctx, op, ErrFileNotFound)
	if err != nil {
		return nil, err
	}
	kind := KindFile
	if info.IsDir {
		kind = KindDirectory
	}

	dst := target.resolvedChild(n.Name(), kind)
	from, err := n.endpoint()
	if err != nil {
		return nil, err
	}
	to, err := dst.endpoint()
	if err != nil {
		return nil, err
	}

	if op == "move" {
		err = n.registry.move(ctx, from, to, info.IsDir)
	} else {
		err = n.registry.copy(ctx, from, to, info.IsDir)
	}
	if err != nil {
		return nil, err
	}
	return dst, nil
}

// CreateFile writes content to name below n, replacing any existing file,
// and returns the file node. name may contain separators.
func (n *Node) CreateFile(ctx context.Context, name string, content []byte) (*Node, error) {
	segments, err := paths.Segments(name)
	if err != nil {
		return nil, pathErr("createfile", n.URL(), err)
	}
	if len(segments) == 0 {
		return nil, pathErr("createfile", n.URL(), fmt.Errorf("%w: %q", nodefs.ErrInvalidName, name))
	}

	dir := n
	last := len(segments) - 1
	for _, seg := range segments[:last] {
		dir = dir.child(seg, KindDirectory)
	}
	file := dir.resolvedChild(segments[last], KindFile)

	if err := file.write(ctx, content); err != nil {
		return nil, err
	}
	return file, nil
}

func (n *Node) write(ctx context.Context, content []byte) error {
	fs, err := n.backend()
	if err != nil {
		return err
	}
	err = fs.Write(ctx, n.rel(), bytes.NewReader(content), nodefs.WithOverwrite(true))
	if errors.Is(err, nodefs.ErrIsDir) {
		return pathErr("write", n.URL(), ErrCannotWriteToDirectory)
	}
	return err
}
