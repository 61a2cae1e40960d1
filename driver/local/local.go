// Package local is the nodefs backend for a directory on the host
// filesystem. Every path is resolved below the root given to New; paths
// that would leave it are rejected with nodefs.ErrNotAllowed.
package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/gobeaver/nodefs"
)

// Adapter provides a local filesystem implementation of nodefs.FileSystem
type Adapter struct {
	root string
}

// New creates a new local filesystem adapter. The root directory is
// created when missing.
func New(root string) (*Adapter, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, err
	}

	return &Adapter{root: absRoot}, nil
}

// Root returns the absolute host directory backing the adapter.
func (a *Adapter) Root() string {
	return a.root
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// resolve turns a backend path into its root-relative slash form and the
// host path below the root.
func (a *Adapter) resolve(op, p string) (rel, full string, err error) {
	slashed := strings.ReplaceAll(p, `\`, "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", "", &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrNotAllowed}
		}
	}
	rel = strings.TrimPrefix(path.Clean("/"+slashed), "/")
	return rel, filepath.Join(a.root, filepath.FromSlash(rel)), nil
}

// toRel converts a host path below the root back to slash form.
func (a *Adapter) toRel(full string) (string, error) {
	rel, err := filepath.Rel(a.root, full)
	if err != nil {
		return "", err
	}
	if rel == "." {
		return "", nil
	}
	return filepath.ToSlash(rel), nil
}

// mapError translates os errors into nodefs sentinels.
func mapError(op, p string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrNotExist}
	case errors.Is(err, fs.ErrExist):
		return &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrExist}
	case errors.Is(err, fs.ErrPermission):
		return &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrPermission}
	default:
		return nodefs.WrapPathErr(op, p, err)
	}
}

// Write implements nodefs.FileWriter
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...nodefs.Option) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	rel, fullPath, err := a.resolve("write", p)
	if err != nil {
		return err
	}
	if rel == "" {
		return &nodefs.PathError{Op: "write", Path: p, Err: nodefs.ErrIsDir}
	}

	opts := nodefs.ApplyOptions(options...)

	if info, err := os.Stat(fullPath); err == nil {
		if info.IsDir() {
			return &nodefs.PathError{Op: "write", Path: rel, Err: nodefs.ErrIsDir}
		}
		if !opts.Overwrite {
			return &nodefs.PathError{Op: "write", Path: rel, Err: nodefs.ErrExist}
		}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return mapParentError("write", rel, err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return mapError("write", rel, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, content); err != nil {
		return &nodefs.PathError{Op: "write", Path: rel, Err: err}
	}

	switch opts.Visibility {
	case nodefs.VisibilityPublic:
		err = os.Chmod(fullPath, 0o644)
	case nodefs.VisibilityPrivate:
		err = os.Chmod(fullPath, 0o600)
	}
	return mapError("write", rel, err)
}

// mapParentError reports a file sitting where a parent directory should
// be as ErrNotDir.
func mapParentError(op, p string, err error) error {
	if errors.Is(err, syscall.ENOTDIR) {
		return &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrNotDir}
	}
	return mapError(op, p, err)
}

// Read implements nodefs.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	rel, fullPath, err := a.resolve("read", p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("read", rel, err)
	}
	if info.IsDir() {
		return nil, &nodefs.PathError{Op: "read", Path: rel, Err: nodefs.ErrIsDir}
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return nil, mapError("read", rel, err)
	}
	return f, nil
}

// ReadAll implements nodefs.FileReader
func (a *Adapter) ReadAll(ctx context.Context, p string) ([]byte, error) {
	rc, err := a.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Delete implements nodefs.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	rel, fullPath, err := a.resolve("delete", p)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return mapError("delete", rel, err)
	}
	if info.IsDir() {
		return &nodefs.PathError{Op: "delete", Path: rel, Err: nodefs.ErrIsDir}
	}

	return mapError("delete", rel, os.Remove(fullPath))
}

// FileExists implements nodefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, p string) (bool, error) {
	info, err := a.stat(ctx, "fileexists", p)
	if err != nil {
		if nodefs.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// DirExists implements nodefs.FileReader
func (a *Adapter) DirExists(ctx context.Context, p string) (bool, error) {
	info, err := a.stat(ctx, "direxists", p)
	if err != nil {
		if nodefs.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (a *Adapter) stat(ctx context.Context, op, p string) (os.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	rel, fullPath, err := a.resolve(op, p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError(op, rel, err)
	}
	return info, nil
}

// Stat implements nodefs.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*nodefs.FileInfo, error) {
	info, err := a.stat(ctx, "stat", p)
	if err != nil {
		return nil, err
	}

	rel, fullPath, _ := a.resolve("stat", p)
	return a.fileInfo(rel, fullPath, info), nil
}

func (a *Adapter) fileInfo(rel, fullPath string, info os.FileInfo) *nodefs.FileInfo {
	fi := &nodefs.FileInfo{
		Name:     path.Base(rel),
		Path:     rel,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		IsDir:    info.IsDir(),
		Metadata: platformMetadata(info),
	}
	if rel == "" {
		fi.Name = ""
	}
	if info.IsDir() {
		fi.Size = 0
	} else {
		fi.ContentType = contentType(fullPath)
	}
	return fi
}

// ListContents implements nodefs.FileReader
func (a *Adapter) ListContents(ctx context.Context, p string, recursive bool) ([]nodefs.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	rel, fullPath, err := a.resolve("listcontents", p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, mapError("listcontents", rel, err)
	}
	if !info.IsDir() {
		return nil, &nodefs.PathError{Op: "listcontents", Path: rel, Err: nodefs.ErrNotDir}
	}

	var files []nodefs.FileInfo

	if recursive {
		err = filepath.WalkDir(fullPath, func(walkPath string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if walkPath == fullPath {
				return nil
			}
			if err := checkContext(ctx); err != nil {
				return err
			}

			entryRel, err := a.toRel(walkPath)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				// vanished between readdir and stat
				return nil
			}
			files = append(files, *a.fileInfo(entryRel, walkPath, info))
			return nil
		})
		if err != nil {
			return nil, mapError("listcontents", rel, err)
		}
	} else {
		entries, err := os.ReadDir(fullPath)
		if err != nil {
			return nil, mapError("listcontents", rel, err)
		}

		files = make([]nodefs.FileInfo, 0, len(entries))
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			entryRel := path.Join(rel, entry.Name())
			files = append(files, *a.fileInfo(entryRel, filepath.Join(fullPath, entry.Name()), info))
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}

// CreateDir implements nodefs.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	rel, fullPath, err := a.resolve("createdir", p)
	if err != nil {
		return err
	}

	if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
		return &nodefs.PathError{Op: "createdir", Path: rel, Err: nodefs.ErrExist}
	}

	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return mapParentError("createdir", rel, err)
	}
	return nil
}

// DeleteDir implements nodefs.FileWriter. Deleting the root empties it.
func (a *Adapter) DeleteDir(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	rel, fullPath, err := a.resolve("deletedir", p)
	if err != nil {
		return err
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return mapError("deletedir", rel, err)
	}
	if !info.IsDir() {
		return &nodefs.PathError{Op: "deletedir", Path: rel, Err: nodefs.ErrNotDir}
	}

	if rel != "" {
		return mapError("deletedir", rel, os.RemoveAll(fullPath))
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return mapError("deletedir", rel, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(fullPath, entry.Name())); err != nil {
			return mapError("deletedir", rel, err)
		}
	}
	return nil
}

// contentType guesses the MIME type of a host file from its extension,
// then from its first bytes.
func contentType(fullPath string) string {
	if ct := nodefs.GuessContentType(fullPath, nil); ct != nodefs.MIMETypeOctetStream {
		return ct
	}

	f, err := os.Open(fullPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	ct, err := nodefs.SniffContentType(fullPath, f)
	if err != nil {
		return ""
	}
	return ct
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// within reports whether rel is dir or lies below it.
func within(rel, dir string) bool {
	return rel == dir || dir == "" || strings.HasPrefix(rel, dir+"/")
}

// Copy implements nodefs.CanCopy. Directories are copied recursively and
// file modes are preserved.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	srcRel, srcPath, err := a.resolve("copy", src)
	if err != nil {
		return err
	}
	dstRel, dstPath, err := a.resolve("copy", dst)
	if err != nil {
		return err
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return mapError("copy", srcRel, err)
	}

	if !info.IsDir() {
		return a.copyFile(srcPath, dstPath, dstRel, info.Mode())
	}

	if within(dstRel, srcRel) {
		return &nodefs.PathError{Op: "copy", Path: dstRel, Err: nodefs.ErrNotAllowed}
	}

	return filepath.WalkDir(srcPath, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return mapError("copy", srcRel, err)
		}
		if err := checkContext(ctx); err != nil {
			return err
		}

		sub, err := filepath.Rel(srcPath, walkPath)
		if err != nil {
			return err
		}
		target := filepath.Join(dstPath, sub)
		targetRel, _ := a.toRel(target)

		info, err := d.Info()
		if err != nil {
			return mapError("copy", srcRel, err)
		}
		if d.IsDir() {
			if err := os.MkdirAll(target, info.Mode().Perm()|0o700); err != nil {
				return mapParentError("copy", targetRel, err)
			}
			return nil
		}
		return a.copyFile(walkPath, target, targetRel, info.Mode())
	})
}

func (a *Adapter) copyFile(srcPath, dstPath, dstRel string, mode fs.FileMode) error {
	if info, err := os.Stat(dstPath); err == nil && info.IsDir() {
		return &nodefs.PathError{Op: "copy", Path: dstRel, Err: nodefs.ErrIsDir}
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return mapError("copy", dstRel, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return mapParentError("copy", dstRel, err)
	}

	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return mapError("copy", dstRel, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &nodefs.PathError{Op: "copy", Path: dstRel, Err: err}
	}
	return mapError("copy", dstRel, out.Close())
}

// Move implements nodefs.CanMove with os.Rename, falling back to copy and
// delete across devices.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	srcRel, srcPath, err := a.resolve("move", src)
	if err != nil {
		return err
	}
	dstRel, dstPath, err := a.resolve("move", dst)
	if err != nil {
		return err
	}
	if srcRel == "" {
		return &nodefs.PathError{Op: "move", Path: src, Err: nodefs.ErrNotAllowed}
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return mapError("move", srcRel, err)
	}
	if info.IsDir() && within(dstRel, srcRel) {
		return &nodefs.PathError{Op: "move", Path: dstRel, Err: nodefs.ErrNotAllowed}
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return mapParentError("move", dstRel, err)
	}

	if err := os.Rename(srcPath, dstPath); err == nil {
		return nil
	}

	if err := a.Copy(ctx, src, dst); err != nil {
		return err
	}
	return mapError("move", srcRel, os.RemoveAll(srcPath))
}

// Checksum implements nodefs.CanChecksum for local files.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	rc, err := a.Read(ctx, p)
	if err != nil {
		return "", nodefs.WrapPathErr("checksum", p, err)
	}
	defer rc.Close()

	checksum, err := nodefs.CalculateChecksum(rc, algorithm)
	if err != nil {
		return "", &nodefs.PathError{Op: "checksum", Path: p, Err: err}
	}
	return checksum, nil
}

// Visibility implements nodefs.CanVisibility. Entries other users may read
// are public.
func (a *Adapter) Visibility(ctx context.Context, p string) (nodefs.Visibility, error) {
	info, err := a.stat(ctx, "visibility", p)
	if err != nil {
		return "", err
	}
	if info.Mode().Perm()&0o004 != 0 {
		return nodefs.VisibilityPublic, nil
	}
	return nodefs.VisibilityPrivate, nil
}

// Ensure Adapter implements interfaces
var (
	_ nodefs.FileSystem    = (*Adapter)(nil)
	_ nodefs.CanCopy       = (*Adapter)(nil)
	_ nodefs.CanMove       = (*Adapter)(nil)
	_ nodefs.CanChecksum   = (*Adapter)(nil)
	_ nodefs.CanVisibility = (*Adapter)(nil)
	_ nodefs.CanWatch      = (*Adapter)(nil)
)
