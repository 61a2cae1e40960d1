package vfs

import (
	"context"
	"io"
	"time"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/paths"
)

// fileInfo returns the metadata of n if it is an existing file.
func (n *Node) fileInfo(ctx context.Context, op string) (*nodefs.FileInfo, nodefs.FileSystem, error) {
	info, fs, err := n.stat(ctx, op, ErrFileNotFound)
	if err != nil {
		return nil, nil, err
	}
	if info.IsDir {
		return nil, nil, pathErr(op, n.URL(), ErrFileNotFound)
	}
	return info, fs, nil
}

// Read returns the whole content of the file.
func (n *Node) Read(ctx context.Context) ([]byte, error) {
	_, fs, err := n.fileInfo(ctx, "read")
	if err != nil {
		return nil, err
	}
	return fs.ReadAll(ctx, n.rel())
}

// Open returns a stream over the file content. The caller closes it.
func (n *Node) Open(ctx context.Context) (io.ReadCloser, error) {
	_, fs, err := n.fileInfo(ctx, "open")
	if err != nil {
		return nil, err
	}
	return fs.Read(ctx, n.rel())
}

// Write replaces the content of an existing file.
func (n *Node) Write(ctx context.Context, content []byte) error {
	info, _, err := n.stat(ctx, "write", ErrFileNotFound)
	if err != nil {
		return err
	}
	if info.IsDir {
		return pathErr("write", n.URL(), ErrCannotWriteToDirectory)
	}
	return n.write(ctx, content)
}

// Checksum returns the hex checksum of the file. Backends that store or
// compute checksums themselves are asked first.
func (n *Node) Checksum(ctx context.Context, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	_, fs, err := n.fileInfo(ctx, "checksum")
	if err != nil {
		return "", err
	}
	return nodefs.Checksum(ctx, fs, n.rel(), algorithm)
}

func (n *Node) MD5(ctx context.Context) (string, error) {
	return n.Checksum(ctx, nodefs.ChecksumMD5)
}

func (n *Node) SHA1(ctx context.Context) (string, error) {
	return n.Checksum(ctx, nodefs.ChecksumSHA1)
}

// Extension returns the file extension without the dot.
func (n *Node) Extension() string {
	return paths.Ext(n.path)
}

// Size returns the file size in bytes.
func (n *Node) Size(ctx context.Context) (int64, error) {
	info, _, err := n.fileInfo(ctx, "size")
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

// MimeType returns the stored content type, or one guessed from the
// extension.
func (n *Node) MimeType(ctx context.Context) (string, error) {
	info, _, err := n.fileInfo(ctx, "mimetype")
	if err != nil {
		return "", err
	}
	return contentType(info), nil
}

func (n *Node) ModTime(ctx context.Context) (time.Time, error) {
	info, _, err := n.fileInfo(ctx, "modtime")
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime, nil
}

// IsReadable reports whether the file content can be opened.
func (n *Node) IsReadable(ctx context.Context) (bool, error) {
	rc, err := n.Open(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	rc.Close()
	return true, nil
}

// IsWritable reports whether the file is public. Backends without a
// visibility notion count as writable unless mounted read-only.
func (n *Node) IsWritable(ctx context.Context) (bool, error) {
	_, fs, err := n.fileInfo(ctx, "visibility")
	if err != nil {
		return false, err
	}
	v, err := visibility(ctx, fs, n.rel())
	if err != nil {
		return false, err
	}
	return v == nodefs.VisibilityPublic, nil
}
