package nodefs

import (
	"context"
	"errors"
	"io"
)

// ErrReadOnly is returned for mutations attempted through a
// ReadOnlyFileSystem.
var ErrReadOnly = errors.New("filesystem is read-only")

// ReadOnlyFileSystem serves reads from the wrapped backend and rejects
// every mutation with ErrReadOnly. Mount tables use it for protocols
// marked readonly.
//
//	ro := nodefs.NewReadOnlyFileSystem(backend)
//	err := ro.Write(ctx, "a.txt", r) // errors.Is(err, nodefs.ErrReadOnly)
type ReadOnlyFileSystem struct {
	FileReader

	fs   FileSystem
	opts ReadOnlyOptions
}

// ReadOnlyOptions configures a ReadOnlyFileSystem.
type ReadOnlyOptions struct {
	// AllowCreateDir lets CreateDir through, e.g. for staging areas.
	AllowCreateDir bool

	// OnWriteAttempt sees every blocked mutation. Its error replaces
	// ErrReadOnly; returning nil lets the mutation through.
	OnWriteAttempt func(op, path string) error
}

type ReadOnlyOption func(*ReadOnlyOptions)

func WithAllowCreateDir(allow bool) ReadOnlyOption {
	return func(o *ReadOnlyOptions) { o.AllowCreateDir = allow }
}

// WithWriteAttemptHandler installs OnWriteAttempt.
func WithWriteAttemptHandler(handler func(op, path string) error) ReadOnlyOption {
	return func(o *ReadOnlyOptions) { o.OnWriteAttempt = handler }
}

func NewReadOnlyFileSystem(fs FileSystem, opts ...ReadOnlyOption) *ReadOnlyFileSystem {
	r := &ReadOnlyFileSystem{FileReader: fs, fs: fs}
	for _, opt := range opts {
		opt(&r.opts)
	}
	return r
}

// Unwrap returns the wrapped backend.
func (r *ReadOnlyFileSystem) Unwrap() FileSystem { return r.fs }

// IsReadOnly marks the wrapper for callers that only see a FileSystem.
func (r *ReadOnlyFileSystem) IsReadOnly() bool { return true }

// guard reports whether op may reach the wrapped backend.
func (r *ReadOnlyFileSystem) guard(op, path string) error {
	err := ErrReadOnly
	if r.opts.OnWriteAttempt != nil {
		err = r.opts.OnWriteAttempt(op, path)
	}
	if err != nil {
		return &PathError{Op: op, Path: path, Err: err}
	}
	return nil
}

func (r *ReadOnlyFileSystem) Write(ctx context.Context, path string, content io.Reader, options ...Option) error {
	if err := r.guard("write", path); err != nil {
		return err
	}
	return r.fs.Write(ctx, path, content, options...)
}

func (r *ReadOnlyFileSystem) Delete(ctx context.Context, path string) error {
	if err := r.guard("delete", path); err != nil {
		return err
	}
	return r.fs.Delete(ctx, path)
}

func (r *ReadOnlyFileSystem) CreateDir(ctx context.Context, path string) error {
	if r.opts.AllowCreateDir {
		return r.fs.CreateDir(ctx, path)
	}
	if err := r.guard("createdir", path); err != nil {
		return err
	}
	return r.fs.CreateDir(ctx, path)
}

func (r *ReadOnlyFileSystem) DeleteDir(ctx context.Context, path string) error {
	if err := r.guard("deletedir", path); err != nil {
		return err
	}
	return r.fs.DeleteDir(ctx, path)
}

// Checksum uses the wrapped backend's native checksum when it has one.
func (r *ReadOnlyFileSystem) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	return Checksum(ctx, r.fs, path, algorithm)
}

// Visibility is always private since nothing behind the wrapper is
// writable.
func (r *ReadOnlyFileSystem) Visibility(context.Context, string) (Visibility, error) {
	return VisibilityPrivate, nil
}

func (r *ReadOnlyFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	if w, ok := r.fs.(CanWatch); ok {
		return w.Watch(ctx, pattern)
	}
	return CancelledChangeToken{}, nil
}

var (
	_ FileSystem    = (*ReadOnlyFileSystem)(nil)
	_ CanChecksum   = (*ReadOnlyFileSystem)(nil)
	_ CanVisibility = (*ReadOnlyFileSystem)(nil)
	_ CanWatch      = (*ReadOnlyFileSystem)(nil)
)

// IsReadOnlyError reports whether err came from a read-only guard.
func IsReadOnlyError(err error) bool {
	return errors.Is(err, ErrReadOnly)
}
