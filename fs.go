package nodefs

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one entry reported by a backend.
//
// Path is relative to the backend root, "/"-separated and without a
// leading separator. Name is the last segment of Path.
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	ModTime     time.Time
	IsDir       bool
	ContentType string
	Metadata    map[string]string
}

// ============================================================================
// Core Interfaces
// ============================================================================

// FileReader provides read-only access to a backend.
type FileReader interface {
	// Read returns a stream for reading file content.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// ReadAll reads the entire file into memory.
	ReadAll(ctx context.Context, path string) ([]byte, error)

	// FileExists reports whether a regular file exists at path.
	FileExists(ctx context.Context, path string) (bool, error)

	// DirExists reports whether a directory exists at path.
	DirExists(ctx context.Context, path string) (bool, error)

	// Stat returns file or directory metadata.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// ListContents lists the entries below path. With recursive set, every
	// descendant is included; otherwise only immediate children.
	ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error)
}

// FileWriter provides the mutating half of a backend.
type FileWriter interface {
	// Write stores the content of r at path, creating parent directories.
	Write(ctx context.Context, path string, r io.Reader, opts ...Option) error

	// Delete removes a single file.
	Delete(ctx context.Context, path string) error

	// CreateDir creates a directory and any missing parents. Creating an
	// existing directory is not an error.
	CreateDir(ctx context.Context, path string) error

	// DeleteDir removes a directory and everything below it.
	DeleteDir(ctx context.Context, path string) error
}

// FileSystem is the full capability contract a backend implements.
type FileSystem interface {
	FileReader
	FileWriter
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================
// Backends expose optional capabilities through these interfaces. Callers
// discover them with a type assertion:
//
//	if mover, ok := fs.(CanMove); ok {
//	    mover.Move(ctx, src, dst)
//	}

// CanCopy indicates the backend copies natively. Copy handles both files
// and directories.
type CanCopy interface {
	Copy(ctx context.Context, src, dst string) error
}

// CanMove indicates the backend moves natively. Move handles both files
// and directories and is used for renames as well.
type CanMove interface {
	Move(ctx context.Context, src, dst string) error
}

// CanVisibility indicates the backend reports per-path visibility.
type CanVisibility interface {
	Visibility(ctx context.Context, path string) (Visibility, error)
}

// ============================================================================
// Checksum Interface
// ============================================================================

// ChecksumAlgorithm represents a supported checksum algorithm
type ChecksumAlgorithm string

const (
	// ChecksumMD5 is the MD5 hash algorithm.
	ChecksumMD5 ChecksumAlgorithm = "md5"
	// ChecksumSHA1 is the SHA-1 hash algorithm.
	ChecksumSHA1 ChecksumAlgorithm = "sha1"
	// ChecksumSHA256 is the SHA-256 hash algorithm.
	ChecksumSHA256 ChecksumAlgorithm = "sha256"
	// ChecksumSHA512 is the SHA-512 hash algorithm.
	ChecksumSHA512 ChecksumAlgorithm = "sha512"
	// ChecksumCRC32 is the IEEE CRC32 checksum.
	ChecksumCRC32 ChecksumAlgorithm = "crc32"
	// ChecksumXXHash is the 64-bit xxHash algorithm.
	ChecksumXXHash ChecksumAlgorithm = "xxhash"
)

// CanChecksum indicates the backend computes checksums itself, either from
// stored metadata or by hashing close to the data.
type CanChecksum interface {
	// Checksum returns the hex-encoded checksum of the file at path.
	Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error)
}

// ============================================================================
// Watching
// ============================================================================

// ChangeToken signals that something matching a watch pattern changed.
// Tokens are single-use: once HasChanged reports true it stays true.
type ChangeToken interface {
	// HasChanged returns true if a change has occurred.
	HasChanged() bool

	// ActiveChangeCallbacks reports whether the token raises callbacks on
	// its own. When false, consumers should poll HasChanged.
	ActiveChangeCallbacks() bool

	// RegisterChangeCallback registers a callback invoked on change and
	// returns a function that unregisters it.
	RegisterChangeCallback(callback func()) (unregister func())
}

// CanWatch indicates the backend can signal changes for a glob pattern
// such as "**/*.json" or "config/*".
type CanWatch interface {
	Watch(ctx context.Context, pattern string) (ChangeToken, error)
}
