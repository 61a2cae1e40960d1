package vfs

import (
	"errors"
	"fmt"

	"github.com/gobeaver/nodefs"
)

var (
	// ErrNoParentAvailable is returned when navigating above a root node.
	ErrNoParentAvailable = errors.New("no parent available")

	// ErrDirectoryNotFound is returned when a directory operation targets
	// a path that is not an existing directory.
	ErrDirectoryNotFound = fmt.Errorf("directory not found: %w", nodefs.ErrNotExist)

	// ErrFileNotFound is returned when a file operation targets a path
	// that is not an existing file.
	ErrFileNotFound = fmt.Errorf("file not found: %w", nodefs.ErrNotExist)

	// ErrCannotWriteToDirectory is returned when file content is written
	// over a directory.
	ErrCannotWriteToDirectory = fmt.Errorf("cannot write to directory: %w", nodefs.ErrIsDir)

	// ErrCollisionOnRename is returned when a rename target already exists.
	ErrCollisionOnRename = fmt.Errorf("collision on rename: %w", nodefs.ErrExist)

	// ErrUnknownProtocol is returned when no backend is registered for a
	// protocol.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrInvalidProtocol is returned when registering under a name that is
	// not a valid URL scheme.
	ErrInvalidProtocol = errors.New("invalid protocol name")

	// ErrNilBackend is returned when registering a nil backend.
	ErrNilBackend = errors.New("backend cannot be nil")

	// ErrIncompleteCopy is returned by a copying move when the destination
	// is missing entries after the copy. The source is left in place.
	ErrIncompleteCopy = errors.New("destination incomplete after copy")

	// ErrFilterNotFound is returned when removing an unknown filter index.
	ErrFilterNotFound = errors.New("filter not found")
)

func pathErr(op, path string, err error) error {
	return nodefs.WrapPathErr(op, path, err)
}
