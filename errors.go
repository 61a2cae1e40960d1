package nodefs

import (
	"errors"
	"fmt"
)

// Backend failures. Drivers translate native errors into these so that
// errors.Is works the same against every backend.
var (
	ErrNotExist     = errors.New("file does not exist")
	ErrExist        = errors.New("file already exists")
	ErrPermission   = errors.New("permission denied")
	ErrNotDir       = errors.New("not a directory")
	ErrIsDir        = errors.New("is a directory")
	ErrInvalidName  = errors.New("invalid name")
	ErrNotSupported = errors.New("operation not supported")
	// ErrNotAllowed rejects paths that leave the backend root and
	// operations that would overlap source and destination.
	ErrNotAllowed = errors.New("operation not allowed")
)

// PathError ties a failure to the operation and backend-relative path.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// WrapPathErr wraps err in a PathError unless it already is one for the
// same path.
func WrapPathErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if pe := (*PathError)(nil); errors.As(err, &pe) && pe.Path == path {
		return err
	}
	return &PathError{Op: op, Path: path, Err: err}
}

func IsNotExist(err error) bool   { return errors.Is(err, ErrNotExist) }
func IsExist(err error) bool      { return errors.Is(err, ErrExist) }
func IsPermission(err error) bool { return errors.Is(err, ErrPermission) }
