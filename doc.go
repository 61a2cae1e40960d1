// Package nodefs is the storage contract behind the vfs package: a small
// FileSystem interface that every backend implements, plus decorators that
// add caching and read-only behavior on top of any backend.
//
// Backends live under driver/ and register themselves by name when
// imported:
//
//	import _ "github.com/gobeaver/nodefs/driver/memory"
//
//	fs, err := nodefs.CreateDriver(&nodefs.Config{Driver: "memory"})
//
// Paths handed to a backend are relative to the backend root, use "/" as
// separator and never carry a protocol. The vfs package owns protocol
// routing and turns these flat paths into navigable nodes.
//
// # Optional Capabilities
//
// Backends may implement extra interfaces. Callers check with a type
// assertion and fall back to a generic implementation:
//
//	if mover, ok := fs.(nodefs.CanMove); ok {
//	    err = mover.Move(ctx, "a/b.txt", "c/b.txt")
//	}
//
// [CanCopy], [CanMove], [CanChecksum], [CanVisibility] and [CanWatch] are
// the capabilities in use. A decorator that always implements a capability
// returns an error matching [ErrNotSupported] when the wrapped backend
// lacks it.
//
// # Errors
//
// Operations return *[PathError] values that wrap one of the sentinels in
// this package, so errors.Is(err, nodefs.ErrNotExist) works for every
// backend.
//
// # Configuration
//
// [GetConfig] reads BEAVER_NODEFS_* environment variables through
// beaver-kit/config.
package nodefs
