// Package objstore holds the pieces shared by the object store drivers:
// mapping root-relative paths to keys below a prefix, folding flat key
// listings into a directory view and polling a bucket for watches.
//
// Object stores have no directories. A directory exists when an object
// key lies below it, or when an empty marker object named "dir/" does.
package objstore

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/gobeaver/nodefs"
)

// Keyspace maps root-relative paths onto object keys below a prefix.
type Keyspace struct {
	prefix string
}

// NewKeyspace returns a keyspace rooted at prefix. A non-empty prefix is
// stored with a single trailing slash.
func NewKeyspace(prefix string) Keyspace {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return Keyspace{prefix: prefix}
}

// Prefix returns the key prefix, empty or ending in "/".
func (k Keyspace) Prefix() string {
	return k.prefix
}

// Resolve cleans p into its root-relative form. Paths that contain a ".."
// segment are refused.
func (k Keyspace) Resolve(op, p string) (string, error) {
	slashed := strings.ReplaceAll(p, `\`, "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", &nodefs.PathError{Op: op, Path: p, Err: nodefs.ErrNotAllowed}
		}
	}
	return strings.TrimPrefix(path.Clean("/"+slashed), "/"), nil
}

// Key returns the object key of the file at rel.
func (k Keyspace) Key(rel string) string {
	return k.prefix + rel
}

// DirKey returns the key prefix of the directory at rel, which is also
// the name of its marker object. The root maps to the bare prefix.
func (k Keyspace) DirKey(rel string) string {
	if rel == "" {
		return k.prefix
	}
	return k.prefix + rel + "/"
}

// Rel maps a key back to its root-relative path, reporting whether the
// key is a directory marker. ok is false for keys outside the prefix.
func (k Keyspace) Rel(key string) (rel string, marker, ok bool) {
	if !strings.HasPrefix(key, k.prefix) {
		return "", false, false
	}
	rel = strings.TrimPrefix(key, k.prefix)
	marker = strings.HasSuffix(rel, "/")
	return strings.Trim(rel, "/"), marker, true
}

// Within reports whether rel equals dir or lies below it. The root
// contains everything.
func Within(rel, dir string) bool {
	return dir == "" || rel == dir || strings.HasPrefix(rel, dir+"/")
}

// Object describes one stored object as reported by a listing.
type Object struct {
	Key         string
	Size        int64
	ModTime     time.Time
	ContentType string
	Metadata    map[string]string
}

// FileInfo describes a stored object at rel.
func FileInfo(rel string, o Object) nodefs.FileInfo {
	contentType := o.ContentType
	if contentType == "" {
		contentType = nodefs.GuessContentType(rel, nil)
	}
	return nodefs.FileInfo{
		Name:        path.Base(rel),
		Path:        rel,
		Size:        o.Size,
		ModTime:     o.ModTime,
		ContentType: contentType,
		Metadata:    o.Metadata,
	}
}

// DirInfo describes the directory at rel.
func DirInfo(rel string) nodefs.FileInfo {
	info := nodefs.FileInfo{Name: path.Base(rel), Path: rel, IsDir: true}
	if rel == "" {
		info.Name = ""
	}
	return info
}

// Listing folds flat object keys into the entries of one directory.
type Listing struct {
	ks        Keyspace
	dir       string
	recursive bool
	entries   map[string]nodefs.FileInfo
}

// NewListing starts a listing of dir. Recursive listings include every
// descendant, otherwise only direct children are kept.
func NewListing(ks Keyspace, dir string, recursive bool) *Listing {
	return &Listing{
		ks:        ks,
		dir:       dir,
		recursive: recursive,
		entries:   make(map[string]nodefs.FileInfo),
	}
}

// AddObject records an object, along with the directories its key
// implies.
func (l *Listing) AddObject(o Object) {
	rel, marker, ok := l.ks.Rel(o.Key)
	if !ok || rel == l.dir || !Within(rel, l.dir) {
		return
	}

	below := rel
	if l.dir != "" {
		below = strings.TrimPrefix(rel, l.dir+"/")
	}
	segments := strings.Split(below, "/")

	// directories between dir and the object
	for i := 1; i < len(segments); i++ {
		if !l.recursive && i > 1 {
			break
		}
		l.addDir(path.Join(l.dir, strings.Join(segments[:i], "/")))
	}

	if !l.recursive && len(segments) > 1 {
		return
	}
	if marker {
		l.addDir(rel)
		return
	}
	l.entries[rel] = FileInfo(rel, o)
}

// AddPrefix records a common prefix returned by a delimited listing.
func (l *Listing) AddPrefix(key string) {
	rel, _, ok := l.ks.Rel(key)
	if !ok || rel == l.dir || !Within(rel, l.dir) {
		return
	}
	l.addDir(rel)
}

func (l *Listing) addDir(rel string) {
	if _, ok := l.entries[rel]; !ok {
		l.entries[rel] = DirInfo(rel)
	}
}

// Len returns the number of entries collected so far.
func (l *Listing) Len() int {
	return len(l.entries)
}

// Entries returns the collected entries sorted by path.
func (l *Listing) Entries() []nodefs.FileInfo {
	out := make([]nodefs.FileInfo, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out
}

// ============================================================================
// Polling watches
// ============================================================================

// FileState is the part of an object compared between polls.
type FileState struct {
	ModTime time.Time
	Size    int64
}

// State maps root-relative paths to their last seen state.
type State map[string]FileState

// Equal reports whether s and other hold the same paths in the same state.
func (s State) Equal(other State) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		ov, ok := other[k]
		if !ok || !v.ModTime.Equal(ov.ModTime) || v.Size != ov.Size {
			return false
		}
	}
	return true
}

// ListFunc returns every object below the keyspace prefix.
type ListFunc func(ctx context.Context) ([]Object, error)

// Watch polls list every interval and fires the returned token once the
// objects matching pattern differ from the first snapshot. pattern is a
// glob over root-relative paths.
func Watch(ctx context.Context, ks Keyspace, pattern string, interval time.Duration, list ListFunc) (nodefs.ChangeToken, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, &nodefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	snapshot := func() (State, error) {
		objects, err := list(ctx)
		if err != nil {
			return nil, err
		}
		state := make(State)
		for _, o := range objects {
			rel, marker, ok := ks.Rel(o.Key)
			if ok && !marker && matcher.Match(rel) {
				state[rel] = FileState{ModTime: o.ModTime, Size: o.Size}
			}
		}
		return state, nil
	}

	initial, err := snapshot()
	if err != nil {
		return nil, nodefs.WrapPathErr("watch", pattern, err)
	}

	return nodefs.NewPollingChangeToken(ctx, nodefs.PollingConfig{
		Interval: interval,
		CheckFunc: func() bool {
			current, err := snapshot()
			if err != nil {
				return false
			}
			return !initial.Equal(current)
		},
	}), nil
}
