// Package memory is an in-process nodefs backend. It is the reference
// backend for tests and for scratch protocols mounted at runtime.
package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobeaver/nodefs"
	"github.com/gobwas/glob"
)

// ErrNoSpace is returned when a write would exceed Config.MaxSize.
var ErrNoSpace = errors.New("memory storage limit exceeded")

// memoryFile represents a file stored in memory
type memoryFile struct {
	content     []byte
	contentType string
	metadata    map[string]string
	modTime     time.Time
	visibility  nodefs.Visibility
}

func (f *memoryFile) clone() *memoryFile {
	content := make([]byte, len(f.content))
	copy(content, f.content)

	var metadata map[string]string
	if f.metadata != nil {
		metadata = make(map[string]string, len(f.metadata))
		for k, v := range f.metadata {
			metadata[k] = v
		}
	}

	return &memoryFile{
		content:     content,
		contentType: f.contentType,
		metadata:    metadata,
		modTime:     time.Now(),
		visibility:  f.visibility,
	}
}

// memoryDir represents a directory in memory
type memoryDir struct {
	modTime time.Time
}

// watchEntry is a single watch subscription.
type watchEntry struct {
	matcher glob.Glob
	token   *nodefs.CallbackChangeToken
}

// Adapter is an in-memory nodefs.FileSystem. Paths are stored relative to
// the root without a leading separator; the root directory is "".
type Adapter struct {
	mu      sync.RWMutex
	files   map[string]*memoryFile
	dirs    map[string]*memoryDir
	maxSize int64 // 0 = unlimited
	size    int64

	watchMu sync.RWMutex
	watches []*watchEntry
}

// Config holds configuration for the memory adapter
type Config struct {
	// MaxSize is the maximum total storage size in bytes (0 = unlimited)
	MaxSize int64
}

// New creates a new in-memory filesystem adapter
func New(cfg ...Config) *Adapter {
	var maxSize int64
	if len(cfg) > 0 {
		maxSize = cfg[0].MaxSize
	}

	return &Adapter{
		files:   make(map[string]*memoryFile),
		dirs:    map[string]*memoryDir{"": {modTime: time.Now()}},
		maxSize: maxSize,
	}
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Write implements nodefs.FileWriter
func (a *Adapter) Write(ctx context.Context, p string, content io.Reader, options ...nodefs.Option) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p, err := normalizePath(p)
	if err != nil || p == "" {
		return &nodefs.PathError{Op: "write", Path: p, Err: nodefs.ErrNotAllowed}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return &nodefs.PathError{Op: "write", Path: p, Err: err}
	}

	opts := nodefs.ApplyOptions(options...)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, isDir := a.dirs[p]; isDir {
		return &nodefs.PathError{Op: "write", Path: p, Err: nodefs.ErrIsDir}
	}
	if err := a.checkParents(p); err != nil {
		return &nodefs.PathError{Op: "write", Path: p, Err: err}
	}

	var previous int64
	if existing, exists := a.files[p]; exists {
		if !opts.Overwrite {
			return &nodefs.PathError{Op: "write", Path: p, Err: nodefs.ErrExist}
		}
		previous = int64(len(existing.content))
	}

	newSize := a.size - previous + int64(len(data))
	if a.maxSize > 0 && newSize > a.maxSize {
		return &nodefs.PathError{Op: "write", Path: p, Err: ErrNoSpace}
	}

	a.ensureParentDirs(p)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = nodefs.GuessContentType(p, data)
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = nodefs.VisibilityPublic
	}

	a.files[p] = &memoryFile{
		content:     data,
		contentType: contentType,
		metadata:    opts.Metadata,
		modTime:     time.Now(),
		visibility:  visibility,
	}
	a.size = newSize

	go a.notifyWatchers(p)

	return nil
}

// Read implements nodefs.FileReader
func (a *Adapter) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	data, err := a.ReadAll(ctx, p)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ReadAll implements nodefs.FileReader
func (a *Adapter) ReadAll(ctx context.Context, p string) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	p, err := normalizePath(p)
	if err != nil {
		return nil, &nodefs.PathError{Op: "read", Path: p, Err: nodefs.ErrNotAllowed}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	file, exists := a.files[p]
	if !exists {
		if _, isDir := a.dirs[p]; isDir {
			return nil, &nodefs.PathError{Op: "read", Path: p, Err: nodefs.ErrIsDir}
		}
		return nil, &nodefs.PathError{Op: "read", Path: p, Err: nodefs.ErrNotExist}
	}

	data := make([]byte, len(file.content))
	copy(data, file.content)
	return data, nil
}

// Delete implements nodefs.FileWriter
func (a *Adapter) Delete(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p, err := normalizePath(p)
	if err != nil {
		return &nodefs.PathError{Op: "delete", Path: p, Err: nodefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	file, exists := a.files[p]
	if !exists {
		if _, isDir := a.dirs[p]; isDir {
			return &nodefs.PathError{Op: "delete", Path: p, Err: nodefs.ErrIsDir}
		}
		return &nodefs.PathError{Op: "delete", Path: p, Err: nodefs.ErrNotExist}
	}

	a.size -= int64(len(file.content))
	delete(a.files, p)

	go a.notifyWatchers(p)

	return nil
}

// FileExists implements nodefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}

	p, err := normalizePath(p)
	if err != nil {
		return false, nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.files[p]
	return exists, nil
}

// DirExists implements nodefs.FileReader
func (a *Adapter) DirExists(ctx context.Context, p string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}

	p, err := normalizePath(p)
	if err != nil {
		return false, nil
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.dirs[p]
	return exists, nil
}

// Stat implements nodefs.FileReader
func (a *Adapter) Stat(ctx context.Context, p string) (*nodefs.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	p, err := normalizePath(p)
	if err != nil {
		return nil, &nodefs.PathError{Op: "stat", Path: p, Err: nodefs.ErrNotAllowed}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if file, exists := a.files[p]; exists {
		return fileInfo(p, file), nil
	}
	if dir, exists := a.dirs[p]; exists {
		return dirInfo(p, dir), nil
	}

	return nil, &nodefs.PathError{Op: "stat", Path: p, Err: nodefs.ErrNotExist}
}

func fileInfo(p string, file *memoryFile) *nodefs.FileInfo {
	return &nodefs.FileInfo{
		Name:        path.Base(p),
		Path:        p,
		Size:        int64(len(file.content)),
		ModTime:     file.modTime,
		ContentType: file.contentType,
		Metadata:    file.metadata,
	}
}

func dirInfo(p string, dir *memoryDir) *nodefs.FileInfo {
	name := path.Base(p)
	if p == "" {
		name = ""
	}
	return &nodefs.FileInfo{
		Name:    name,
		Path:    p,
		ModTime: dir.modTime,
		IsDir:   true,
	}
}

// under reports whether child lies below dir. With direct set, only
// immediate children qualify.
func under(child, dir string, direct bool) bool {
	if child == dir {
		return false
	}
	rel := child
	if dir != "" {
		if !strings.HasPrefix(child, dir+"/") {
			return false
		}
		rel = child[len(dir)+1:]
	}
	return !direct || !strings.Contains(rel, "/")
}

// ListContents implements nodefs.FileReader
func (a *Adapter) ListContents(ctx context.Context, p string, recursive bool) ([]nodefs.FileInfo, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	p, err := normalizePath(p)
	if err != nil {
		return nil, &nodefs.PathError{Op: "listcontents", Path: p, Err: nodefs.ErrNotAllowed}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if _, exists := a.dirs[p]; !exists {
		if _, isFile := a.files[p]; isFile {
			return nil, &nodefs.PathError{Op: "listcontents", Path: p, Err: nodefs.ErrNotDir}
		}
		return nil, &nodefs.PathError{Op: "listcontents", Path: p, Err: nodefs.ErrNotExist}
	}

	var entries []nodefs.FileInfo
	for dirPath, dir := range a.dirs {
		if under(dirPath, p, !recursive) {
			entries = append(entries, *dirInfo(dirPath, dir))
		}
	}
	for filePath, file := range a.files {
		if under(filePath, p, !recursive) {
			entries = append(entries, *fileInfo(filePath, file))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	return entries, nil
}

// CreateDir implements nodefs.FileWriter
func (a *Adapter) CreateDir(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p, err := normalizePath(p)
	if err != nil {
		return &nodefs.PathError{Op: "createdir", Path: p, Err: nodefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.files[p]; exists {
		return &nodefs.PathError{Op: "createdir", Path: p, Err: nodefs.ErrExist}
	}
	if err := a.checkParents(p); err != nil {
		return &nodefs.PathError{Op: "createdir", Path: p, Err: err}
	}
	if _, exists := a.dirs[p]; exists {
		return nil
	}

	a.ensureParentDirs(p)
	a.dirs[p] = &memoryDir{modTime: time.Now()}

	go a.notifyWatchers(p)

	return nil
}

// DeleteDir implements nodefs.FileWriter
func (a *Adapter) DeleteDir(ctx context.Context, p string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	p, err := normalizePath(p)
	if err != nil {
		return &nodefs.PathError{Op: "deletedir", Path: p, Err: nodefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.dirs[p]; !exists {
		if _, isFile := a.files[p]; isFile {
			return &nodefs.PathError{Op: "deletedir", Path: p, Err: nodefs.ErrNotDir}
		}
		return &nodefs.PathError{Op: "deletedir", Path: p, Err: nodefs.ErrNotExist}
	}

	deleted := a.removeTree(p)
	// the root itself survives
	if p == "" {
		a.dirs[""] = &memoryDir{modTime: time.Now()}
	}

	go a.notifyWatchers(deleted...)

	return nil
}

// removeTree drops p and everything below it and returns the removed
// paths. Must be called with lock held.
func (a *Adapter) removeTree(p string) []string {
	var removed []string
	for filePath, file := range a.files {
		if under(filePath, p, false) {
			a.size -= int64(len(file.content))
			delete(a.files, filePath)
			removed = append(removed, filePath)
		}
	}
	for dirPath := range a.dirs {
		if dirPath == p || under(dirPath, p, false) {
			delete(a.dirs, dirPath)
			removed = append(removed, dirPath)
		}
	}
	return removed
}

// subtree returns the directories and files strictly below p, sorted.
// Must be called with lock held.
func (a *Adapter) subtree(p string) (dirs, files []string) {
	for dirPath := range a.dirs {
		if under(dirPath, p, false) {
			dirs = append(dirs, dirPath)
		}
	}
	for filePath := range a.files {
		if under(filePath, p, false) {
			files = append(files, filePath)
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files
}

// Clear removes all files and directories from the memory filesystem
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.files = make(map[string]*memoryFile)
	a.dirs = map[string]*memoryDir{"": {modTime: time.Now()}}
	a.size = 0
}

// Size returns the current total size of all stored files
func (a *Adapter) Size() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.size
}

// FileCount returns the number of files stored
func (a *Adapter) FileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.files)
}

// ensureParentDirs creates all parent directories for a given path
// Must be called with lock held
func (a *Adapter) ensureParentDirs(p string) {
	for dir := parentOf(p); dir != ""; dir = parentOf(dir) {
		if _, exists := a.dirs[dir]; !exists {
			a.dirs[dir] = &memoryDir{modTime: time.Now()}
		}
	}
}

// checkParents fails when a file sits where a parent directory would go.
func (a *Adapter) checkParents(p string) error {
	for dir := parentOf(p); dir != ""; dir = parentOf(dir) {
		if _, exists := a.files[dir]; exists {
			return nodefs.ErrNotDir
		}
	}
	return nil
}

func parentOf(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// normalizePath strips the leading separator and cleans p. Paths that
// climb above the root are rejected.
func normalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, `\`, "/")
	cleaned := path.Clean("/" + p)
	if strings.Contains(p, "..") {
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return strings.TrimPrefix(cleaned, "/"), nodefs.ErrNotAllowed
			}
		}
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

// Copy implements nodefs.CanCopy. Directories are copied with everything
// below them.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	src, err1 := normalizePath(src)
	dst, err2 := normalizePath(dst)
	if err1 != nil || err2 != nil || dst == "" {
		return &nodefs.PathError{Op: "copy", Path: src, Err: nodefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if srcFile, exists := a.files[src]; exists {
		if a.maxSize > 0 && a.size+int64(len(srcFile.content)) > a.maxSize {
			return &nodefs.PathError{Op: "copy", Path: dst, Err: ErrNoSpace}
		}
		if err := a.checkParents(dst); err != nil {
			return &nodefs.PathError{Op: "copy", Path: dst, Err: err}
		}
		a.ensureParentDirs(dst)
		if old, exists := a.files[dst]; exists {
			a.size -= int64(len(old.content))
		}
		clone := srcFile.clone()
		a.files[dst] = clone
		a.size += int64(len(clone.content))
		go a.notifyWatchers(dst)
		return nil
	}

	if _, exists := a.dirs[src]; !exists {
		return &nodefs.PathError{Op: "copy", Path: src, Err: nodefs.ErrNotExist}
	}
	if dst == src || under(dst, src, false) {
		return &nodefs.PathError{Op: "copy", Path: dst, Err: nodefs.ErrNotAllowed}
	}

	var total int64
	for filePath, file := range a.files {
		if under(filePath, src, false) {
			total += int64(len(file.content))
		}
	}
	if a.maxSize > 0 && a.size+total > a.maxSize {
		return &nodefs.PathError{Op: "copy", Path: dst, Err: ErrNoSpace}
	}

	dirs, files := a.subtree(src)

	changed := []string{dst}
	a.ensureParentDirs(dst)
	a.dirs[dst] = &memoryDir{modTime: time.Now()}
	for _, dirPath := range dirs {
		a.dirs[dst+dirPath[len(src):]] = &memoryDir{modTime: time.Now()}
	}
	for _, filePath := range files {
		file := a.files[filePath]
		target := dst + filePath[len(src):]
		if old, exists := a.files[target]; exists {
			a.size -= int64(len(old.content))
		}
		a.files[target] = file.clone()
		a.size += int64(len(file.content))
		changed = append(changed, target)
	}

	go a.notifyWatchers(changed...)

	return nil
}

// Move implements nodefs.CanMove for files and directories.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	src, err1 := normalizePath(src)
	dst, err2 := normalizePath(dst)
	if err1 != nil || err2 != nil || src == "" || dst == "" {
		return &nodefs.PathError{Op: "move", Path: src, Err: nodefs.ErrNotAllowed}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if srcFile, exists := a.files[src]; exists {
		if err := a.checkParents(dst); err != nil {
			return &nodefs.PathError{Op: "move", Path: dst, Err: err}
		}
		a.ensureParentDirs(dst)
		if old, exists := a.files[dst]; exists {
			a.size -= int64(len(old.content))
		}
		a.files[dst] = srcFile
		srcFile.modTime = time.Now()
		delete(a.files, src)
		go a.notifyWatchers(src, dst)
		return nil
	}

	if _, exists := a.dirs[src]; !exists {
		return &nodefs.PathError{Op: "move", Path: src, Err: nodefs.ErrNotExist}
	}
	if dst == src || under(dst, src, false) {
		return &nodefs.PathError{Op: "move", Path: dst, Err: nodefs.ErrNotAllowed}
	}

	dirs, files := a.subtree(src)

	changed := []string{src, dst}
	a.ensureParentDirs(dst)
	a.dirs[dst] = a.dirs[src]
	delete(a.dirs, src)
	for _, dirPath := range dirs {
		dir := a.dirs[dirPath]
		delete(a.dirs, dirPath)
		a.dirs[dst+dirPath[len(src):]] = dir
	}
	for _, filePath := range files {
		file := a.files[filePath]
		target := dst + filePath[len(src):]
		delete(a.files, filePath)
		if old, exists := a.files[target]; exists {
			a.size -= int64(len(old.content))
		}
		a.files[target] = file
		changed = append(changed, filePath, target)
	}

	go a.notifyWatchers(changed...)

	return nil
}

// Checksum implements nodefs.CanChecksum.
func (a *Adapter) Checksum(ctx context.Context, p string, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	data, err := a.ReadAll(ctx, p)
	if err != nil {
		return "", nodefs.WrapPathErr("checksum", p, err)
	}

	checksum, err := nodefs.CalculateChecksum(bytes.NewReader(data), algorithm)
	if err != nil {
		return "", &nodefs.PathError{Op: "checksum", Path: p, Err: err}
	}
	return checksum, nil
}

// Visibility implements nodefs.CanVisibility. Directories are public.
func (a *Adapter) Visibility(ctx context.Context, p string) (nodefs.Visibility, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}

	p, err := normalizePath(p)
	if err != nil {
		return "", &nodefs.PathError{Op: "visibility", Path: p, Err: nodefs.ErrNotAllowed}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if file, exists := a.files[p]; exists {
		return file.visibility, nil
	}
	if _, exists := a.dirs[p]; exists {
		return nodefs.VisibilityPublic, nil
	}
	return "", &nodefs.PathError{Op: "visibility", Path: p, Err: nodefs.ErrNotExist}
}

// ============================================================================
// Watcher Implementation
// ============================================================================

// Watch implements nodefs.CanWatch. Patterns are gobwas globs matched
// against root-relative paths, e.g. "**/*.txt" or "config/*".
func (a *Adapter) Watch(ctx context.Context, pattern string) (nodefs.ChangeToken, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	matcher, err := glob.Compile(strings.TrimPrefix(pattern, "/"), '/')
	if err != nil {
		return nil, &nodefs.PathError{Op: "watch", Path: pattern, Err: err}
	}

	token := nodefs.NewCallbackChangeToken()

	a.watchMu.Lock()
	a.watches = append(a.watches, &watchEntry{matcher: matcher, token: token})
	a.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		a.removeWatch(token)
	}()

	return token, nil
}

// notifyWatchers signals every watcher whose pattern matches one of the
// changed paths. A token fires once, so it is dropped after signalling.
func (a *Adapter) notifyWatchers(changed ...string) {
	a.watchMu.Lock()
	var fired []*nodefs.CallbackChangeToken
	kept := a.watches[:0]
	for _, entry := range a.watches {
		if matchesAny(entry.matcher, changed) {
			fired = append(fired, entry.token)
			continue
		}
		kept = append(kept, entry)
	}
	a.watches = kept
	a.watchMu.Unlock()

	for _, token := range fired {
		token.SignalChange()
	}
}

func matchesAny(matcher glob.Glob, changed []string) bool {
	for _, p := range changed {
		if matcher.Match(p) {
			return true
		}
	}
	return false
}

// removeWatch removes a watch entry by token
func (a *Adapter) removeWatch(token *nodefs.CallbackChangeToken) {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()

	for i, entry := range a.watches {
		if entry.token == token {
			a.watches[i] = a.watches[len(a.watches)-1]
			a.watches = a.watches[:len(a.watches)-1]
			return
		}
	}
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
