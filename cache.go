package nodefs

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// ============================================================================
// Cache Interface
// ============================================================================

// Cache is the store behind CachingFileSystem. Implementations must be
// safe for concurrent use.
type Cache interface {
	// Get retrieves a value from the cache.
	Get(key string) (any, bool)

	// Set stores a value with the given TTL. A TTL of 0 means no expiration.
	Set(key string, value any, ttl time.Duration)

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()
}

// CacheSelectiveDeleter is implemented by caches that can drop the keys
// matching a predicate. CachingFileSystem uses it to invalidate a subtree;
// caches without it are cleared entirely.
type CacheSelectiveDeleter interface {
	DeleteFunc(match func(key string) bool)
}

// CacheStatistics contains cache performance metrics.
type CacheStatistics struct {
	Hits    int64
	Misses  int64
	Size    int64
	HitRate float64
}

// ============================================================================
// In-Memory Cache Implementation
// ============================================================================

type cacheEntry struct {
	value      any
	expiration time.Time
	hasExpiry  bool
}

func (e cacheEntry) expired(now time.Time) bool {
	return e.hasExpiry && now.After(e.expiration)
}

// MemoryCache is a TTL cache over an xsync.Map.
type MemoryCache struct {
	entries *xsync.Map[string, cacheEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: xsync.NewMap[string, cacheEntry](),
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(key string) (any, bool) {
	entry, ok := c.entries.Load(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if entry.expired(time.Now()) {
		c.entries.Delete(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.value, true
}

// Set stores a value in the cache.
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiration = time.Now().Add(ttl)
		entry.hasExpiry = true
	}
	c.entries.Store(key, entry)
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(key string) {
	c.entries.Delete(key)
}

// DeleteFunc removes every key for which match returns true.
func (c *MemoryCache) DeleteFunc(match func(key string) bool) {
	c.entries.Range(func(key string, _ cacheEntry) bool {
		if match(key) {
			c.entries.Delete(key)
		}
		return true
	})
}

// Clear removes all values from the cache.
func (c *MemoryCache) Clear() {
	c.entries.Clear()
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup() {
	now := time.Now()
	c.entries.Range(func(key string, entry cacheEntry) bool {
		if entry.expired(now) {
			c.entries.Delete(key)
		}
		return true
	})
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() CacheStatistics {
	hits, misses := c.hits.Load(), c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return CacheStatistics{
		Hits:    hits,
		Misses:  misses,
		Size:    int64(c.entries.Size()),
		HitRate: hitRate,
	}
}

var (
	_ Cache                 = (*MemoryCache)(nil)
	_ CacheSelectiveDeleter = (*MemoryCache)(nil)
)

// ============================================================================
// CachingFileSystem Decorator
// ============================================================================

// CachingFileSystem wraps a FileSystem and caches metadata: existence
// checks, Stat and listings. Content is never cached.
//
// A mutation through the wrapper drops every cached entry for the mutated
// path, its ancestors and its descendants, so listings seen through the
// wrapper stay consistent with its own writes. Changes made behind the
// wrapper's back are only seen once entries expire.
//
//	cached := nodefs.NewCachingFileSystem(backend, nodefs.NewMemoryCache(),
//	    nodefs.WithCacheTTL(time.Minute),
//	)
type CachingFileSystem struct {
	fs    FileSystem
	cache Cache
	opts  CacheOptions
}

// CacheOptions configures the CachingFileSystem behavior.
type CacheOptions struct {
	// TTL is the time-to-live for cached entries. Zero means no expiry.
	TTL time.Duration

	// CacheExists enables caching of FileExists and DirExists.
	CacheExists bool

	// CacheFileInfo enables caching of Stat.
	CacheFileInfo bool

	// CacheList enables caching of ListContents.
	CacheList bool

	// KeyPrefix namespaces keys when several wrappers share one Cache.
	KeyPrefix string

	// OnCacheHit and OnCacheMiss observe cache behaviour.
	OnCacheHit  func(op, path string)
	OnCacheMiss func(op, path string)
}

// CacheOption is a functional option for configuring CachingFileSystem.
type CacheOption func(*CacheOptions)

// WithCacheTTL sets the time-to-live for cached entries.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(o *CacheOptions) {
		o.TTL = ttl
	}
}

// WithCacheExists enables or disables caching of existence checks.
func WithCacheExists(enabled bool) CacheOption {
	return func(o *CacheOptions) {
		o.CacheExists = enabled
	}
}

// WithCacheFileInfo enables or disables caching of Stat.
func WithCacheFileInfo(enabled bool) CacheOption {
	return func(o *CacheOptions) {
		o.CacheFileInfo = enabled
	}
}

// WithCacheList enables or disables caching of listings.
func WithCacheList(enabled bool) CacheOption {
	return func(o *CacheOptions) {
		o.CacheList = enabled
	}
}

// WithCacheKeyPrefix sets a prefix for all cache keys.
func WithCacheKeyPrefix(prefix string) CacheOption {
	return func(o *CacheOptions) {
		o.KeyPrefix = prefix
	}
}

// WithCacheHitCallback sets a callback for cache hits.
func WithCacheHitCallback(callback func(op, path string)) CacheOption {
	return func(o *CacheOptions) {
		o.OnCacheHit = callback
	}
}

// WithCacheMissCallback sets a callback for cache misses.
func WithCacheMissCallback(callback func(op, path string)) CacheOption {
	return func(o *CacheOptions) {
		o.OnCacheMiss = callback
	}
}

// NewCachingFileSystem wraps fs. Every kind of metadata is cached by
// default with a 30 second TTL.
func NewCachingFileSystem(fs FileSystem, cache Cache, opts ...CacheOption) *CachingFileSystem {
	options := CacheOptions{
		TTL:           30 * time.Second,
		CacheExists:   true,
		CacheFileInfo: true,
		CacheList:     true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &CachingFileSystem{fs: fs, cache: cache, opts: options}
}

// Unwrap returns the wrapped FileSystem.
func (c *CachingFileSystem) Unwrap() FileSystem {
	return c.fs
}

// Cache returns the underlying Cache.
func (c *CachingFileSystem) Cache() Cache {
	return c.cache
}

func cachePath(path string) string {
	return strings.Trim(path, "/")
}

func (c *CachingFileSystem) cacheKey(op, path string) string {
	return c.opts.KeyPrefix + op + ":" + cachePath(path)
}

// related reports whether a and b are the same path or one lies below the
// other. The empty path is the root and relates to everything.
func related(a, b string) bool {
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// invalidate drops cached entries touching any of the given paths.
func (c *CachingFileSystem) invalidate(paths ...string) {
	deleter, ok := c.cache.(CacheSelectiveDeleter)
	if !ok {
		c.cache.Clear()
		return
	}
	targets := make([]string, len(paths))
	for i, p := range paths {
		targets[i] = cachePath(p)
	}
	deleter.DeleteFunc(func(key string) bool {
		if !strings.HasPrefix(key, c.opts.KeyPrefix) {
			return false
		}
		_, keyPath, found := strings.Cut(strings.TrimPrefix(key, c.opts.KeyPrefix), ":")
		if !found {
			return false
		}
		for _, t := range targets {
			if related(keyPath, t) {
				return true
			}
		}
		return false
	})
}

func (c *CachingFileSystem) lookup(op, path string) (any, bool) {
	v, ok := c.cache.Get(c.cacheKey(op, path))
	if ok {
		if c.opts.OnCacheHit != nil {
			c.opts.OnCacheHit(op, path)
		}
		return v, true
	}
	if c.opts.OnCacheMiss != nil {
		c.opts.OnCacheMiss(op, path)
	}
	return nil, false
}

// ============================================================================
// FileSystem Interface - Cached Operations
// ============================================================================

// FileExists checks if a file exists, using cache when available.
func (c *CachingFileSystem) FileExists(ctx context.Context, path string) (bool, error) {
	if !c.opts.CacheExists {
		return c.fs.FileExists(ctx, path)
	}
	if cached, ok := c.lookup("fileexists", path); ok {
		return cached.(bool), nil
	}
	exists, err := c.fs.FileExists(ctx, path)
	if err != nil {
		return false, err
	}
	c.cache.Set(c.cacheKey("fileexists", path), exists, c.opts.TTL)
	return exists, nil
}

// DirExists checks if a directory exists, using cache when available.
func (c *CachingFileSystem) DirExists(ctx context.Context, path string) (bool, error) {
	if !c.opts.CacheExists {
		return c.fs.DirExists(ctx, path)
	}
	if cached, ok := c.lookup("direxists", path); ok {
		return cached.(bool), nil
	}
	exists, err := c.fs.DirExists(ctx, path)
	if err != nil {
		return false, err
	}
	c.cache.Set(c.cacheKey("direxists", path), exists, c.opts.TTL)
	return exists, nil
}

// Stat returns file information, using cache when available.
func (c *CachingFileSystem) Stat(ctx context.Context, path string) (*FileInfo, error) {
	if !c.opts.CacheFileInfo {
		return c.fs.Stat(ctx, path)
	}
	if cached, ok := c.lookup("stat", path); ok {
		// Return a copy to prevent mutation
		info := *cached.(*FileInfo)
		return &info, nil
	}
	info, err := c.fs.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	stored := *info
	c.cache.Set(c.cacheKey("stat", path), &stored, c.opts.TTL)
	return info, nil
}

// ListContents returns directory contents, using cache when available.
func (c *CachingFileSystem) ListContents(ctx context.Context, path string, recursive bool) ([]FileInfo, error) {
	if !c.opts.CacheList {
		return c.fs.ListContents(ctx, path, recursive)
	}
	op := "list"
	if recursive {
		op = "list-recursive"
	}
	if cached, ok := c.lookup(op, path); ok {
		files := cached.([]FileInfo)
		result := make([]FileInfo, len(files))
		copy(result, files)
		return result, nil
	}
	files, err := c.fs.ListContents(ctx, path, recursive)
	if err != nil {
		return nil, err
	}
	stored := make([]FileInfo, len(files))
	copy(stored, files)
	c.cache.Set(c.cacheKey(op, path), stored, c.opts.TTL)
	return files, nil
}

// ============================================================================
// FileSystem Interface - Pass-through Operations
// ============================================================================

// Read delegates to the underlying filesystem (content is not cached).
func (c *CachingFileSystem) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	return c.fs.Read(ctx, path)
}

// ReadAll delegates to the underlying filesystem (content is not cached).
func (c *CachingFileSystem) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return c.fs.ReadAll(ctx, path)
}

// Write delegates to the underlying filesystem and invalidates cache.
func (c *CachingFileSystem) Write(ctx context.Context, path string, content io.Reader, options ...Option) error {
	err := c.fs.Write(ctx, path, content, options...)
	c.invalidate(path)
	return err
}

// Delete delegates to the underlying filesystem and invalidates cache.
func (c *CachingFileSystem) Delete(ctx context.Context, path string) error {
	err := c.fs.Delete(ctx, path)
	c.invalidate(path)
	return err
}

// CreateDir delegates to the underlying filesystem and invalidates cache.
func (c *CachingFileSystem) CreateDir(ctx context.Context, path string) error {
	err := c.fs.CreateDir(ctx, path)
	c.invalidate(path)
	return err
}

// DeleteDir delegates to the underlying filesystem and invalidates cache.
func (c *CachingFileSystem) DeleteDir(ctx context.Context, path string) error {
	err := c.fs.DeleteDir(ctx, path)
	c.invalidate(path)
	return err
}

// ============================================================================
// Optional Interface Delegation
// ============================================================================

// Copy delegates to the underlying filesystem and invalidates cache.
func (c *CachingFileSystem) Copy(ctx context.Context, src, dst string) error {
	copier, ok := c.fs.(CanCopy)
	if !ok {
		return &PathError{Op: "copy", Path: src, Err: ErrNotSupported}
	}
	err := copier.Copy(ctx, src, dst)
	c.invalidate(dst)
	return err
}

// Move delegates to the underlying filesystem and invalidates cache.
func (c *CachingFileSystem) Move(ctx context.Context, src, dst string) error {
	mover, ok := c.fs.(CanMove)
	if !ok {
		return &PathError{Op: "move", Path: src, Err: ErrNotSupported}
	}
	err := mover.Move(ctx, src, dst)
	c.invalidate(src, dst)
	return err
}

// Checksum delegates to the underlying filesystem.
func (c *CachingFileSystem) Checksum(ctx context.Context, path string, algorithm ChecksumAlgorithm) (string, error) {
	if checksummer, ok := c.fs.(CanChecksum); ok {
		return checksummer.Checksum(ctx, path, algorithm)
	}
	rc, err := c.fs.Read(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return CalculateChecksum(rc, algorithm)
}

// Visibility delegates to the underlying filesystem.
func (c *CachingFileSystem) Visibility(ctx context.Context, path string) (Visibility, error) {
	if v, ok := c.fs.(CanVisibility); ok {
		return v.Visibility(ctx, path)
	}
	return VisibilityPublic, nil
}

// Watch delegates to the underlying filesystem. When the token fires, the
// whole cache is dropped before callbacks run.
func (c *CachingFileSystem) Watch(ctx context.Context, pattern string) (ChangeToken, error) {
	watcher, ok := c.fs.(CanWatch)
	if !ok {
		return CancelledChangeToken{}, nil
	}
	token, err := watcher.Watch(ctx, pattern)
	if err != nil {
		return nil, err
	}
	return &cacheInvalidatingToken{token: token, cache: c}, nil
}

// cacheInvalidatingToken wraps a ChangeToken to invalidate cache on change.
type cacheInvalidatingToken struct {
	token ChangeToken
	cache *CachingFileSystem
}

func (t *cacheInvalidatingToken) HasChanged() bool {
	return t.token.HasChanged()
}

func (t *cacheInvalidatingToken) ActiveChangeCallbacks() bool {
	return t.token.ActiveChangeCallbacks()
}

func (t *cacheInvalidatingToken) RegisterChangeCallback(callback func()) (unregister func()) {
	return t.token.RegisterChangeCallback(func() {
		t.cache.cache.Clear()
		callback()
	})
}

// Ensure CachingFileSystem implements FileSystem and optional interfaces
var (
	_ FileSystem    = (*CachingFileSystem)(nil)
	_ CanCopy       = (*CachingFileSystem)(nil)
	_ CanMove       = (*CachingFileSystem)(nil)
	_ CanChecksum   = (*CachingFileSystem)(nil)
	_ CanVisibility = (*CachingFileSystem)(nil)
	_ CanWatch      = (*CachingFileSystem)(nil)
)
