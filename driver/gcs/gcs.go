// Package gcs is the nodefs backend for a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/internal/objstore"
)

// Adapter provides a Google Cloud Storage implementation of nodefs.FileSystem
type Adapter struct {
	client       *storage.Client
	bucket       string
	keys         objstore.Keyspace
	pollInterval time.Duration
}

// AdapterOption is a function that configures GCS Adapter
type AdapterOption func(*Adapter)

// WithPrefix roots the filesystem at a key prefix within the bucket.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		a.keys = objstore.NewKeyspace(prefix)
	}
}

// WithPollInterval sets how often Watch tokens list the bucket.
func WithPollInterval(interval time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = interval
	}
}

// New creates a new GCS filesystem adapter
func New(client *storage.Client, bucket string, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		client:       client,
		bucket:       bucket,
		pollInterval: 30 * time.Second,
	}

	for _, option := range options {
		option(adapter)
	}

	return adapter
}

func (a *Adapter) object(key string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(key)
}

func (a *Adapter) resolve(ctx context.Context, op, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return a.keys.Resolve(op, p)
}

// mapGCSError maps GCS errors to nodefs errors
func mapGCSError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrNotExist}
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrNotExist}
		case http.StatusForbidden, http.StatusUnauthorized:
			return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrPermission}
		case http.StatusPreconditionFailed:
			return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrExist}
		}
	}

	return nodefs.WrapPathErr(op, path, err)
}

// attrs returns the attributes of the object at rel, or nil when there is
// none.
func (a *Adapter) attrs(ctx context.Context, op, rel string) (*storage.ObjectAttrs, error) {
	if rel == "" {
		return nil, nil
	}
	attrs, err := a.object(a.keys.Key(rel)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, mapGCSError(op, rel, err)
	}
	return attrs, nil
}

func (a *Adapter) dirExists(ctx context.Context, op, rel string) (bool, error) {
	if rel == "" {
		return true, nil
	}
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: a.keys.DirKey(rel)})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, mapGCSError(op, rel, err)
	}
	return true, nil
}

func (a *Adapter) missing(ctx context.Context, op, rel string) error {
	isDir, err := a.dirExists(ctx, op, rel)
	if err != nil {
		return err
	}
	if isDir {
		return &nodefs.PathError{Op: op, Path: rel, Err: nodefs.ErrIsDir}
	}
	return &nodefs.PathError{Op: op, Path: rel, Err: nodefs.ErrNotExist}
}

func (a *Adapter) checkParents(ctx context.Context, op, rel string) error {
	for dir := parentOf(rel); dir != ""; dir = parentOf(dir) {
		attrs, err := a.attrs(ctx, op, dir)
		if err != nil {
			return err
		}
		if attrs != nil {
			return &nodefs.PathError{Op: op, Path: rel, Err: nodefs.ErrNotDir}
		}
	}
	return nil
}

func parentOf(rel string) string {
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		return rel[:i]
	}
	return ""
}

func toObject(attrs *storage.ObjectAttrs) objstore.Object {
	return objstore.Object{
		Key:         attrs.Name,
		Size:        attrs.Size,
		ModTime:     attrs.Updated,
		ContentType: attrs.ContentType,
		Metadata:    attrs.Metadata,
	}
}

// Write implements nodefs.FileWriter
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...nodefs.Option) error {
	rel, err := a.resolve(ctx, "write", filePath)
	if err != nil {
		return err
	}
	if rel == "" {
		return &nodefs.PathError{Op: "write", Path: filePath, Err: nodefs.ErrIsDir}
	}

	opts := nodefs.ApplyOptions(options...)

	existing, err := a.attrs(ctx, "write", rel)
	if err != nil {
		return err
	}
	if existing != nil && !opts.Overwrite {
		return &nodefs.PathError{Op: "write", Path: rel, Err: nodefs.ErrExist}
	}
	if existing == nil {
		isDir, err := a.dirExists(ctx, "write", rel)
		if err != nil {
			return err
		}
		if isDir {
			return &nodefs.PathError{Op: "write", Path: rel, Err: nodefs.ErrIsDir}
		}
	}
	if err := a.checkParents(ctx, "write", rel); err != nil {
		return err
	}

	obj := a.object(a.keys.Key(rel))
	if !opts.Overwrite {
		// fail if another writer created the object meanwhile
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}

	writer := obj.NewWriter(ctx)

	writer.ContentType = opts.ContentType
	if writer.ContentType == "" {
		writer.ContentType = nodefs.GuessContentType(rel, nil)
	}
	if opts.CacheControl != "" {
		writer.CacheControl = opts.CacheControl
	}
	if len(opts.Metadata) > 0 {
		writer.Metadata = opts.Metadata
	}
	if opts.Visibility == nodefs.VisibilityPublic {
		writer.ACL = []storage.ACLRule{
			{Entity: storage.AllUsers, Role: storage.RoleReader},
		}
	}

	if _, err := io.Copy(writer, content); err != nil {
		writer.Close()
		return mapGCSError("write", rel, err)
	}

	return mapGCSError("write", rel, writer.Close())
}

// Read implements nodefs.FileReader
func (a *Adapter) Read(ctx context.Context, filePath string) (io.ReadCloser, error) {
	rel, err := a.resolve(ctx, "read", filePath)
	if err != nil {
		return nil, err
	}
	if rel == "" {
		return nil, &nodefs.PathError{Op: "read", Path: filePath, Err: nodefs.ErrIsDir}
	}

	reader, err := a.object(a.keys.Key(rel)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, a.missing(ctx, "read", rel)
		}
		return nil, mapGCSError("read", rel, err)
	}

	return reader, nil
}

// ReadAll implements nodefs.FileReader
func (a *Adapter) ReadAll(ctx context.Context, path string) ([]byte, error) {
	rc, err := a.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Delete implements nodefs.FileWriter
func (a *Adapter) Delete(ctx context.Context, filePath string) error {
	rel, err := a.resolve(ctx, "delete", filePath)
	if err != nil {
		return err
	}

	if rel == "" {
		return &nodefs.PathError{Op: "delete", Path: filePath, Err: nodefs.ErrIsDir}
	}

	err = a.object(a.keys.Key(rel)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return a.missing(ctx, "delete", rel)
	}
	return mapGCSError("delete", rel, err)
}

// FileExists implements nodefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	rel, err := a.resolve(ctx, "fileexists", filePath)
	if err != nil {
		return false, err
	}
	attrs, err := a.attrs(ctx, "fileexists", rel)
	return attrs != nil, err
}

// DirExists implements nodefs.FileReader
func (a *Adapter) DirExists(ctx context.Context, dirPath string) (bool, error) {
	rel, err := a.resolve(ctx, "direxists", dirPath)
	if err != nil {
		return false, err
	}
	return a.dirExists(ctx, "direxists", rel)
}

// Stat implements nodefs.FileReader
func (a *Adapter) Stat(ctx context.Context, filePath string) (*nodefs.FileInfo, error) {
	rel, err := a.resolve(ctx, "stat", filePath)
	if err != nil {
		return nil, err
	}

	attrs, err := a.attrs(ctx, "stat", rel)
	if err != nil {
		return nil, err
	}
	if attrs == nil {
		isDir, err := a.dirExists(ctx, "stat", rel)
		if err != nil {
			return nil, err
		}
		if !isDir {
			return nil, &nodefs.PathError{Op: "stat", Path: rel, Err: nodefs.ErrNotExist}
		}
		info := objstore.DirInfo(rel)
		return &info, nil
	}

	info := objstore.FileInfo(rel, toObject(attrs))
	return &info, nil
}

func (a *Adapter) listAll(ctx context.Context, prefix string) ([]objstore.Object, error) {
	var objects []objstore.Object
	it := a.client.Bucket(a.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return objects, nil
		}
		if err != nil {
			return nil, err
		}
		objects = append(objects, toObject(attrs))
	}
}

// ListContents implements nodefs.FileReader
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]nodefs.FileInfo, error) {
	rel, err := a.resolve(ctx, "listcontents", dirPath)
	if err != nil {
		return nil, err
	}

	query := &storage.Query{Prefix: a.keys.DirKey(rel)}
	if !recursive {
		query.Delimiter = "/"
	}

	listing := objstore.NewListing(a.keys, rel, recursive)
	found := rel == ""

	it := a.client.Bucket(a.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapGCSError("listcontents", rel, err)
		}

		found = true
		if attrs.Prefix != "" {
			listing.AddPrefix(attrs.Prefix)
			continue
		}
		listing.AddObject(toObject(attrs))
	}

	if !found {
		attrs, err := a.attrs(ctx, "listcontents", rel)
		if err != nil {
			return nil, err
		}
		if attrs != nil {
			return nil, &nodefs.PathError{Op: "listcontents", Path: rel, Err: nodefs.ErrNotDir}
		}
		return nil, &nodefs.PathError{Op: "listcontents", Path: rel, Err: nodefs.ErrNotExist}
	}

	return listing.Entries(), nil
}

// CreateDir implements nodefs.FileWriter by storing an empty marker object.
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	rel, err := a.resolve(ctx, "createdir", dirPath)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}

	attrs, err := a.attrs(ctx, "createdir", rel)
	if err != nil {
		return err
	}
	if attrs != nil {
		return &nodefs.PathError{Op: "createdir", Path: rel, Err: nodefs.ErrExist}
	}
	if err := a.checkParents(ctx, "createdir", rel); err != nil {
		return err
	}

	writer := a.object(a.keys.DirKey(rel)).NewWriter(ctx)
	writer.ContentType = "application/x-directory"
	return mapGCSError("createdir", rel, writer.Close())
}

func (a *Adapter) deleteKeys(ctx context.Context, op, rel string, keys []string) error {
	for _, key := range keys {
		err := a.object(key).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return mapGCSError(op, rel, err)
		}
	}
	return nil
}

// DeleteDir implements nodefs.FileWriter. Deleting the root removes every
// object below the prefix.
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	rel, err := a.resolve(ctx, "deletedir", dirPath)
	if err != nil {
		return err
	}

	objects, err := a.listAll(ctx, a.keys.DirKey(rel))
	if err != nil {
		return mapGCSError("deletedir", rel, err)
	}

	if len(objects) == 0 && rel != "" {
		attrs, err := a.attrs(ctx, "deletedir", rel)
		if err != nil {
			return err
		}
		if attrs != nil {
			return &nodefs.PathError{Op: "deletedir", Path: rel, Err: nodefs.ErrNotDir}
		}
		return &nodefs.PathError{Op: "deletedir", Path: rel, Err: nodefs.ErrNotExist}
	}

	keys := make([]string, len(objects))
	for i, o := range objects {
		keys[i] = o.Key
	}
	return a.deleteKeys(ctx, "deletedir", rel, keys)
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

func (a *Adapter) copyKey(ctx context.Context, srcKey, dstKey string) error {
	_, err := a.object(dstKey).CopierFrom(a.object(srcKey)).Run(ctx)
	return err
}

func (a *Adapter) copyTree(ctx context.Context, op, src, dst string) ([]string, error) {
	attrs, err := a.attrs(ctx, op, src)
	if err != nil {
		return nil, err
	}
	if attrs != nil {
		if err := a.copyKey(ctx, a.keys.Key(src), a.keys.Key(dst)); err != nil {
			return nil, mapGCSError(op, src, err)
		}
		return []string{a.keys.Key(src)}, nil
	}

	if objstore.Within(dst, src) {
		return nil, &nodefs.PathError{Op: op, Path: dst, Err: nodefs.ErrNotAllowed}
	}

	srcPrefix := a.keys.DirKey(src)
	objects, err := a.listAll(ctx, srcPrefix)
	if err != nil {
		return nil, mapGCSError(op, src, err)
	}
	if len(objects) == 0 {
		return nil, &nodefs.PathError{Op: op, Path: src, Err: nodefs.ErrNotExist}
	}

	dstPrefix := a.keys.DirKey(dst)
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.copyKey(ctx, o.Key, dstPrefix+strings.TrimPrefix(o.Key, srcPrefix)); err != nil {
			return nil, mapGCSError(op, src, err)
		}
		keys = append(keys, o.Key)
	}
	return keys, nil
}

// Copy implements nodefs.CanCopy using GCS's native CopierFrom. A
// directory is copied object by object.
func (a *Adapter) Copy(ctx context.Context, src, dst string) error {
	srcRel, err := a.resolve(ctx, "copy", src)
	if err != nil {
		return err
	}
	dstRel, err := a.keys.Resolve("copy", dst)
	if err != nil {
		return err
	}
	_, err = a.copyTree(ctx, "copy", srcRel, dstRel)
	return err
}

// Move implements nodefs.CanMove using GCS's copy + delete.
func (a *Adapter) Move(ctx context.Context, src, dst string) error {
	srcRel, err := a.resolve(ctx, "move", src)
	if err != nil {
		return err
	}
	dstRel, err := a.keys.Resolve("move", dst)
	if err != nil {
		return err
	}
	if srcRel == "" {
		return &nodefs.PathError{Op: "move", Path: src, Err: nodefs.ErrNotAllowed}
	}
	if srcRel == dstRel {
		return nil
	}

	keys, err := a.copyTree(ctx, "move", srcRel, dstRel)
	if err != nil {
		return err
	}
	return a.deleteKeys(ctx, "move", srcRel, keys)
}

// Checksum implements nodefs.CanChecksum. GCS stores an MD5 for objects
// not created by composition; other algorithms hash the content.
func (a *Adapter) Checksum(ctx context.Context, filePath string, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	rel, err := a.resolve(ctx, "checksum", filePath)
	if err != nil {
		return "", err
	}

	if algorithm == nodefs.ChecksumMD5 {
		attrs, err := a.attrs(ctx, "checksum", rel)
		if err != nil {
			return "", err
		}
		if attrs != nil && len(attrs.MD5) > 0 {
			return hex.EncodeToString(attrs.MD5), nil
		}
	}

	reader, err := a.Read(ctx, rel)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	checksum, err := nodefs.CalculateChecksum(reader, algorithm)
	if err != nil {
		return "", nodefs.WrapPathErr("checksum", rel, err)
	}
	return checksum, nil
}

// Visibility implements nodefs.CanVisibility from the object ACL. Objects
// readable by allUsers are public.
func (a *Adapter) Visibility(ctx context.Context, filePath string) (nodefs.Visibility, error) {
	rel, err := a.resolve(ctx, "visibility", filePath)
	if err != nil {
		return "", err
	}

	attrs, err := a.attrs(ctx, "visibility", rel)
	if err != nil {
		return "", err
	}
	if attrs == nil {
		isDir, err := a.dirExists(ctx, "visibility", rel)
		if err != nil {
			return "", err
		}
		if !isDir {
			return "", &nodefs.PathError{Op: "visibility", Path: rel, Err: nodefs.ErrNotExist}
		}
		return nodefs.VisibilityPublic, nil
	}

	return aclVisibility(attrs.ACL), nil
}

func aclVisibility(rules []storage.ACLRule) nodefs.Visibility {
	for _, rule := range rules {
		if rule.Entity == storage.AllUsers && (rule.Role == storage.RoleReader || rule.Role == storage.RoleOwner) {
			return nodefs.VisibilityPublic
		}
	}
	return nodefs.VisibilityPrivate
}

// Watch implements nodefs.CanWatch by polling the bucket.
func (a *Adapter) Watch(ctx context.Context, pattern string) (nodefs.ChangeToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return objstore.Watch(ctx, a.keys, pattern, a.pollInterval, func(ctx context.Context) ([]objstore.Object, error) {
		return a.listAll(ctx, a.keys.Prefix())
	})
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
