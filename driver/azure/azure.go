// Package azure is the nodefs backend for an Azure Blob Storage container.
package azure

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/internal/objstore"
)

// Adapter provides an Azure Blob Storage implementation of nodefs.FileSystem
type Adapter struct {
	container    *container.Client
	keys         objstore.Keyspace
	pollInterval time.Duration
}

// AdapterOption is a function that configures Azure Adapter
type AdapterOption func(*Adapter)

// WithPrefix roots the filesystem at a blob name prefix.
func WithPrefix(prefix string) AdapterOption {
	return func(a *Adapter) {
		a.keys = objstore.NewKeyspace(prefix)
	}
}

// WithPollInterval sets how often Watch tokens list the container.
func WithPollInterval(interval time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.pollInterval = interval
	}
}

// New creates a new Azure Blob Storage filesystem adapter
func New(client *container.Client, options ...AdapterOption) *Adapter {
	adapter := &Adapter{
		container:    client,
		pollInterval: 30 * time.Second,
	}

	for _, option := range options {
		option(adapter)
	}

	return adapter
}

func (a *Adapter) resolve(ctx context.Context, op, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return a.keys.Resolve(op, p)
}

// mapAzureError maps Azure errors to nodefs errors
func mapAzureError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound):
		return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrNotExist}
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet):
		return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrExist}
	case bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthorizationPermissionMismatch):
		return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrPermission}
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrNotExist}
		case http.StatusForbidden:
			return &nodefs.PathError{Op: op, Path: path, Err: nodefs.ErrPermission}
		}
	}

	return nodefs.WrapPathErr(op, path, err)
}

func isNotFound(err error) bool {
	return errors.Is(mapAzureError("", "", err), nodefs.ErrNotExist)
}

// props returns the properties of the blob at rel, or nil when there is
// none.
func (a *Adapter) props(ctx context.Context, op, rel string) (*blob.GetPropertiesResponse, error) {
	if rel == "" {
		return nil, nil
	}
	resp, err := a.container.NewBlobClient(a.keys.Key(rel)).GetProperties(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, mapAzureError(op, rel, err)
	}
	return &resp, nil
}

func (a *Adapter) dirExists(ctx context.Context, op, rel string) (bool, error) {
	if rel == "" {
		return true, nil
	}
	pager := a.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     to.Ptr(a.keys.DirKey(rel)),
		MaxResults: to.Ptr(int32(1)),
	})
	if !pager.More() {
		return false, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return false, mapAzureError(op, rel, err)
	}
	return len(resp.Segment.BlobItems) > 0, nil
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
		props, err := a.props(ctx, op, dir)
		if err != nil {
			return err
		}
		if props != nil {
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

// deref returns the value p points to, or the zero value for nil.
func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func toObject(item *container.BlobItem) objstore.Object {
	o := objstore.Object{Key: deref(item.Name)}
	if p := item.Properties; p != nil {
		o.Size = deref(p.ContentLength)
		o.ModTime = deref(p.LastModified)
		o.ContentType = deref(p.ContentType)
	}
	return o
}

func fromMetadata(metadata map[string]*string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

// Write implements nodefs.FileWriter. The content is streamed as blocks.
func (a *Adapter) Write(ctx context.Context, filePath string, content io.Reader, options ...nodefs.Option) error {
	rel, err := a.resolve(ctx, "write", filePath)
	if err != nil {
		return err
	}
	if rel == "" {
		return &nodefs.PathError{Op: "write", Path: filePath, Err: nodefs.ErrIsDir}
	}

	opts := nodefs.ApplyOptions(options...)

	existing, err := a.props(ctx, "write", rel)
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

	contentType := opts.ContentType
	if contentType == "" {
		contentType = nodefs.GuessContentType(rel, nil)
	}

	uploadOpts := &blockblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(contentType),
		},
	}
	if opts.CacheControl != "" {
		uploadOpts.HTTPHeaders.BlobCacheControl = to.Ptr(opts.CacheControl)
	}
	if len(opts.Metadata) > 0 {
		metadata := make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			metadata[k] = to.Ptr(v)
		}
		uploadOpts.Metadata = metadata
	}
	if !opts.Overwrite {
		uploadOpts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: to.Ptr(azcore.ETagAny)},
		}
	}

	_, err = a.container.NewBlockBlobClient(a.keys.Key(rel)).UploadStream(ctx, content, uploadOpts)
	return mapAzureError("write", rel, err)
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

	resp, err := a.container.NewBlobClient(a.keys.Key(rel)).DownloadStream(ctx, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, a.missing(ctx, "read", rel)
		}
		return nil, mapAzureError("read", rel, err)
	}

	return resp.Body, nil
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

	_, err = a.container.NewBlobClient(a.keys.Key(rel)).Delete(ctx, nil)
	if err != nil && isNotFound(err) {
		return a.missing(ctx, "delete", rel)
	}
	return mapAzureError("delete", rel, err)
}

// FileExists implements nodefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	rel, err := a.resolve(ctx, "fileexists", filePath)
	if err != nil {
		return false, err
	}
	props, err := a.props(ctx, "fileexists", rel)
	return props != nil, err
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

	props, err := a.props(ctx, "stat", rel)
	if err != nil {
		return nil, err
	}
	if props == nil {
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

	info := objstore.FileInfo(rel, objstore.Object{
		Key:         a.keys.Key(rel),
		Size:        deref(props.ContentLength),
		ModTime:     deref(props.LastModified),
		ContentType: deref(props.ContentType),
		Metadata:    fromMetadata(props.Metadata),
	})
	return &info, nil
}

func (a *Adapter) listAll(ctx context.Context, prefix string) ([]objstore.Object, error) {
	var objects []objstore.Object
	pager := a.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				objects = append(objects, toObject(item))
			}
		}
	}
	return objects, nil
}

// ListContents implements nodefs.FileReader
func (a *Adapter) ListContents(ctx context.Context, dirPath string, recursive bool) ([]nodefs.FileInfo, error) {
	rel, err := a.resolve(ctx, "listcontents", dirPath)
	if err != nil {
		return nil, err
	}

	listing := objstore.NewListing(a.keys, rel, recursive)
	prefix := a.keys.DirKey(rel)
	found := rel == ""

	if recursive {
		objects, err := a.listAll(ctx, prefix)
		if err != nil {
			return nil, mapAzureError("listcontents", rel, err)
		}
		for _, o := range objects {
			found = true
			listing.AddObject(o)
		}
	} else {
		pager := a.container.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
			Prefix: to.Ptr(prefix),
		})
		for pager.More() {
			resp, err := pager.NextPage(ctx)
			if err != nil {
				return nil, mapAzureError("listcontents", rel, err)
			}
			for _, p := range resp.Segment.BlobPrefixes {
				if p.Name != nil {
					found = true
					listing.AddPrefix(*p.Name)
				}
			}
			for _, item := range resp.Segment.BlobItems {
				if item.Name != nil {
					found = true
					listing.AddObject(toObject(item))
				}
			}
		}
	}

	if !found {
		props, err := a.props(ctx, "listcontents", rel)
		if err != nil {
			return nil, err
		}
		if props != nil {
			return nil, &nodefs.PathError{Op: "listcontents", Path: rel, Err: nodefs.ErrNotDir}
		}
		return nil, &nodefs.PathError{Op: "listcontents", Path: rel, Err: nodefs.ErrNotExist}
	}

	return listing.Entries(), nil
}

// CreateDir implements nodefs.FileWriter by storing an empty marker blob.
func (a *Adapter) CreateDir(ctx context.Context, dirPath string) error {
	rel, err := a.resolve(ctx, "createdir", dirPath)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}

	props, err := a.props(ctx, "createdir", rel)
	if err != nil {
		return err
	}
	if props != nil {
		return &nodefs.PathError{Op: "createdir", Path: rel, Err: nodefs.ErrExist}
	}
	if err := a.checkParents(ctx, "createdir", rel); err != nil {
		return err
	}

	_, err = a.container.NewBlockBlobClient(a.keys.DirKey(rel)).UploadBuffer(ctx, nil, &blockblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr("application/x-directory")},
	})
	return mapAzureError("createdir", rel, err)
}

func (a *Adapter) deleteKeys(ctx context.Context, op, rel string, keys []string) error {
	for _, key := range keys {
		_, err := a.container.NewBlobClient(key).Delete(ctx, nil)
		if err != nil && !isNotFound(err) {
			return mapAzureError(op, rel, err)
		}
	}
	return nil
}

// DeleteDir implements nodefs.FileWriter. Deleting the root removes every
// blob below the prefix.
func (a *Adapter) DeleteDir(ctx context.Context, dirPath string) error {
	rel, err := a.resolve(ctx, "deletedir", dirPath)
	if err != nil {
		return err
	}

	objects, err := a.listAll(ctx, a.keys.DirKey(rel))
	if err != nil {
		return mapAzureError("deletedir", rel, err)
	}

	if len(objects) == 0 && rel != "" {
		props, err := a.props(ctx, "deletedir", rel)
		if err != nil {
			return err
		}
		if props != nil {
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

// copyPollInterval is how often a pending server-side copy is checked.
const copyPollInterval = 200 * time.Millisecond

// copyKey starts a server-side copy and waits for it to finish. The
// source is addressed through a short-lived SAS URL when the client holds
// a shared key.
func (a *Adapter) copyKey(ctx context.Context, srcKey, dstKey string) error {
	src := a.container.NewBlobClient(srcKey)

	srcURL, err := src.GetSASURL(sas.BlobPermissions{Read: true}, time.Now().Add(15*time.Minute), nil)
	if err != nil {
		srcURL = src.URL()
	}

	dst := a.container.NewBlobClient(dstKey)
	resp, err := dst.StartCopyFromURL(ctx, srcURL, nil)
	if err != nil {
		return err
	}

	status := deref(resp.CopyStatus)
	for status == blob.CopyStatusTypePending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(copyPollInterval):
		}
		props, err := dst.GetProperties(ctx, nil)
		if err != nil {
			return err
		}
		status = deref(props.CopyStatus)
	}
	if status != blob.CopyStatusTypeSuccess {
		return errors.New("copy ended with status " + string(status))
	}
	return nil
}

func (a *Adapter) copyTree(ctx context.Context, op, src, dst string) ([]string, error) {
	props, err := a.props(ctx, op, src)
	if err != nil {
		return nil, err
	}
	if props != nil {
		if err := a.copyKey(ctx, a.keys.Key(src), a.keys.Key(dst)); err != nil {
			return nil, mapAzureError(op, src, err)
		}
		return []string{a.keys.Key(src)}, nil
	}

	if objstore.Within(dst, src) {
		return nil, &nodefs.PathError{Op: op, Path: dst, Err: nodefs.ErrNotAllowed}
	}

	srcPrefix := a.keys.DirKey(src)
	objects, err := a.listAll(ctx, srcPrefix)
	if err != nil {
		return nil, mapAzureError(op, src, err)
	}
	if len(objects) == 0 {
		return nil, &nodefs.PathError{Op: op, Path: src, Err: nodefs.ErrNotExist}
	}

	dstPrefix := a.keys.DirKey(dst)
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if err := a.copyKey(ctx, o.Key, dstPrefix+strings.TrimPrefix(o.Key, srcPrefix)); err != nil {
			return nil, mapAzureError(op, src, err)
		}
		keys = append(keys, o.Key)
	}
	return keys, nil
}

// Copy implements nodefs.CanCopy using Azure's native StartCopyFromURL.
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

// Move implements nodefs.CanMove using Azure's copy + delete.
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

// Checksum implements nodefs.CanChecksum. Blobs uploaded in one request
// carry a Content-MD5; other algorithms hash the content.
func (a *Adapter) Checksum(ctx context.Context, filePath string, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	rel, err := a.resolve(ctx, "checksum", filePath)
	if err != nil {
		return "", err
	}

	if algorithm == nodefs.ChecksumMD5 {
		props, err := a.props(ctx, "checksum", rel)
		if err != nil {
			return "", err
		}
		if props != nil && len(props.ContentMD5) > 0 {
			return hex.EncodeToString(props.ContentMD5), nil
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

// Visibility implements nodefs.CanVisibility. Blob Storage sets public
// access per container, so every entry shares the container's level.
func (a *Adapter) Visibility(ctx context.Context, filePath string) (nodefs.Visibility, error) {
	rel, err := a.resolve(ctx, "visibility", filePath)
	if err != nil {
		return "", err
	}

	props, err := a.props(ctx, "visibility", rel)
	if err != nil {
		return "", err
	}
	if props == nil {
		isDir, err := a.dirExists(ctx, "visibility", rel)
		if err != nil {
			return "", err
		}
		if !isDir {
			return "", &nodefs.PathError{Op: "visibility", Path: rel, Err: nodefs.ErrNotExist}
		}
	}

	resp, err := a.container.GetProperties(ctx, nil)
	if err != nil {
		return "", mapAzureError("visibility", rel, err)
	}
	return accessVisibility(resp.BlobPublicAccess), nil
}

func accessVisibility(access *container.PublicAccessType) nodefs.Visibility {
	if access == nil || *access == "" {
		return nodefs.VisibilityPrivate
	}
	return nodefs.VisibilityPublic
}

// Watch implements nodefs.CanWatch by polling the container.
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
