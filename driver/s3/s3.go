// Package s3 is the nodefs backend for an Amazon S3 (or S3 compatible)
// bucket. Directories are key prefixes, optionally materialized by empty
// "dir/" marker objects.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/internal/objstore"
)

// API is the subset of *s3.Client used by the adapter.
type API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	GetObjectAcl(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error)
}

// Adapter provides an S3 implementation of nodefs.FileSystem
type Adapter struct {
	client       API
	bucket       string
	keys         objstore.Keyspace
	pollInterval time.Duration
}

// AdapterOption is a function that configures S3Adapter
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

// New creates a new S3 filesystem adapter
func New(client API, bucket string, options ...AdapterOption) *Adapter {
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

// deleteBatch is the most keys DeleteObjects accepts per call.
const deleteBatch = 1000

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (a *Adapter) resolve(ctx context.Context, op, p string) (string, error) {
	if err := checkContext(ctx); err != nil {
		return "", err
	}
	return a.keys.Resolve(op, p)
}

// mapS3Error maps S3 errors to nodefs errors
func mapS3Error(op, filePath string, err error) error {
	if err == nil {
		return nil
	}

	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &notFound) {
		return &nodefs.PathError{Op: op, Path: filePath, Err: nodefs.ErrNotExist}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return &nodefs.PathError{Op: op, Path: filePath, Err: nodefs.ErrNotExist}
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return &nodefs.PathError{Op: op, Path: filePath, Err: nodefs.ErrPermission}
		}
	}

	return nodefs.WrapPathErr(op, filePath, err)
}

func isNotFound(err error) bool {
	return errors.Is(mapS3Error("", "", err), nodefs.ErrNotExist)
}

// head returns the object stored at rel, or nil when there is none.
func (a *Adapter) head(ctx context.Context, op, rel string) (*s3.HeadObjectOutput, error) {
	if rel == "" {
		return nil, nil
	}
	out, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keys.Key(rel)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, mapS3Error(op, rel, err)
	}
	return out, nil
}

// dirExists reports whether any key lies below rel, its marker included.
func (a *Adapter) dirExists(ctx context.Context, op, rel string) (bool, error) {
	if rel == "" {
		return true, nil
	}
	resp, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		Prefix:  aws.String(a.keys.DirKey(rel)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, mapS3Error(op, rel, err)
	}
	return len(resp.Contents) > 0 || len(resp.CommonPrefixes) > 0, nil
}

// missing builds the error for a path that is not a file: ErrIsDir when a
// directory lives there, ErrNotExist otherwise.
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

// checkParents fails with ErrNotDir when a file occupies one of the
// ancestors of rel.
func (a *Adapter) checkParents(ctx context.Context, op, rel string) error {
	for dir := parentOf(rel); dir != ""; dir = parentOf(dir) {
		obj, err := a.head(ctx, op, dir)
		if err != nil {
			return err
		}
		if obj != nil {
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

	existing, err := a.head(ctx, "write", rel)
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

	body, contentLength, err := seekableBody(content)
	if err != nil {
		return &nodefs.PathError{Op: "write", Path: rel, Err: err}
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.keys.Key(rel)),
		Body:          body,
		ContentLength: aws.Int64(contentLength),
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = nodefs.GuessContentType(rel, nil)
	}
	input.ContentType = aws.String(contentType)

	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}

	if len(opts.Metadata) > 0 {
		metadata := make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			metadata[k] = v
		}
		input.Metadata = metadata
	}

	// buckets with object ownership enforced reject ACLs, so only send
	// one when asked to
	switch opts.Visibility {
	case nodefs.VisibilityPublic:
		input.ACL = types.ObjectCannedACLPublicRead
	case nodefs.VisibilityPrivate:
		input.ACL = types.ObjectCannedACLPrivate
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return mapS3Error("write", rel, err)
	}
	return nil
}

// seekableBody returns a body PutObject can sign along with its length.
// Readers that cannot seek are buffered.
func seekableBody(content io.Reader) (io.Reader, int64, error) {
	switch r := content.(type) {
	case *bytes.Reader:
		return r, int64(r.Len()), nil
	case *strings.Reader:
		return r, int64(r.Len()), nil
	case *os.File:
		if info, err := r.Stat(); err == nil && info.Mode().IsRegular() {
			pos, err := r.Seek(0, io.SeekCurrent)
			if err == nil {
				return r, info.Size() - pos, nil
			}
		}
	case io.ReadSeeker:
		pos, err := r.Seek(0, io.SeekCurrent)
		if err == nil {
			end, err := r.Seek(0, io.SeekEnd)
			if err == nil {
				if _, err := r.Seek(pos, io.SeekStart); err != nil {
					return nil, 0, err
				}
				return r, end - pos, nil
			}
		}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
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

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keys.Key(rel)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, a.missing(ctx, "read", rel)
		}
		return nil, mapS3Error("read", rel, err)
	}

	return resp.Body, nil
}

// ReadAll implements nodefs.FileReader
func (a *Adapter) ReadAll(ctx context.Context, filePath string) ([]byte, error) {
	rc, err := a.Read(ctx, filePath)
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

	obj, err := a.head(ctx, "delete", rel)
	if err != nil {
		return err
	}
	if obj == nil {
		return a.missing(ctx, "delete", rel)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keys.Key(rel)),
	})
	return mapS3Error("delete", rel, err)
}

// FileExists implements nodefs.FileReader
func (a *Adapter) FileExists(ctx context.Context, filePath string) (bool, error) {
	rel, err := a.resolve(ctx, "fileexists", filePath)
	if err != nil {
		return false, err
	}
	obj, err := a.head(ctx, "fileexists", rel)
	return obj != nil, err
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

	obj, err := a.head(ctx, "stat", rel)
	if err != nil {
		return nil, err
	}
	if obj == nil {
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
		Size:        aws.ToInt64(obj.ContentLength),
		ModTime:     aws.ToTime(obj.LastModified),
		ContentType: aws.ToString(obj.ContentType),
		Metadata:    obj.Metadata,
	})
	return &info, nil
}

// listAll returns every object whose key starts with prefix.
func (a *Adapter) listAll(ctx context.Context, prefix string) ([]objstore.Object, error) {
	var objects []objstore.Object

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			objects = append(objects, objstore.Object{
				Key:     aws.ToString(obj.Key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
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
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.keys.DirKey(rel)),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	found := rel == ""
	paginator := s3.NewListObjectsV2Paginator(a.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, mapS3Error("listcontents", rel, err)
		}
		for _, p := range page.CommonPrefixes {
			found = true
			listing.AddPrefix(aws.ToString(p.Prefix))
		}
		for _, obj := range page.Contents {
			found = true
			listing.AddObject(objstore.Object{
				Key:     aws.ToString(obj.Key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	if !found {
		obj, err := a.head(ctx, "listcontents", rel)
		if err != nil {
			return nil, err
		}
		if obj != nil {
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

	obj, err := a.head(ctx, "createdir", rel)
	if err != nil {
		return err
	}
	if obj != nil {
		return &nodefs.PathError{Op: "createdir", Path: rel, Err: nodefs.ErrExist}
	}
	if err := a.checkParents(ctx, "createdir", rel); err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(a.keys.DirKey(rel)),
		Body:          bytes.NewReader(nil),
		ContentLength: aws.Int64(0),
		ContentType:   aws.String("application/x-directory"),
	})
	return mapS3Error("createdir", rel, err)
}

// deleteKeys removes keys in batches.
func (a *Adapter) deleteKeys(ctx context.Context, op, rel string, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return mapS3Error(op, rel, err)
		}
		if out != nil && len(out.Errors) > 0 {
			first := out.Errors[0]
			return nodefs.WrapPathErr(op, rel, fmt.Errorf("delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message)))
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
		return mapS3Error("deletedir", rel, err)
	}

	if len(objects) == 0 && rel != "" {
		obj, err := a.head(ctx, "deletedir", rel)
		if err != nil {
			return err
		}
		if obj != nil {
			return &nodefs.PathError{Op: "deletedir", Path: rel, Err: nodefs.ErrNotDir}
		}
		return &nodefs.PathError{Op: "deletedir", Path: rel, Err: nodefs.ErrNotExist}
	}

	keys := make([]string, len(objects))
	for i, obj := range objects {
		keys[i] = obj.Key
	}
	return a.deleteKeys(ctx, "deletedir", rel, keys)
}

// ============================================================================
// Optional Capability Interfaces
// ============================================================================

func (a *Adapter) copySource(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return a.bucket + "/" + strings.Join(segments, "/")
}

func (a *Adapter) copyKey(ctx context.Context, srcKey, dstKey string) error {
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(a.copySource(srcKey)),
		Key:        aws.String(dstKey),
	})
	return err
}

// copyTree copies src to dst server-side and returns the source keys.
func (a *Adapter) copyTree(ctx context.Context, op, src, dst string) ([]string, error) {
	obj, err := a.head(ctx, op, src)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		if err := a.copyKey(ctx, a.keys.Key(src), a.keys.Key(dst)); err != nil {
			return nil, mapS3Error(op, src, err)
		}
		return []string{a.keys.Key(src)}, nil
	}

	if objstore.Within(dst, src) {
		return nil, &nodefs.PathError{Op: op, Path: dst, Err: nodefs.ErrNotAllowed}
	}

	srcPrefix := a.keys.DirKey(src)
	objects, err := a.listAll(ctx, srcPrefix)
	if err != nil {
		return nil, mapS3Error(op, src, err)
	}
	if len(objects) == 0 {
		return nil, &nodefs.PathError{Op: op, Path: src, Err: nodefs.ErrNotExist}
	}

	dstPrefix := a.keys.DirKey(dst)
	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		if err := a.copyKey(ctx, o.Key, dstPrefix+strings.TrimPrefix(o.Key, srcPrefix)); err != nil {
			return nil, mapS3Error(op, src, err)
		}
		keys = append(keys, o.Key)
	}
	return keys, nil
}

// Copy implements nodefs.CanCopy using S3's native CopyObject API. A
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

// Move implements nodefs.CanMove. S3 has no rename, so this is a
// server-side copy followed by deleting the source keys.
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

var md5ETag = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Checksum implements nodefs.CanChecksum. MD5 comes from the ETag of
// objects uploaded in a single part; anything else is computed from the
// content.
func (a *Adapter) Checksum(ctx context.Context, filePath string, algorithm nodefs.ChecksumAlgorithm) (string, error) {
	rel, err := a.resolve(ctx, "checksum", filePath)
	if err != nil {
		return "", err
	}

	if algorithm == nodefs.ChecksumMD5 {
		obj, err := a.head(ctx, "checksum", rel)
		if err != nil {
			return "", err
		}
		if obj != nil {
			if etag := strings.Trim(aws.ToString(obj.ETag), `"`); md5ETag.MatchString(etag) {
				return etag, nil
			}
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

const allUsersURI = "http://acs.amazonaws.com/groups/global/AllUsers"

// Visibility implements nodefs.CanVisibility from the object ACL. Objects
// readable by all users are public. Directories are reported public.
func (a *Adapter) Visibility(ctx context.Context, filePath string) (nodefs.Visibility, error) {
	rel, err := a.resolve(ctx, "visibility", filePath)
	if err != nil {
		return "", err
	}

	obj, err := a.head(ctx, "visibility", rel)
	if err != nil {
		return "", err
	}
	if obj == nil {
		isDir, err := a.dirExists(ctx, "visibility", rel)
		if err != nil {
			return "", err
		}
		if !isDir {
			return "", &nodefs.PathError{Op: "visibility", Path: rel, Err: nodefs.ErrNotExist}
		}
		return nodefs.VisibilityPublic, nil
	}

	acl, err := a.client.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.keys.Key(rel)),
	})
	if err != nil {
		return "", mapS3Error("visibility", rel, err)
	}

	for _, grant := range acl.Grants {
		if grant.Grantee == nil || aws.ToString(grant.Grantee.URI) != allUsersURI {
			continue
		}
		if grant.Permission == types.PermissionRead || grant.Permission == types.PermissionFullControl {
			return nodefs.VisibilityPublic, nil
		}
	}
	return nodefs.VisibilityPrivate, nil
}

// Watch implements nodefs.CanWatch by polling the bucket, since S3 has no
// file system events. The pattern is a glob like "**/*.json".
func (a *Adapter) Watch(ctx context.Context, pattern string) (nodefs.ChangeToken, error) {
	if err := checkContext(ctx); err != nil {
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
	_ API                  = (*s3.Client)(nil)
)
