package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nodefs"
)

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	acl         types.ObjectCannedACL
	modified    time.Time
}

// fakeS3 keeps a single bucket in memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	copies  int
}

func newFake() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		acl:         in.ACL,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	sum := md5.Sum(obj.data)
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
		LastModified:  aws.Time(obj.modified),
		Metadata:      obj.metadata,
		ETag:          aws.String(`"` + hex.EncodeToString(sum[:]) + `"`),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, key, _ := strings.Cut(aws.ToString(in.CopySource), "/")
	obj, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	f.objects[aws.ToString(in.Key)] = obj
	f.copies++
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) GetObjectAcl(_ context.Context, in *s3.GetObjectAclInput, _ ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	out := &s3.GetObjectAclOutput{}
	if obj.acl == types.ObjectCannedACLPublicRead {
		out.Grants = []types.Grant{{
			Grantee:    &types.Grantee{Type: types.TypeGroup, URI: aws.String(allUsersURI)},
			Permission: types.PermissionRead,
		}}
	}
	return out, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := aws.ToString(in.Prefix)
	delimiter := aws.ToString(in.Delimiter)

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}
	for _, k := range keys {
		if in.MaxKeys != nil && int32(len(out.Contents)+len(out.CommonPrefixes)) >= *in.MaxKeys {
			break
		}
		rest := strings.TrimPrefix(k, prefix)
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.data))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func newAdapter(t *testing.T, options ...AdapterOption) (*Adapter, *fakeS3) {
	t.Helper()
	fake := newFake()
	options = append([]AdapterOption{WithPrefix("tenant")}, options...)
	return New(fake, "bucket", options...), fake
}

func put(t *testing.T, a *Adapter, p, content string) {
	t.Helper()
	require.NoError(t, a.Write(context.Background(), p, strings.NewReader(content), nodefs.WithOverwrite(true)))
}

func listPaths(t *testing.T, a *Adapter, p string, recursive bool) []string {
	t.Helper()
	entries, err := a.ListContents(context.Background(), p, recursive)
	require.NoError(t, err)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestMapS3Error(t *testing.T) {
	assert.Nil(t, mapS3Error("read", "a", nil))
	assert.ErrorIs(t, mapS3Error("read", "a", &types.NoSuchKey{}), nodefs.ErrNotExist)
	assert.ErrorIs(t, mapS3Error("stat", "a", &types.NotFound{}), nodefs.ErrNotExist)
	assert.ErrorIs(t, mapS3Error("read", "a", &smithy.GenericAPIError{Code: "AccessDenied"}), nodefs.ErrPermission)
	assert.ErrorIs(t, mapS3Error("read", "a", &smithy.GenericAPIError{Code: "NoSuchBucket"}), nodefs.ErrNotExist)

	other := errors.New("throttled")
	assert.ErrorIs(t, mapS3Error("read", "a", other), other)
}

func TestWriteReadStat(t *testing.T) {
	ctx := context.Background()
	a, fake := newAdapter(t)

	put(t, a, "docs/readme.txt", "hello")
	assert.Contains(t, fake.objects, "tenant/docs/readme.txt")
	assert.Equal(t, "text/plain", fake.objects["tenant/docs/readme.txt"].contentType)

	data, err := a.ReadAll(ctx, "/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.ErrorIs(t, a.Write(ctx, "docs/readme.txt", strings.NewReader("x")), nodefs.ErrExist)
	assert.ErrorIs(t, a.Write(ctx, "docs", strings.NewReader("x"), nodefs.WithOverwrite(true)), nodefs.ErrIsDir)
	assert.ErrorIs(t, a.Write(ctx, "docs/readme.txt/child", strings.NewReader("x")), nodefs.ErrNotDir)
	assert.ErrorIs(t, a.Write(ctx, "../escape", strings.NewReader("x")), nodefs.ErrNotAllowed)

	_, err = a.Read(ctx, "docs")
	assert.ErrorIs(t, err, nodefs.ErrIsDir)
	_, err = a.Read(ctx, "nope")
	assert.True(t, nodefs.IsNotExist(err))

	info, err := a.Stat(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "readme.txt", info.Name)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDir)

	info, err = a.Stat(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	_, err = a.Stat(ctx, "missing")
	assert.True(t, nodefs.IsNotExist(err))
}

func TestWriteOptions(t *testing.T) {
	a, fake := newAdapter(t)
	err := a.Write(context.Background(), "img.bin", bytes.NewReader([]byte{1, 2}),
		nodefs.WithContentType("image/png"),
		nodefs.WithMetadata(map[string]string{"owner": "ops"}),
		nodefs.WithVisibility(nodefs.VisibilityPublic))
	require.NoError(t, err)

	obj := fake.objects["tenant/img.bin"]
	assert.Equal(t, "image/png", obj.contentType)
	assert.Equal(t, "ops", obj.metadata["owner"])
	assert.Equal(t, types.ObjectCannedACLPublicRead, obj.acl)
}

func TestExistsAndList(t *testing.T) {
	ctx := context.Background()
	a, _ := newAdapter(t)
	put(t, a, "b.txt", "b")
	put(t, a, "a/one.txt", "1")
	put(t, a, "a/sub/two.txt", "2")
	require.NoError(t, a.CreateDir(ctx, "empty"))

	ok, err := a.FileExists(ctx, "a/one.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.FileExists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = a.DirExists(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.DirExists(ctx, "")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"a", "b.txt", "empty"}, listPaths(t, a, "", false))
	assert.Equal(t, []string{"a/one.txt", "a/sub", "a/sub/two.txt"}, listPaths(t, a, "a", true))
	assert.Empty(t, listPaths(t, a, "empty", false))

	_, err = a.ListContents(ctx, "b.txt", false)
	assert.ErrorIs(t, err, nodefs.ErrNotDir)
	_, err = a.ListContents(ctx, "ghost", false)
	assert.True(t, nodefs.IsNotExist(err))
}

func TestDirs(t *testing.T) {
	ctx := context.Background()
	a, fake := newAdapter(t)
	put(t, a, "x/y/f.txt", "f")
	put(t, a, "file", "f")

	assert.ErrorIs(t, a.CreateDir(ctx, "file"), nodefs.ErrExist)
	assert.ErrorIs(t, a.CreateDir(ctx, "file/below"), nodefs.ErrNotDir)
	assert.ErrorIs(t, a.Delete(ctx, "x"), nodefs.ErrIsDir)
	assert.ErrorIs(t, a.DeleteDir(ctx, "file"), nodefs.ErrNotDir)
	assert.True(t, nodefs.IsNotExist(a.DeleteDir(ctx, "ghost")))

	require.NoError(t, a.DeleteDir(ctx, "x"))
	assert.NotContains(t, fake.objects, "tenant/x/y/f.txt")

	require.NoError(t, a.DeleteDir(ctx, ""))
	assert.Empty(t, fake.objects)
}

func TestCopyMove(t *testing.T) {
	ctx := context.Background()
	a, fake := newAdapter(t)
	put(t, a, "src/a.txt", "a")
	put(t, a, "src/sub/b.txt", "b")

	require.NoError(t, a.Copy(ctx, "src", "dst"))
	assert.Equal(t, 2, fake.copies)
	assert.Equal(t, []string{"dst/a.txt", "dst/sub", "dst/sub/b.txt"}, listPaths(t, a, "dst", true))

	assert.ErrorIs(t, a.Copy(ctx, "src", "src/inner"), nodefs.ErrNotAllowed)
	assert.True(t, nodefs.IsNotExist(a.Copy(ctx, "ghost", "x")))

	require.NoError(t, a.Move(ctx, "src", "moved"))
	assert.Equal(t, []string{"moved/a.txt", "moved/sub", "moved/sub/b.txt"}, listPaths(t, a, "moved", true))
	ok, err := a.DirExists(ctx, "src")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Move(ctx, "moved/a.txt", "renamed.txt"))
	data, err := a.ReadAll(ctx, "renamed.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestCopySourceEscapesKey(t *testing.T) {
	a, _ := newAdapter(t)
	assert.Equal(t, "bucket/tenant/a%20b/c%3Fd.txt", a.copySource("tenant/a b/c?d.txt"))
}

func TestChecksumAndVisibility(t *testing.T) {
	ctx := context.Background()
	a, _ := newAdapter(t)
	put(t, a, "h.txt", "hello")
	require.NoError(t, a.Write(ctx, "pub.txt", strings.NewReader("p"), nodefs.WithVisibility(nodefs.VisibilityPublic)))

	sum, err := a.Checksum(ctx, "h.txt", nodefs.ChecksumMD5)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)

	sum, err = a.Checksum(ctx, "h.txt", nodefs.ChecksumCRC32)
	require.NoError(t, err)
	assert.Equal(t, "3610a686", sum)

	v, err := a.Visibility(ctx, "pub.txt")
	require.NoError(t, err)
	assert.Equal(t, nodefs.VisibilityPublic, v)

	v, err = a.Visibility(ctx, "h.txt")
	require.NoError(t, err)
	assert.Equal(t, nodefs.VisibilityPrivate, v)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, _ := newAdapter(t, WithPollInterval(10*time.Millisecond))
	token, err := a.Watch(ctx, "config/*.json")
	require.NoError(t, err)

	put(t, a, "config/app.json", "{}")
	assert.Eventually(t, token.HasChanged, 2*time.Second, 5*time.Millisecond)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a, _ := newAdapter(t)
	_, err := a.Stat(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegisteredDriverRequiresBucket(t *testing.T) {
	_, err := nodefs.CreateDriver(&nodefs.Config{Driver: "s3"})
	assert.ErrorContains(t, err, "bucket is required")
}
