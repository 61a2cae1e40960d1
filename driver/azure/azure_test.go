package azure

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/nodefs"
)

func TestMapAzureError(t *testing.T) {
	assert.Nil(t, mapAzureError("read", "a", nil))

	notFound := &azcore.ResponseError{StatusCode: http.StatusNotFound, ErrorCode: string(bloberror.BlobNotFound)}
	assert.ErrorIs(t, mapAzureError("read", "a", notFound), nodefs.ErrNotExist)
	assert.True(t, isNotFound(notFound))

	exists := &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: string(bloberror.BlobAlreadyExists)}
	assert.ErrorIs(t, mapAzureError("write", "a", exists), nodefs.ErrExist)

	forbidden := &azcore.ResponseError{StatusCode: http.StatusForbidden}
	assert.ErrorIs(t, mapAzureError("read", "a", forbidden), nodefs.ErrPermission)

	other := errors.New("timeout")
	err := mapAzureError("read", "a", other)
	assert.ErrorIs(t, err, other)
	assert.False(t, isNotFound(other))
}

func TestAccessVisibility(t *testing.T) {
	assert.Equal(t, nodefs.VisibilityPrivate, accessVisibility(nil))
	assert.Equal(t, nodefs.VisibilityPublic, accessVisibility(to.Ptr(container.PublicAccessTypeBlob)))
	assert.Equal(t, nodefs.VisibilityPublic, accessVisibility(to.Ptr(container.PublicAccessTypeContainer)))
}

func TestToObject(t *testing.T) {
	o := toObject(&container.BlobItem{
		Name:       to.Ptr("p/a.txt"),
		Properties: &container.BlobProperties{ContentLength: to.Ptr(int64(4))},
	})
	assert.Equal(t, "p/a.txt", o.Key)
	assert.Equal(t, int64(4), o.Size)

	assert.Equal(t, "", toObject(&container.BlobItem{}).Key)
	assert.Equal(t, map[string]string{"k": "v"}, fromMetadata(map[string]*string{"k": to.Ptr("v"), "nil": nil}))
	assert.Nil(t, fromMetadata(nil))
}

func TestResolveRefusesTraversal(t *testing.T) {
	a := New(nil, WithPrefix("tenant"))
	_, err := a.ReadAll(context.Background(), "a/../../b")
	assert.ErrorIs(t, err, nodefs.ErrNotAllowed)
}

func TestRegisteredDriverValidatesConfig(t *testing.T) {
	_, err := nodefs.CreateDriver(&nodefs.Config{Driver: "azure"})
	assert.ErrorContains(t, err, "account name and key are required")

	_, err = nodefs.CreateDriver(&nodefs.Config{Driver: "azure", AzureAccountName: "acct", AzureAccountKey: "a2V5"})
	assert.ErrorContains(t, err, "container name is required")

	fs, err := nodefs.CreateDriver(&nodefs.Config{
		Driver:             "azure",
		AzureAccountName:   "acct",
		AzureAccountKey:    "a2V5",
		AzureContainerName: "files",
	})
	require.NoError(t, err)
	assert.IsType(t, &Adapter{}, fs)
}
