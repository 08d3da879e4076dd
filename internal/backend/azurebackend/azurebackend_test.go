package azurebackend

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// notFoundErr mimics the *azcore.ResponseError the SDK returns for a
// missing blob, carrying the error code bloberror.HasCode matches on.
var notFoundErr = &azcore.ResponseError{ErrorCode: string(bloberror.BlobNotFound)}

// fakeBlobClient is an in-memory stand-in for the azblob container
// client, narrowed to the blobClient interface this package depends
// on.
type fakeBlobClient struct {
	objects map[string][]byte
	modTime map[string]time.Time
}

func newFakeBlobClient() *fakeBlobClient {
	return &fakeBlobClient{objects: map[string][]byte{}, modTime: map[string]time.Time{}}
}

func (f *fakeBlobClient) UploadBuffer(_ context.Context, blobName string, buffer []byte, _ *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.objects[blobName] = buffer
	f.modTime[blobName] = time.Now()
	return azblob.UploadBufferResponse{}, nil
}

func (f *fakeBlobClient) DownloadStream(_ context.Context, blobName string, _ *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	data, ok := f.objects[blobName]
	if !ok {
		return azblob.DownloadStreamResponse{}, notFoundErr
	}
	resp := azblob.DownloadStreamResponse{}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func (f *fakeBlobClient) NewListBlobsFlatPager(prefix string) blobPager {
	var names []string
	for name := range f.objects {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	return &fakePager{names: names}
}

func (f *fakeBlobClient) GetProperties(_ context.Context, blobName string) (time.Time, error) {
	t, ok := f.modTime[blobName]
	if !ok {
		return time.Time{}, notFoundErr
	}
	return t, nil
}

type fakePager struct {
	names []string
	done  bool
}

func (p *fakePager) More() bool { return !p.done }

func (p *fakePager) NextPage(context.Context) ([]string, error) {
	p.done = true
	return p.names, nil
}

func TestUploadFetchRoundTrip(t *testing.T) {
	b := NewWithClient(newFakeBlobClient(), "cargo")
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "registry/cache/abc/serde-1.0.0.crate", []byte("crate bytes")))

	got, err := b.Fetch(ctx, "registry/cache/abc/serde-1.0.0.crate")
	require.NoError(t, err)
	assert.Equal(t, []byte("crate bytes"), got)
}

func TestList_RespectsPrefix(t *testing.T) {
	fake := newFakeBlobClient()
	b := NewWithClient(fake, "cargo")
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "a", []byte("1")))
	require.NoError(t, b.Upload(ctx, "b", []byte("2")))

	keys, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestFetchMissingIsNotFound(t *testing.T) {
	b := NewWithClient(newFakeBlobClient(), "")
	_, err := b.Fetch(context.Background(), "missing")
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindNotFound, kind)
}

func TestBackendNew_RequiresCredentialEnvVars(t *testing.T) {
	t.Setenv("STORAGE_ACCOUNT", "")
	t.Setenv("STORAGE_MASTER_KEY", "")

	_, err := backend.New("blob://my-container/cargo")
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindConfig, kind)
}

func TestBackendNew_MissingContainerIsRejected(t *testing.T) {
	t.Setenv("STORAGE_ACCOUNT", "myaccount")
	t.Setenv("STORAGE_MASTER_KEY", "a2V5")

	_, err := backend.New("blob:///cargo")
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindConfig, kind)
}

func TestBackendNew_ReadsCredentialsFromEnv(t *testing.T) {
	t.Setenv("STORAGE_ACCOUNT", "myaccount")
	// A real shared key must be valid base64; this is a throwaway
	// value only used to exercise NewSharedKeyCredential's parsing.
	t.Setenv("STORAGE_MASTER_KEY", "a2V5")

	b, err := backend.New("blob://my-container/cargo")
	require.NoError(t, err)
	assert.IsType(t, &Backend{}, b)
}
