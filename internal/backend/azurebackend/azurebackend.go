// Package azurebackend implements backend.Backend against Azure Blob
// Storage using shared-key credentials, following the standard
// azure-sdk-for-go/sdk/storage/azblob client idiom (no example repo in
// the pack talks to Azure directly, though azcore appears transitively
// across the pack's dependency graph).
package azurebackend

import (
	"context"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

func init() {
	backend.Register("blob", func(u *url.URL) (backend.Backend, error) {
		containerName := u.Host
		if containerName == "" {
			return nil, ferrors.New(ferrors.KindConfig, "blob backend url must be blob://<container>(/<prefix>)?")
		}
		prefix := strings.TrimPrefix(u.Path, "/")

		account := os.Getenv("STORAGE_ACCOUNT")
		accountKey := os.Getenv("STORAGE_MASTER_KEY")
		if account == "" || accountKey == "" {
			return nil, ferrors.New(ferrors.KindConfig, "STORAGE_ACCOUNT and STORAGE_MASTER_KEY must be set for a blob:// backend")
		}
		return New(account, accountKey, containerName, prefix)
	})
}

// blobClient is the subset of azblob's container client this backend
// calls, narrowed for testability.
type blobClient interface {
	UploadBuffer(ctx context.Context, blobName string, buffer []byte, opts *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
	DownloadStream(ctx context.Context, blobName string, opts *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
	NewListBlobsFlatPager(prefix string) blobPager
	GetProperties(ctx context.Context, blobName string) (time.Time, error)
}

type blobPager interface {
	More() bool
	NextPage(ctx context.Context) ([]string, error)
}

// Backend stores objects as blobs within a single Azure container,
// rooted under an optional prefix.
type Backend struct {
	client blobClient
	prefix string
}

// New builds a Backend authenticated with a storage account shared
// key, per spec.md §6's `STORAGE_ACCOUNT`/`STORAGE_MASTER_KEY`
// credential pair.
func New(account, accountKey, containerName, prefix string) (*Backend, error) {
	cred, err := azblob.NewSharedKeyCredential(account, accountKey)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfig, err, "building shared key credential")
	}

	serviceURL := "https://" + account + ".blob.core.windows.net/"
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfig, err, "creating azure blob client")
	}

	return NewWithClient(&realContainerClient{client: client, container: containerName}, prefix), nil
}

// NewWithClient builds a Backend around an already-constructed
// blobClient, primarily so tests can inject a fake.
func NewWithClient(client blobClient, prefix string) *Backend {
	return &Backend{client: client, prefix: strings.Trim(prefix, "/")}
}

func (b *Backend) blobName(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *Backend) trimPrefix(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, b.prefix+"/")
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	pager := b.client.NewListBlobsFlatPager(b.blobName(prefix))
	var keys []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindTransport, err, "listing "+prefix)
		}
		for _, name := range page {
			keys = append(keys, b.trimPrefix(name))
		}
	}
	return keys, nil
}

func (b *Backend) Fetch(ctx context.Context, key string) ([]byte, error) {
	resp, err := b.client.DownloadStream(ctx, b.blobName(key), nil)
	if err != nil {
		return nil, wrapErr(err, "fetching "+key)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindTransport, err, "reading "+key)
	}
	return data, nil
}

func (b *Backend) Upload(ctx context.Context, key string, data []byte) error {
	_, err := b.client.UploadBuffer(ctx, b.blobName(key), data, nil)
	if err != nil {
		return wrapErr(err, "uploading "+key)
	}
	return nil
}

func (b *Backend) Updated(ctx context.Context, key string) (time.Time, error) {
	t, err := b.client.GetProperties(ctx, b.blobName(key))
	if err != nil {
		return time.Time{}, wrapErr(err, "stat "+key)
	}
	return t, nil
}

func wrapErr(err error, msg string) error {
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return ferrors.Wrap(ferrors.KindNotFound, err, msg)
	}
	return ferrors.Wrap(ferrors.KindTransport, err, msg)
}

// realContainerClient adapts azblob.Client down to the blobClient
// interface this package depends on.
type realContainerClient struct {
	client    *azblob.Client
	container string
}

func (r *realContainerClient) UploadBuffer(ctx context.Context, blobName string, buffer []byte, opts *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	return r.client.UploadBuffer(ctx, r.container, blobName, buffer, opts)
}

func (r *realContainerClient) DownloadStream(ctx context.Context, blobName string, opts *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error) {
	return r.client.DownloadStream(ctx, r.container, blobName, opts)
}

func (r *realContainerClient) NewListBlobsFlatPager(prefix string) blobPager {
	cc := r.client.ServiceClient().NewContainerClient(r.container)
	pager := cc.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	return &realPager{pager: pager}
}

func (r *realContainerClient) GetProperties(ctx context.Context, blobName string) (time.Time, error) {
	cc := r.client.ServiceClient().NewContainerClient(r.container).NewBlobClient(blobName)
	props, err := cc.GetProperties(ctx, nil)
	if err != nil {
		return time.Time{}, err
	}
	if props.LastModified == nil {
		return time.Time{}, nil
	}
	return *props.LastModified, nil
}

type realPager struct {
	pager *container.ListBlobsFlatPager
}

func (p *realPager) More() bool { return p.pager.More() }

func (p *realPager) NextPage(ctx context.Context) ([]string, error) {
	resp, err := p.pager.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, item := range resp.Segment.BlobItems {
		if item.Name != nil {
			names = append(names, *item.Name)
		}
	}
	return names, nil
}
