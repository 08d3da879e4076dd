// Package gcsbackend implements backend.Backend against Google Cloud
// Storage. Unlike s3backend and azurebackend, no example repo in the
// pack talks to GCS directly, so this package follows the standard
// cloud.google.com/go/storage client idiom rather than a teacher
// pattern: a single long-lived *storage.Client built from
// golang.org/x/oauth2/google default or service-account credentials.
package gcsbackend

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

func init() {
	backend.Register("gs", func(u *url.URL) (backend.Backend, error) {
		bucket := u.Host
		if bucket == "" {
			return nil, ferrors.New(ferrors.KindConfig, "gs backend url has no bucket host")
		}
		prefix := strings.TrimPrefix(u.Path, "/")

		var opts []Option
		if cred := u.Query().Get("credentials-file"); cred != "" {
			opts = append(opts, WithCredentialsFile(cred))
		}
		return New(context.Background(), bucket, prefix, opts...)
	})
}

type clientConfig struct {
	credentialsFile string
}

// Option configures a Backend at construction time.
type Option func(*clientConfig)

// WithCredentialsFile loads a service-account JSON key from path
// instead of relying on application-default credentials.
func WithCredentialsFile(path string) Option {
	return func(c *clientConfig) { c.credentialsFile = path }
}

// gcsClient is the subset of *storage.Client this backend calls,
// narrowed for testability the same way s3backend narrows the AWS
// client.
type gcsClient interface {
	Bucket(name string) *storage.BucketHandle
}

type realClient struct{ *storage.Client }

func (r realClient) Bucket(name string) *storage.BucketHandle { return r.Client.Bucket(name) }

// Backend stores objects as GCS object names within a single bucket,
// rooted under an optional prefix.
type Backend struct {
	client gcsClient
	bucket string
	prefix string
}

// New builds a Backend for bucket using application-default
// credentials, or a service-account key file when WithCredentialsFile
// is supplied.
func New(ctx context.Context, bucket, prefix string, opts ...Option) (*Backend, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var clientOpts []option.ClientOption
	if cfg.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.credentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfig, err, "creating GCS client")
	}

	return NewWithClient(realClient{client}, bucket, prefix), nil
}

// NewWithClient builds a Backend around an already-configured client,
// primarily so tests can inject a fake gcsClient.
func NewWithClient(client gcsClient, bucket, prefix string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *Backend) objectName(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{Prefix: b.objectName(prefix)})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindTransport, err, "listing "+prefix)
		}
		keys = append(keys, b.trimPrefix(attrs.Name))
	}
	return keys, nil
}

func (b *Backend) trimPrefix(name string) string {
	if b.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, b.prefix+"/")
}

func (b *Backend) Fetch(ctx context.Context, key string) ([]byte, error) {
	r, err := b.client.Bucket(b.bucket).Object(b.objectName(key)).NewReader(ctx)
	if err != nil {
		return nil, wrapErr(err, "fetching "+key)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindTransport, err, "reading "+key)
	}
	return data, nil
}

func (b *Backend) Upload(ctx context.Context, key string, data []byte) error {
	w := b.client.Bucket(b.bucket).Object(b.objectName(key)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return ferrors.Wrap(ferrors.KindTransport, err, "uploading "+key)
	}
	if err := w.Close(); err != nil {
		return ferrors.Wrap(ferrors.KindTransport, err, "finalizing upload of "+key)
	}
	return nil
}

func (b *Backend) Updated(ctx context.Context, key string) (time.Time, error) {
	attrs, err := b.client.Bucket(b.bucket).Object(b.objectName(key)).Attrs(ctx)
	if err != nil {
		return time.Time{}, wrapErr(err, "stat "+key)
	}
	return attrs.Updated, nil
}

func wrapErr(err error, msg string) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ferrors.Wrap(ferrors.KindNotFound, err, msg)
	}
	return ferrors.Wrap(ferrors.KindTransport, err, msg)
}
