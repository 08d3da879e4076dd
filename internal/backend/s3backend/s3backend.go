// Package s3backend implements backend.Backend against any S3-compatible
// object store, grounded on the teacher's aws/s3 client package: a
// functional-options constructor loading credentials through the SDK's
// default chain (environment, shared config, EC2 IMDSv2, ...), with the
// concrete client narrowed behind a small interface for testability.
package s3backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

func init() {
	backend.RegisterHostMatch(func(u *url.URL) bool {
		_, _, _, ok := parseVirtualHostedHost(u.Host)
		return ok
	}, openVirtualHosted)

	// "s3://bucket/prefix?region=...&endpoint=...&path-style=true" is
	// kept as an internal convenience for self-hosted/non-AWS
	// endpoints that don't have an "s3" in their hostname at all.
	backend.Register("s3", func(u *url.URL) (backend.Backend, error) {
		bucket := u.Host
		if bucket == "" {
			return nil, ferrors.New(ferrors.KindConfig, "s3 backend url has no bucket host")
		}
		prefix := strings.TrimPrefix(u.Path, "/")

		q := u.Query()
		var opts []Option
		if region := q.Get("region"); region != "" {
			opts = append(opts, WithRegion(region))
		}
		if q.Get("path-style") == "true" {
			opts = append(opts, WithForcePathStyle(true))
		}
		if endpoint := q.Get("endpoint"); endpoint != "" {
			opts = append(opts, WithEndpoint(endpoint))
		}

		return New(bucket, prefix, opts...)
	})
}

// virtualHostedPattern matches the documented S3 backend URL host
// shape, "<bucket>.s3[-<region>].<host>" (e.g.
// "my-bucket.s3.amazonaws.com" or "my-bucket.s3-us-west-2.amazonaws.com").
var virtualHostedPattern = regexp.MustCompile(`^([^.]+)\.s3(?:-([a-z0-9-]+))?\.(.+)$`)

// parseVirtualHostedHost splits an S3 virtual-hosted-style host into
// its bucket and region (region is "" when the host doesn't encode
// one, e.g. the global "s3.amazonaws.com" endpoint).
func parseVirtualHostedHost(host string) (bucket, region, domain string, ok bool) {
	m := virtualHostedPattern.FindStringSubmatch(host)
	if m == nil {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// openVirtualHosted builds a Backend from the documented
// "http(s)://<bucket>.s3[-<region>].<host>(/<prefix>)?" URL shape. A
// domain other than "amazonaws.com" is an S3-compatible store with its
// own endpoint (e.g. a self-hosted MinIO reachable as
// "bucket.s3.minio.example.com"), so its full host is passed through
// as an explicit endpoint rather than left for the SDK to recompute.
func openVirtualHosted(u *url.URL) (backend.Backend, error) {
	bucket, region, domain, ok := parseVirtualHostedHost(u.Host)
	if !ok {
		return nil, ferrors.New(ferrors.KindConfig, "s3 backend url host is not a virtual-hosted S3 endpoint: "+u.Host)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	var opts []Option
	if region != "" {
		opts = append(opts, WithRegion(region))
	}
	if !strings.EqualFold(domain, "amazonaws.com") {
		opts = append(opts, WithEndpoint(u.Scheme+"://"+u.Host))
	}

	return New(bucket, prefix, opts...)
}

// clientConfig collects the functional options accumulated before the
// SDK client is constructed.
type clientConfig struct {
	region         string
	endpoint       string
	forcePathStyle bool
}

// Option configures a Backend at construction time.
type Option func(*clientConfig)

// WithRegion overrides the AWS region used for SigV4 signing.
func WithRegion(region string) Option {
	return func(c *clientConfig) { c.region = region }
}

// WithEndpoint points the client at a non-AWS S3-compatible endpoint
// (MinIO, R2, etc).
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) { c.endpoint = endpoint }
}

// WithForcePathStyle selects path-style addressing, required by most
// self-hosted S3-compatible stores.
func WithForcePathStyle(force bool) Option {
	return func(c *clientConfig) { c.forcePathStyle = force }
}

// Backend stores objects as keys within a single S3 bucket, rooted
// under an optional prefix.
type Backend struct {
	client s3API
	bucket string
	prefix string
}

// New builds a Backend for bucket, loading credentials from the SDK's
// default chain (environment variables, shared config/credentials
// files, EC2 instance metadata via IMDSv2, container credentials).
func New(bucket, prefix string, opts ...Option) (*Backend, error) {
	cfg := &clientConfig{region: "us-east-1"}
	for _, opt := range opts {
		opt(cfg)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(cfg.region))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfig, err, "loading AWS credentials")
	}

	var s3Opts []func(*s3.Options)
	if cfg.forcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	if cfg.endpoint != "" {
		endpoint := cfg.endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpoint) })
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket, prefix), nil
}

// NewWithClient builds a Backend around an already-configured client,
// primarily so tests can inject a fake s3API.
func NewWithClient(client s3API, bucket, prefix string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (b *Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var continuation *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(b.objectKey(prefix)),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, wrapErr(err, "listing "+prefix)
		}
		for _, obj := range out.Contents {
			keys = append(keys, b.trimPrefix(aws.ToString(obj.Key)))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuation = out.NextContinuationToken
	}
	return keys, nil
}

func (b *Backend) trimPrefix(objectKey string) string {
	if b.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, b.prefix+"/")
}

func (b *Backend) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return nil, wrapErr(err, "fetching "+key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindTransport, err, "reading body for "+key)
	}
	return data, nil
}

func (b *Backend) Upload(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return wrapErr(err, "uploading "+key)
	}
	return nil
}

func (b *Backend) Updated(ctx context.Context, key string) (time.Time, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return time.Time{}, wrapErr(err, "stat "+key)
	}
	return aws.ToTime(out.LastModified), nil
}

// wrapErr classifies an S3 SDK error into our error taxonomy: missing
// objects (NoSuchKey / NotFound, the latter returned by HeadObject for
// a 404) become ferrors.KindNotFound, everything else is a transport
// failure eligible for retry.
func wrapErr(err error, msg string) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ferrors.Wrap(ferrors.KindNotFound, err, msg)
	}
	return ferrors.Wrap(ferrors.KindTransport, err, msg)
}
