// Package backend defines the storage abstraction every mirror target
// implements, per spec §4.1. Objects are addressed by an opaque key (a
// relative path such as "registry/cache/<id>/serde-1.0.0.crate") and
// stored as content-addressed blobs; the four concrete implementations
// live in the backend/* subpackages and are selected by URL scheme via
// New.
package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// Backend is a content-addressed object store. Every method is
// context-aware so callers can bound latency and cancel in-flight
// requests; implementations must map transport failures to
// ferrors.KindTransport and missing-object conditions to
// ferrors.KindNotFound so callers can branch on Kind without knowing
// which backend they're talking to.
type Backend interface {
	// List returns every key stored under prefix, in no particular
	// order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Fetch returns the full contents of key. A missing key is
	// reported as a ferrors.KindNotFound error.
	Fetch(ctx context.Context, key string) ([]byte, error)

	// Upload stores data at key, overwriting any existing object.
	Upload(ctx context.Context, key string, data []byte) error

	// Updated returns the last-modified time of key, for registry
	// index staleness checks. A missing key is ferrors.KindNotFound.
	Updated(ctx context.Context, key string) (time.Time, error)
}

// Opener constructs a Backend from a parsed URL. Each concrete package
// registers one via Register or RegisterHostMatch.
type Opener func(u *url.URL) (Backend, error)

var openers = map[string]Opener{}

// Register associates a URL scheme with an Opener. Concrete backend
// packages call this from an init func so importing them for side
// effect is enough to make New recognise their scheme.
func Register(scheme string, open Opener) {
	openers[scheme] = open
}

// hostMatcher pairs a predicate over an http(s) URL's host with the
// Opener to use when it matches, for backends whose documented URL
// shape (per spec.md §4.2) is an http(s) URL distinguished by host
// pattern rather than by a custom scheme.
type hostMatcher struct {
	match func(u *url.URL) bool
	open  Opener
}

var hostMatchers []hostMatcher

// RegisterHostMatch associates a host predicate, checked only against
// http/https URLs, with an Opener. New tries every registered host
// matcher before falling back to scheme-based dispatch, so a backend
// can claim a specific http(s) host shape (e.g. an S3 virtual-hosted
// bucket) without taking over every http(s) URL.
func RegisterHostMatch(match func(u *url.URL) bool, open Opener) {
	hostMatchers = append(hostMatchers, hostMatcher{match: match, open: open})
}

// New dispatches rawURL to the Backend implementation registered for
// its scheme or host shape: "file" for the filesystem backend,
// an S3 virtual-hosted http(s) host or "s3" for S3-compatible stores,
// "gs" for GCS, "blob" for Azure Blob Storage.
func New(rawURL string) (Backend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, ferrors.Wrapf(ferrors.KindConfig, err, "parsing backend url %q", rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" {
		for _, hm := range hostMatchers {
			if hm.match(u) {
				return hm.open(u)
			}
		}
	}
	open, ok := openers[scheme]
	if !ok {
		return nil, ferrors.New(ferrors.KindConfig, fmt.Sprintf("unsupported backend scheme %q", scheme))
	}
	return open(u)
}
