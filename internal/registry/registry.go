// Package registry implements the registry index manager, per spec
// §4.4: keep a backend-stored snapshot of each distinct registry's
// index fresh within a staleness window, and — on sync — unpack that
// snapshot and synthesise the per-crate `.cache` files the downstream
// build tool would otherwise have to compute itself.
//
// Two index protocols exist in the wild and both are supported:
// git-protocol registries (crates.io's classic `crates.io-index`) are
// mirrored as a whole-tree snapshot, keyed by the index HEAD commit.
// Sparse-protocol registries (crates.io's modern `index.crates.io`)
// have no single tree to clone — cargo itself only ever fetches the
// per-crate files it needs — so this tool mirrors exactly the
// per-crate files the lockfile references, each keyed by its own HTTP
// ETag, packed into the same snapshot-tar shape. This is a deliberate
// narrowing of "the index" for sparse registries, recorded in the
// project's design notes.
package registry

import (
	"strconv"
	"strings"
	"time"

	"github.com/catalyst-forge/cargo-fetcher/internal/crate"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// Protocol identifies which wire protocol a registry's index uses.
type Protocol int

const (
	// GitProtocol registries publish their index as a clonable git
	// repository (crates.io's classic "crates.io-index").
	GitProtocol Protocol = iota
	// SparseProtocol registries publish per-crate index files over
	// plain HTTPS (crates.io's modern "index.crates.io").
	SparseProtocol
)

// DetectProtocol classifies indexURL. A "sparse+" scheme prefix or a
// reference to crates.io's sparse host marks SparseProtocol; anything
// else is assumed to be a classic git index.
func DetectProtocol(indexURL string) Protocol {
	if strings.HasPrefix(indexURL, "sparse+") || strings.Contains(indexURL, "index.crates.io") {
		return SparseProtocol
	}
	return GitProtocol
}

// indexCommitFile is the sidecar file MirrorGitIndex writes at the root
// of a git-protocol snapshot, holding the index HEAD commit hex that
// becomes every synthesised .cache entry's IndexHash.
const indexCommitFile = ".cargo-fetcher-index-commit"

// etagSuffix marks the sidecar file MirrorSparseIndex writes alongside
// each per-crate index file, holding that file's HTTP ETag.
const etagSuffix = ".cargo-fetcher-etag"

// IndexSnapshotKey is the backend object key for a registry's index
// snapshot, per spec §3: "<prefix>/index/<registry-id>.tar.zst".
func IndexSnapshotKey(keyPrefix, registryID string) string {
	return strings.TrimSuffix(keyPrefix, "/") + "/index/" + registryID + ".tar.zst"
}

// IndexFilePath locates a crate's file within an unpacked index tree,
// using cargo's real sharding convention (shared with crate.ShardPrefix,
// which applies the identical rule to sparse download URLs).
func IndexFilePath(name string) string {
	return crate.ShardPrefix(name) + "/" + name
}

// ParseMaxStale parses a --max-stale duration string per spec §4.4: a
// trailing s|m|h|d suffix selects the unit; a bare integer is a count
// of days.
func ParseMaxStale(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ferrors.New(ferrors.KindConfig, "max-stale must not be empty")
	}

	unit := s[len(s)-1]
	var multiplier time.Duration
	numeric := s
	switch unit {
	case 's':
		multiplier = time.Second
		numeric = s[:len(s)-1]
	case 'm':
		multiplier = time.Minute
		numeric = s[:len(s)-1]
	case 'h':
		multiplier = time.Hour
		numeric = s[:len(s)-1]
	case 'd':
		multiplier = 24 * time.Hour
		numeric = s[:len(s)-1]
	default:
		multiplier = 24 * time.Hour // bare number: days
	}

	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.KindConfig, err, "parsing max-stale "+s)
	}
	return time.Duration(n) * multiplier, nil
}

// IsStale reports whether updated is outside the max-stale window as
// of now.
func IsStale(updated, now time.Time, maxStale time.Duration) bool {
	return now.Sub(updated) > maxStale
}
