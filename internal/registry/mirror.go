package registry

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
	"github.com/catalyst-forge/cargo-fetcher/internal/gitmirror"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

// checkStale reports whether key's stored snapshot is missing or older
// than maxStale, per spec §4.4's mirror path. A missing snapshot is
// always stale; any other Updated error is returned as-is.
func checkStale(ctx context.Context, b backend.Backend, key string, maxStale time.Duration) (bool, error) {
	updated, err := b.Updated(ctx, key)
	if err != nil {
		if kind, ok := ferrors.KindOf(err); ok && kind == ferrors.KindNotFound {
			return true, nil
		}
		return false, err
	}
	return IsStale(updated, time.Now(), maxStale), nil
}

// MirrorGitIndex refreshes a git-protocol registry's index snapshot if
// it is missing or stale. scratchDir is a caller-owned, empty directory
// used for the clone and removed before returning.
func MirrorGitIndex(ctx context.Context, b backend.Backend, reg source.RegistryInfo, keyPrefix string, maxStale time.Duration, scratchDir string, opts gitmirror.Options) error {
	key := IndexSnapshotKey(keyPrefix, reg.RegistryID)
	stale, err := checkStale(ctx, b, key, maxStale)
	if err != nil || !stale {
		return err
	}

	defer gitmirror.CleanupDir(scratchDir)
	headCommit, err := gitmirror.CloneIndexWorkingTree(ctx, reg.IndexURL, scratchDir, opts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(scratchDir, indexCommitFile), []byte(headCommit), 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "stamping index commit")
	}

	data, err := gitmirror.Pack(scratchDir)
	if err != nil {
		return err
	}
	return b.Upload(ctx, key, data)
}

// MirrorSparseIndex refreshes a sparse-protocol registry's index
// snapshot if it is missing or stale. Unlike a git index, there is no
// single tree to clone: cargo itself only ever fetches the per-crate
// files it needs, so this mirrors exactly the files crateNames
// reference, each tagged with its own HTTP ETag, into the same
// snapshot-tar shape a git index produces.
func MirrorSparseIndex(ctx context.Context, client *http.Client, b backend.Backend, reg source.RegistryInfo, keyPrefix string, crateNames []string, maxStale time.Duration, scratchDir string) error {
	key := IndexSnapshotKey(keyPrefix, reg.RegistryID)
	stale, err := checkStale(ctx, b, key, maxStale)
	if err != nil || !stale {
		return err
	}

	base := strings.TrimPrefix(reg.IndexURL, "sparse+")
	for _, name := range crateNames {
		body, etag, err := fetchSparseCrateFile(ctx, client, base, name)
		if err != nil {
			return err
		}

		relPath := IndexFilePath(name)
		fullPath := filepath.Join(scratchDir, filepath.FromSlash(relPath))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return ferrors.Wrap(ferrors.KindLocalIO, err, "creating index shard directory")
		}
		if err := os.WriteFile(fullPath, body, 0o644); err != nil {
			return ferrors.Wrap(ferrors.KindLocalIO, err, "writing sparse index file for "+name)
		}
		if err := os.WriteFile(fullPath+etagSuffix, []byte(etag), 0o644); err != nil {
			return ferrors.Wrap(ferrors.KindLocalIO, err, "writing etag sidecar for "+name)
		}
	}

	data, err := gitmirror.Pack(scratchDir)
	if err != nil {
		return err
	}
	return b.Upload(ctx, key, data)
}

func fetchSparseCrateFile(ctx context.Context, client *http.Client, base, name string) (body []byte, etag string, err error) {
	url := strings.TrimSuffix(base, "/") + "/" + IndexFilePath(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", ferrors.Wrap(ferrors.KindConfig, err, "building sparse index request for "+name)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", ferrors.Wrapf(ferrors.KindTransport, err, "fetching sparse index entry %s", name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", ferrors.New(ferrors.KindTransport, "unexpected status "+resp.Status+" fetching index entry "+name)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", ferrors.Wrapf(ferrors.KindTransport, err, "reading sparse index entry %s", name)
	}
	return data, resp.Header.Get("ETag"), nil
}
