package registry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
	"github.com/catalyst-forge/cargo-fetcher/internal/gitmirror"
	"github.com/catalyst-forge/cargo-fetcher/internal/layout"
	"github.com/catalyst-forge/cargo-fetcher/internal/registry/cacheformat"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

// SyncIndex fetches reg's index snapshot from the backend and unpacks
// it into CH/registry/index/<registry-id>/, per spec §4.4's sync path.
func SyncIndex(ctx context.Context, b backend.Backend, reg source.RegistryInfo, keyPrefix string, home layout.Home) error {
	key := IndexSnapshotKey(keyPrefix, reg.RegistryID)
	data, err := b.Fetch(ctx, key)
	if err != nil {
		return err
	}

	dir := home.RegistryIndexDir(reg.RegistryID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating index directory")
	}
	return gitmirror.Unpack(data, dir)
}

// SynthesizeCache builds the .cache/<aa>/<bb>/<name> entry for every
// package in pkgs from the already-unpacked index tree under
// CH/registry/index/<registry-id>/, per spec §6.
//
// For a git-protocol registry every entry shares one IndexHash (the
// index commit MirrorGitIndex stamped at the snapshot root). For a
// sparse-protocol registry each crate's IndexHash is that crate's own
// HTTP ETag, since there is no single index tree to version — a
// deliberate per-crate narrowing of the documented per-registry field,
// recorded in the project's design notes.
func SynthesizeCache(home layout.Home, reg source.RegistryInfo, pkgs []source.Package) error {
	indexDir := home.RegistryIndexDir(reg.RegistryID)
	protocol := DetectProtocol(reg.IndexURL)

	var globalHash string
	if protocol == GitProtocol {
		raw, err := os.ReadFile(filepath.Join(indexDir, indexCommitFile))
		if err != nil {
			return ferrors.Wrap(ferrors.KindIntegrity, err, "reading index commit stamp")
		}
		globalHash = string(raw)
	}

	byName := map[string][]source.Package{}
	for _, pkg := range pkgs {
		byName[pkg.Name] = append(byName[pkg.Name], pkg)
	}

	for name := range byName {
		if err := synthesizeOne(home, reg, name, protocol, globalHash); err != nil {
			return err
		}
	}
	return nil
}

func synthesizeOne(home layout.Home, reg source.RegistryInfo, name string, protocol Protocol, globalHash string) error {
	indexDir := home.RegistryIndexDir(reg.RegistryID)
	fullPath := filepath.Join(indexDir, filepath.FromSlash(IndexFilePath(name)))

	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return ferrors.Wrap(ferrors.KindNotFound, err, "reading index file for "+name)
	}

	hash := globalHash
	if protocol == SparseProtocol {
		etag, err := os.ReadFile(fullPath + etagSuffix)
		if err != nil {
			return ferrors.Wrap(ferrors.KindIntegrity, err, "reading etag sidecar for "+name)
		}
		hash = string(etag)
	}

	entries, err := parseIndexLines(raw)
	if err != nil {
		return ferrors.Wrapf(ferrors.KindIntegrity, err, "parsing index file for %s", name)
	}

	cachePath := home.CacheEntryPath(reg.RegistryID, name)
	encoded := cacheformat.Encode(cacheformat.File{IndexHash: hash, Entries: entries})
	return writeCacheFileAtomic(cachePath, encoded)
}

// indexLine is the subset of a registry index line this tool needs:
// the version string each line describes. The rest of the line is kept
// verbatim as the .cache entry's JSON payload.
type indexLine struct {
	Vers string `json:"vers"`
}

func parseIndexLines(raw []byte) ([]cacheformat.Entry, error) {
	var entries []cacheformat.Entry
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var parsed indexLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			return nil, err
		}
		entries = append(entries, cacheformat.Entry{
			Semver: parsed.Vers,
			JSON:   append([]byte(nil), line...),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func writeCacheFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating cache directory")
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating temp cache file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ferrors.Wrap(ferrors.KindLocalIO, err, "writing cache file "+path)
	}
	if err := tmp.Close(); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "closing temp cache file")
	}
	return ferrors.Wrap(ferrors.KindLocalIO, os.Rename(tmpName, path), "renaming cache file into place: "+path)
}
