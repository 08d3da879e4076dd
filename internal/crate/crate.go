// Package crate implements the registry crate artifact pipeline, per
// spec §4.5: download a `.crate` tarball from its registry, verify its
// SHA-256 against the lockfile-declared checksum, and either mirror it
// into the backend or unpack it into the on-disk source layout.
//
// `.crate` tarballs are gzip-compressed tar archives (Cargo's own
// publish format), not zstd — zstd is reserved for this tool's own
// snapshot artifacts (registry indices, git bares/checkouts).
package crate

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
	"github.com/catalyst-forge/cargo-fetcher/internal/layout"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

// BackendKey is the object-store key a registry crate is stored under,
// per spec §3: "<prefix>/<name>-<version>.crate".
func BackendKey(keyPrefix string, pkg source.Package) string {
	return strings.TrimSuffix(keyPrefix, "/") + "/" + pkg.CrateFileName()
}

// DownloadURL expands a registry's url-template for pkg. Recognised
// placeholders: {crate}, {version}, {prefix} (ShardPrefix of the crate
// name: "1", "2", "3/<first>" or "<first-two>/<next-two>", cargo's
// sparse-index sharding), {lowerprefix} (lowercased), {sha256}.
func DownloadURL(pkg source.Package) string {
	tmpl := pkg.Source.Registry.URLTemplate
	prefix := ShardPrefix(pkg.Name)

	replacer := strings.NewReplacer(
		"{crate}", pkg.Name,
		"{version}", pkg.Version,
		"{prefix}", prefix,
		"{lowerprefix}", strings.ToLower(prefix),
		"{sha256}", pkg.Checksum,
	)
	return replacer.Replace(tmpl)
}

// ShardPrefix reproduces cargo's real sparse-index sharding convention:
// 1-char names use "1", 2-char names use "2", 3-char names use
// "3/<first>", longer names use "<first-two>/<next-two>". It is used
// both for {prefix}/{lowerprefix} download-URL placeholders here and
// for locating a crate's file within a cloned index tree in
// internal/registry — the two places this tool needs cargo's own
// layout rather than the simplified uniform layout internal/layout
// uses for local `.cache` entries.
func ShardPrefix(name string) string {
	switch {
	case len(name) == 1:
		return "1"
	case len(name) == 2:
		return "2"
	case len(name) == 3:
		return "3/" + name[0:1]
	default:
		return name[0:2] + "/" + name[2:4]
	}
}

// VerifyChecksum returns a KindIntegrity error if data's SHA-256 does
// not match want (a lowercase hex string).
func VerifyChecksum(data []byte, want string) error {
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if got != strings.ToLower(want) {
		return ferrors.New(ferrors.KindIntegrity, "checksum mismatch: want "+want+", got "+got)
	}
	return nil
}

// Mirror downloads pkg's tarball from its registry, verifies its
// checksum, and uploads it to the backend under BackendKey. A checksum
// mismatch is returned as a KindIntegrity error and the bytes are never
// uploaded, per spec invariant 2.
func Mirror(ctx context.Context, client *http.Client, b backend.Backend, pkg source.Package, keyPrefix string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, DownloadURL(pkg), nil)
	if err != nil {
		return ferrors.Wrap(ferrors.KindConfig, err, "building request for "+pkg.Name)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ferrors.Wrapf(ferrors.KindTransport, err, "downloading %s-%s", pkg.Name, pkg.Version)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ferrors.New(ferrors.KindTransport, "unexpected status "+resp.Status+" fetching "+pkg.Name)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ferrors.Wrapf(ferrors.KindTransport, err, "reading body for %s-%s", pkg.Name, pkg.Version)
	}

	if err := VerifyChecksum(data, pkg.Checksum); err != nil {
		return err
	}

	return b.Upload(ctx, BackendKey(keyPrefix, pkg), data)
}

// Sync downloads pkg's tarball from the backend, writes it to
// CH/registry/cache/<registry-id>/<name>-<version>.crate, and unpacks
// it into CH/registry/src/<registry-id>/<name>-<version>/, stripping
// the tarball's single top-level directory.
func Sync(ctx context.Context, b backend.Backend, pkg source.Package, keyPrefix string, home layout.Home) error {
	data, err := b.Fetch(ctx, BackendKey(keyPrefix, pkg))
	if err != nil {
		return err
	}

	registryID := pkg.Source.Registry.RegistryID
	tarballPath := home.CrateTarball(registryID, pkg.Name, pkg.Version)
	if err := writeFileAtomic(tarballPath, data); err != nil {
		return err
	}

	srcDir := home.CrateSrcDir(registryID, pkg.Name, pkg.Version)
	return unpackStrippingTopLevel(data, srcDir)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating directory for "+path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating temp file for "+path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ferrors.Wrap(ferrors.KindLocalIO, err, "writing "+path)
	}
	if err := tmp.Close(); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "closing temp file for "+path)
	}
	return ferrors.Wrap(ferrors.KindLocalIO, os.Rename(tmpName, path), "renaming into place: "+path)
}

// unpackStrippingTopLevel untars a gzip-compressed crate tarball into
// destDir, dropping the tarball's single top-level directory component
// (cargo's `.crate` files always contain exactly one, "<name>-<version>/").
func unpackStrippingTopLevel(data []byte, destDir string) error {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return ferrors.Wrap(ferrors.KindIntegrity, err, "opening gzip stream")
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ferrors.Wrap(ferrors.KindIntegrity, err, "reading crate tar entry")
		}

		rel := stripTopLevel(hdr.Name)
		if rel == "" {
			continue
		}
		target, err := safeJoin(destDir, rel)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return ferrors.Wrap(ferrors.KindLocalIO, err, "creating directory "+rel)
			}
		case tar.TypeReg:
			contents, err := io.ReadAll(tr)
			if err != nil {
				return ferrors.Wrap(ferrors.KindLocalIO, err, "reading "+rel)
			}
			if err := writeFileAtomic(target, contents); err != nil {
				return err
			}
		}
	}
	return nil
}

// safeJoin joins destDir and rel, rejecting any entry whose resolved
// path would escape destDir (a zip-slip attempt via "../" components
// or an absolute path in the tar header).
func safeJoin(destDir, rel string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(rel))
	destWithSep := filepath.Clean(destDir) + string(filepath.Separator)
	if target != filepath.Clean(destDir) && !strings.HasPrefix(target, destWithSep) {
		return "", ferrors.New(ferrors.KindIntegrity, "tar entry escapes destination directory: "+rel)
	}
	return target, nil
}

func stripTopLevel(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	idx := strings.IndexByte(name, '/')
	if idx < 0 {
		return ""
	}
	return name[idx+1:]
}
