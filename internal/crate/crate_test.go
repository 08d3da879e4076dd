package crate_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend/fsbackend"
	"github.com/catalyst-forge/cargo-fetcher/internal/crate"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
	"github.com/catalyst-forge/cargo-fetcher/internal/layout"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

func buildCrateTarball(t *testing.T, topDir string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for name, contents := range files {
		hdr := &tar.Header{
			Name: topDir + "/" + name,
			Mode: 0o644,
			Size: int64(len(contents)),
		}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func TestDownloadURL_ExpandsPlaceholders(t *testing.T) {
	pkg := source.Package{
		Name: "serde", Version: "1.0.0", Checksum: "abcd",
		Source: source.Source{Registry: source.RegistryInfo{
			URLTemplate: "https://static.crates.io/crates/{crate}/{crate}-{version}.crate",
		}},
	}
	assert.Equal(t, "https://static.crates.io/crates/serde/serde-1.0.0.crate", crate.DownloadURL(pkg))
}

func TestVerifyChecksum_Matches(t *testing.T) {
	data := []byte("hello")
	sum := sha256.Sum256(data)
	want := hex.EncodeToString(sum[:])
	assert.NoError(t, crate.VerifyChecksum(data, want))
}

func TestVerifyChecksum_MismatchIsIntegrityError(t *testing.T) {
	err := crate.VerifyChecksum([]byte("hello"), "0000")
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindIntegrity, kind)
}

func TestMirror_VerifiesAndUploads(t *testing.T) {
	tarball := buildCrateTarball(t, "serde-1.0.0", map[string]string{"Cargo.toml": "[package]\nname=\"serde\""})
	sum := sha256.Sum256(tarball)
	checksum := hex.EncodeToString(sum[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarball)
	}))
	defer srv.Close()

	pkg := source.Package{
		Name: "serde", Version: "1.0.0", Checksum: checksum,
		Source: source.Source{Registry: source.RegistryInfo{URLTemplate: srv.URL}},
	}

	b := fsbackend.New(t.TempDir())
	err := crate.Mirror(context.Background(), srv.Client(), b, pkg, "cache")
	require.NoError(t, err)

	got, err := b.Fetch(context.Background(), "cache/serde-1.0.0.crate")
	require.NoError(t, err)
	assert.Equal(t, tarball, got)
}

func TestMirror_RejectsBadChecksumWithoutUploading(t *testing.T) {
	tarball := buildCrateTarball(t, "serde-1.0.0", map[string]string{"Cargo.toml": "x"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tarball)
	}))
	defer srv.Close()

	pkg := source.Package{
		Name: "serde", Version: "1.0.0", Checksum: "0000000000000000000000000000000000000000000000000000000000000000",
		Source: source.Source{Registry: source.RegistryInfo{URLTemplate: srv.URL}},
	}

	b := fsbackend.New(t.TempDir())
	err := crate.Mirror(context.Background(), srv.Client(), b, pkg, "cache")
	require.Error(t, err)

	_, fetchErr := b.Fetch(context.Background(), "cache/serde-1.0.0.crate")
	assert.Error(t, fetchErr, "mismatched bytes must never be written to the backend")
}

func TestSync_WritesTarballAndUnpacksStrippingTopLevel(t *testing.T) {
	tarball := buildCrateTarball(t, "serde-1.0.0", map[string]string{
		"Cargo.toml": "[package]\nname=\"serde\"",
		"src/lib.rs": "pub fn hi() {}",
	})

	b := fsbackend.New(t.TempDir())
	require.NoError(t, b.Upload(context.Background(), "cache/serde-1.0.0.crate", tarball))

	home := layout.New(t.TempDir())
	pkg := source.Package{
		Name: "serde", Version: "1.0.0",
		Source: source.Source{Registry: source.RegistryInfo{RegistryID: "abc123"}},
	}

	require.NoError(t, crate.Sync(context.Background(), b, pkg, "cache", home))

	tarballPath := home.CrateTarball("abc123", "serde", "1.0.0")
	onDisk, err := os.ReadFile(tarballPath)
	require.NoError(t, err)
	assert.Equal(t, tarball, onDisk)

	cargoToml, err := os.ReadFile(filepath.Join(home.CrateSrcDir("abc123", "serde", "1.0.0"), "Cargo.toml"))
	require.NoError(t, err)
	assert.Equal(t, "[package]\nname=\"serde\"", string(cargoToml))
}

func TestSync_RejectsTarEntryEscapingDestination(t *testing.T) {
	tarball := buildCrateTarball(t, "serde-1.0.0", map[string]string{
		"../../evil.txt": "pwned",
	})

	b := fsbackend.New(t.TempDir())
	require.NoError(t, b.Upload(context.Background(), "cache/serde-1.0.0.crate", tarball))

	home := layout.New(t.TempDir())
	pkg := source.Package{
		Name: "serde", Version: "1.0.0",
		Source: source.Source{Registry: source.RegistryInfo{RegistryID: "abc123"}},
	}

	err := crate.Sync(context.Background(), b, pkg, "cache", home)
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindIntegrity, kind)
}
