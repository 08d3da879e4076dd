package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend/fsbackend"
	"github.com/catalyst-forge/cargo-fetcher/internal/layout"
	"github.com/catalyst-forge/cargo-fetcher/internal/registry"
	"github.com/catalyst-forge/cargo-fetcher/internal/registry/cacheformat"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

func TestMirrorSparseIndex_SkipsWhenFresh(t *testing.T) {
	b := fsbackend.New(t.TempDir())
	ctx := context.Background()

	key := registry.IndexSnapshotKey("cache", "reg1")
	require.NoError(t, b.Upload(ctx, key, []byte("snapshot")))

	reg := source.RegistryInfo{RegistryID: "reg1", IndexURL: "https://index.crates.io/"}

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	err := registry.MirrorSparseIndex(ctx, srv.Client(), b, reg, "cache", []string{"serde"}, 24*time.Hour, t.TempDir())
	require.NoError(t, err)
	assert.False(t, called, "a fresh snapshot must not trigger any upstream fetch")
}

func TestMirrorSparseIndex_FetchesAndUploadsWhenStale(t *testing.T) {
	b := fsbackend.New(t.TempDir())
	ctx := context.Background()

	body := `{"name":"serde","vers":"1.0.0","cksum":"abc"}` + "\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"the-etag"`)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	reg := source.RegistryInfo{RegistryID: "reg1", IndexURL: srv.URL}
	err := registry.MirrorSparseIndex(ctx, srv.Client(), b, reg, "cache", []string{"serde"}, -1, t.TempDir())
	require.NoError(t, err)

	_, err = b.Fetch(ctx, registry.IndexSnapshotKey("cache", "reg1"))
	require.NoError(t, err, "a stale (here: nonexistent) snapshot must be uploaded")
}

func TestSyncIndexAndSynthesizeCache_SparseProtocol(t *testing.T) {
	b := fsbackend.New(t.TempDir())
	ctx := context.Background()

	body := `{"name":"serde","vers":"1.0.0","cksum":"abc"}` + "\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"the-etag"`)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	reg := source.RegistryInfo{RegistryID: "reg1", IndexURL: "sparse+" + srv.URL}
	require.NoError(t, registry.MirrorSparseIndex(ctx, srv.Client(), b, reg, "cache", []string{"serde"}, -1, t.TempDir()))

	home := layout.New(t.TempDir())
	require.NoError(t, registry.SyncIndex(ctx, b, reg, "cache", home))

	pkgs := []source.Package{{Name: "serde", Version: "1.0.0", Source: source.Source{Registry: reg}}}
	require.NoError(t, registry.SynthesizeCache(home, reg, pkgs))

	raw, err := os.ReadFile(home.CacheEntryPath("reg1", "serde"))
	require.NoError(t, err)

	decoded, err := cacheformat.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, `"the-etag"`, decoded.IndexHash)
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, "1.0.0", decoded.Entries[0].Semver)
}

func TestSynthesizeCache_GitProtocolSharesOneIndexHash(t *testing.T) {
	home := layout.New(t.TempDir())
	reg := source.RegistryInfo{RegistryID: "reg1", IndexURL: "https://github.com/rust-lang/crates.io-index"}

	indexDir := home.RegistryIndexDir("reg1")
	require.NoError(t, os.MkdirAll(filepath.Join(indexDir, "se", "rd"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(indexDir, ".cargo-fetcher-index-commit"), []byte("deadbeef"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(indexDir, registry.IndexFilePath("serde")),
		[]byte(`{"name":"serde","vers":"1.0.0","cksum":"abc"}`+"\n"),
		0o644,
	))

	pkgs := []source.Package{{Name: "serde", Version: "1.0.0", Source: source.Source{Registry: reg}}}
	require.NoError(t, registry.SynthesizeCache(home, reg, pkgs))

	raw, err := os.ReadFile(home.CacheEntryPath("reg1", "serde"))
	require.NoError(t, err)
	decoded, err := cacheformat.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", decoded.IndexHash)
}
