package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/registry"
)

func TestDetectProtocol(t *testing.T) {
	assert.Equal(t, registry.GitProtocol, registry.DetectProtocol("https://github.com/rust-lang/crates.io-index"))
	assert.Equal(t, registry.SparseProtocol, registry.DetectProtocol("sparse+https://index.crates.io/"))
	assert.Equal(t, registry.SparseProtocol, registry.DetectProtocol("https://index.crates.io/"))
}

func TestIndexSnapshotKey(t *testing.T) {
	assert.Equal(t, "cache/index/abc123.tar.zst", registry.IndexSnapshotKey("cache", "abc123"))
	assert.Equal(t, "cache/index/abc123.tar.zst", registry.IndexSnapshotKey("cache/", "abc123"))
}

func TestIndexFilePath(t *testing.T) {
	assert.Equal(t, "se/rd/serde", registry.IndexFilePath("serde"))
	assert.Equal(t, "3/a/abc", registry.IndexFilePath("abc"))
	assert.Equal(t, "1/a", registry.IndexFilePath("a"))
}

func TestParseMaxStale(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"2h", 2 * time.Hour},
		{"3d", 3 * 24 * time.Hour},
		{"7", 7 * 24 * time.Hour},
	}
	for _, c := range cases {
		got, err := registry.ParseMaxStale(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseMaxStale_RejectsGarbage(t *testing.T) {
	_, err := registry.ParseMaxStale("not-a-duration")
	assert.Error(t, err)
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, registry.IsStale(now.Add(-2*time.Hour), now, time.Hour), "2h ago with 1h budget is stale")
	assert.False(t, registry.IsStale(now.Add(-30*time.Minute), now, time.Hour), "30m ago with 1h budget is fresh")
}
