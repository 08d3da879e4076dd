// Package backendtest provides a conformance test suite for validating
// backend.Backend implementations against a single set of behavioral
// contracts, independent of which concrete store backs them.
//
// Example usage:
//
//	func TestFSBackend(t *testing.T) {
//	    dir := t.TempDir()
//	    backendtest.TestSuite(t, func() backend.Backend {
//	        return fsbackend.New(dir)
//	    })
//	}
package backendtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// TestSuite runs every conformance test against a fresh Backend
// returned by newBackend. newBackend is called once per subtest so
// tests do not interfere with each other's keys.
func TestSuite(t *testing.T, newBackend func() backend.Backend) {
	t.Run("UploadThenFetch", func(t *testing.T) {
		testUploadThenFetch(t, newBackend())
	})
	t.Run("FetchMissingIsNotFound", func(t *testing.T) {
		testFetchMissingIsNotFound(t, newBackend())
	})
	t.Run("UploadOverwrites", func(t *testing.T) {
		testUploadOverwrites(t, newBackend())
	})
	t.Run("ListUnderPrefix", func(t *testing.T) {
		testListUnderPrefix(t, newBackend())
	})
	t.Run("UpdatedReflectsUpload", func(t *testing.T) {
		testUpdatedReflectsUpload(t, newBackend())
	})
	t.Run("UpdatedMissingIsNotFound", func(t *testing.T) {
		testUpdatedMissingIsNotFound(t, newBackend())
	})
}

func testUploadThenFetch(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	want := []byte("hello world")

	require.NoError(t, b.Upload(ctx, "a/b/c.txt", want))

	got, err := b.Fetch(ctx, "a/b/c.txt")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func testFetchMissingIsNotFound(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	_, err := b.Fetch(ctx, "does/not/exist")
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok, "error must carry a ferrors.Kind")
	assert.Equal(t, ferrors.KindNotFound, kind)
}

func testUploadOverwrites(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "key", []byte("v1")))
	require.NoError(t, b.Upload(ctx, "key", []byte("v2")))

	got, err := b.Fetch(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func testListUnderPrefix(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	require.NoError(t, b.Upload(ctx, "prefix/one", []byte("1")))
	require.NoError(t, b.Upload(ctx, "prefix/two", []byte("2")))
	require.NoError(t, b.Upload(ctx, "other/three", []byte("3")))

	keys, err := b.List(ctx, "prefix")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	for _, k := range keys {
		assert.Contains(t, k, "prefix")
	}
}

func testUpdatedReflectsUpload(t *testing.T, b backend.Backend) {
	ctx := context.Background()
	before := time.Now().Add(-time.Minute)

	require.NoError(t, b.Upload(ctx, "stamped", []byte("x")))

	got, err := b.Updated(ctx, "stamped")
	require.NoError(t, err)
	assert.True(t, got.After(before), "Updated should reflect a recent write")
}

func testUpdatedMissingIsNotFound(t *testing.T, b backend.Backend) {
	ctx := context.Background()

	_, err := b.Updated(ctx, "never/written")
	require.Error(t, err)
	kind, ok := ferrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindNotFound, kind)
}
