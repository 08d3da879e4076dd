package cacheformat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/registry/cacheformat"
)

// fixture is a hand-built .cache file for crate "serde" with two
// versions, matching spec §6's documented layout byte-for-byte.
func fixture() (cacheformat.File, []byte) {
	f := cacheformat.File{
		IndexHash: "c0ffee",
		Entries: []cacheformat.Entry{
			{Semver: "1.0.0", JSON: []byte(`{"name":"serde","vers":"1.0.0","deps":[],"cksum":"abcd","yanked":false}`)},
			{Semver: "1.0.1", JSON: []byte(`{"name":"serde","vers":"1.0.1","deps":[],"cksum":"ef01","yanked":false}`)},
		},
	}

	want := []byte{3}
	want = append(want, []byte("c0ffee")...)
	want = append(want, 0)
	want = append(want, []byte("1.0.0")...)
	want = append(want, 0)
	want = append(want, []byte(`{"name":"serde","vers":"1.0.0","deps":[],"cksum":"abcd","yanked":false}`)...)
	want = append(want, 0)
	want = append(want, []byte("1.0.1")...)
	want = append(want, 0)
	want = append(want, []byte(`{"name":"serde","vers":"1.0.1","deps":[],"cksum":"ef01","yanked":false}`)...)
	want = append(want, 0)

	return f, want
}

func TestEncode_MatchesDocumentedLayoutByteForByte(t *testing.T) {
	f, want := fixture()
	assert.Equal(t, want, cacheformat.Encode(f))
}

func TestDecode_RoundTripsThroughEncode(t *testing.T) {
	f, _ := fixture()
	got, err := cacheformat.Decode(cacheformat.Encode(f))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecode_EmptyFileIsIntegrityError(t *testing.T) {
	_, err := cacheformat.Decode(nil)
	require.Error(t, err)
}

func TestDecode_WrongVersionIsIntegrityError(t *testing.T) {
	_, err := cacheformat.Decode([]byte{7, 'a', 0})
	require.Error(t, err)
}

func TestDecode_TruncatedFileIsIntegrityError(t *testing.T) {
	_, err := cacheformat.Decode([]byte{3, 'a', 'b'}) // no nul terminator
	require.Error(t, err)
}

func TestDecode_NoEntriesIsValid(t *testing.T) {
	got, err := cacheformat.Decode(cacheformat.Encode(cacheformat.File{IndexHash: "deadbeef"}))
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", got.IndexHash)
	assert.Empty(t, got.Entries)
}
