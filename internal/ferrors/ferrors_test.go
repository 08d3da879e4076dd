package ferrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

func TestWrapNil(t *testing.T) {
	require.NoError(t, ferrors.Wrap(ferrors.KindTransport, nil, "whatever"))
}

func TestWrapPreservesUnwrap(t *testing.T) {
	sentinel := errors.New("boom")
	wrapped := ferrors.Wrap(ferrors.KindLocalIO, sentinel, "writing file")

	assert.True(t, errors.Is(wrapped, sentinel))
	assert.Equal(t, "writing file: boom", wrapped.Error())
}

func TestKindOf(t *testing.T) {
	wrapped := ferrors.Wrapf(ferrors.KindIntegrity, errors.New("mismatch"), "crate %s", "serde-1.0.0")

	kind, ok := ferrors.KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, ferrors.KindIntegrity, kind)

	_, ok = ferrors.KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	transportErr := ferrors.New(ferrors.KindTransport, "connection reset")
	integrityErr := ferrors.New(ferrors.KindIntegrity, "bad checksum")

	assert.True(t, ferrors.IsRetryable(transportErr))
	assert.False(t, ferrors.IsRetryable(integrityErr))
	assert.False(t, ferrors.IsRetryable(errors.New("plain")))
}
