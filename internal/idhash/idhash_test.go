package idhash_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/catalyst-forge/cargo-fetcher/internal/idhash"
)

func TestRegistryIDStable(t *testing.T) {
	id1 := idhash.RegistryID("https://github.com/rust-lang/crates.io-index")
	id2 := idhash.RegistryID("https://github.com/rust-lang/crates.io-index")
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 16)

	other := idhash.RegistryID("https://github.com/rust-lang/crates.io-index-other")
	assert.NotEqual(t, id1, other)
}

func TestCanonicalizeRepoURL_GitHubSuffixFolds(t *testing.T) {
	withSuffix := idhash.CanonicalizeRepoURL("https://github.com/foo/bar.git")
	withoutSuffix := idhash.CanonicalizeRepoURL("https://github.com/foo/bar")
	assert.Equal(t, withoutSuffix, withSuffix)
}

func TestCanonicalizeRepoURL_NonGitHubSuffixDoesNotFold(t *testing.T) {
	withSuffix := idhash.CanonicalizeRepoURL("https://gitlab.com/foo/bar.git")
	withoutSuffix := idhash.CanonicalizeRepoURL("https://gitlab.com/foo/bar")
	assert.NotEqual(t, withoutSuffix, withSuffix)
}

func TestCanonicalizeRepoURL_LowercasesHostAndStripsUser(t *testing.T) {
	got := idhash.CanonicalizeRepoURL("https://Alice@GitHub.com/foo/bar")
	assert.Equal(t, "https://github.com/foo/bar", got)
}

func TestRepoIdent_GitHubDotGitFolds(t *testing.T) {
	a := idhash.RepoIdent("https://github.com/foo/bar.git")
	b := idhash.RepoIdent("https://github.com/foo/bar")
	assert.Equal(t, a, b)
}

func TestRepoIdent_GitLabDotGitDoesNotFold(t *testing.T) {
	a := idhash.RepoIdent("https://gitlab.com/foo/bar.git")
	b := idhash.RepoIdent("https://gitlab.com/foo/bar")
	assert.NotEqual(t, a, b)
}
