package gitauth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalyst-forge/cargo-fetcher/internal/gitauth"
)

func TestResolve_AnonymousByDefault(t *testing.T) {
	c := gitauth.Config{}
	auth, err := c.Resolve("https://github.com/rust-lang/crates.io-index")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestResolve_HTTPSTokenAppliesOnlyToHTTPS(t *testing.T) {
	c := gitauth.Config{HTTPSToken: "s3cr3t"}

	auth, err := c.Resolve("https://github.com/foo/bar")
	require.NoError(t, err)
	require.NotNil(t, auth)

	auth, err = c.Resolve("git@github.com:foo/bar.git")
	require.NoError(t, err)
	assert.Nil(t, auth, "HTTPS token should not apply to an SSH remote")
}

func TestResolve_SSHSchemeWithoutKeyConfiguredIsAnonymous(t *testing.T) {
	c := gitauth.Config{}
	auth, err := c.Resolve("git@github.com:foo/bar.git")
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestResolve_MissingSSHKeyFileErrors(t *testing.T) {
	c := gitauth.Config{SSHKeyPath: "/nonexistent/id_ed25519"}
	_, err := c.Resolve("ssh://git@github.com/foo/bar")
	assert.Error(t, err)
}

func TestResolveDefault_AnonymousWhenUnconfigured(t *testing.T) {
	c := gitauth.Config{}
	auth, err := c.ResolveDefault()
	require.NoError(t, err)
	assert.Nil(t, auth)
}

func TestResolveDefault_PrefersSSHKeyOverHTTPSToken(t *testing.T) {
	c := gitauth.Config{SSHKeyPath: "/nonexistent/id_ed25519", HTTPSToken: "s3cr3t"}
	_, err := c.ResolveDefault()
	assert.Error(t, err, "should attempt the SSH key (and fail on the missing file) rather than silently falling back to the token")
}

func TestResolveDefault_UsesHTTPSTokenWhenNoKeyConfigured(t *testing.T) {
	c := gitauth.Config{HTTPSToken: "s3cr3t"}
	auth, err := c.ResolveDefault()
	require.NoError(t, err)
	assert.NotNil(t, auth)
}

func TestFromEnv_ReadsAllThreeVars(t *testing.T) {
	t.Setenv("CARGO_FETCHER_GIT_SSH_KEY", "/tmp/key")
	t.Setenv("CARGO_FETCHER_GIT_SSH_PASSPHRASE", "hunter2")
	t.Setenv("CARGO_FETCHER_GIT_TOKEN", "ghp_abc")

	c := gitauth.FromEnv()
	assert.Equal(t, "/tmp/key", c.SSHKeyPath)
	assert.Equal(t, "hunter2", c.SSHKeyPassphrase)
	assert.Equal(t, "ghp_abc", c.HTTPSToken)
}
