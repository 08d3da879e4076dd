// Package gitauth resolves go-git credentials for the git dependency
// and git-protocol index clones internal/gitmirror performs, adapted
// from the teacher's internal/auth provider set. Unlike the teacher's
// multi-provider, URL-pattern-matched chain (built for a
// general-purpose git wrapper juggling many remotes with different
// credentials), this tool only ever has one credential source
// configured per run — so resolution collapses to "pick SSH or HTTPS
// by URL scheme, fall back to anonymous" rather than a fallback chain.
package gitauth

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// Config holds the credential material resolved from the environment.
// A zero Config resolves every URL to anonymous access, which is
// correct for the common case of public crates.io-index and public
// git dependencies.
type Config struct {
	// SSHKeyPath, if set, is used for ssh:// and git@host: remotes.
	SSHKeyPath       string
	SSHKeyPassphrase string

	// HTTPSToken, if set, authenticates https:// remotes. Most git
	// hosts (GitHub, GitLab) accept the token as the HTTP password
	// with an arbitrary non-empty username.
	HTTPSToken string
}

// FromEnv reads the git credential environment variables this tool
// recognizes. These are deliberately separate from the four backend
// credential env vars spec §6 names: they authenticate the upstream
// git remote, not the object-storage backend.
func FromEnv() Config {
	return Config{
		SSHKeyPath:       os.Getenv("CARGO_FETCHER_GIT_SSH_KEY"),
		SSHKeyPassphrase: os.Getenv("CARGO_FETCHER_GIT_SSH_PASSPHRASE"),
		HTTPSToken:       os.Getenv("CARGO_FETCHER_GIT_TOKEN"),
	}
}

// Resolve returns the transport.AuthMethod to use for repoURL, or nil
// for anonymous access. A nil, nil return is not an error: it is the
// expected outcome for any public repository when no credentials are
// configured.
func (c Config) Resolve(repoURL string) (transport.AuthMethod, error) {
	scheme, err := urlScheme(repoURL)
	if err != nil {
		return nil, fmt.Errorf("gitauth: %w", err)
	}

	switch {
	case isSSHScheme(scheme) && c.SSHKeyPath != "":
		return c.sshKeyAuth()
	case scheme == "https" && c.HTTPSToken != "":
		return &http.BasicAuth{Username: "cargo-fetcher", Password: c.HTTPSToken}, nil
	default:
		return nil, nil
	}
}

// ResolveDefault returns the transport.AuthMethod to use when no
// single repository URL is available up front — internal/ops shares
// one gitmirror.Options across every git dependency in a run, so
// there is no per-URL scheme to dispatch on. It prefers the SSH key
// when both are configured, since an SSH key only ever applies to
// SSH remotes while an HTTPS token is the narrower, more common case
// of the two to leave unset.
func (c Config) ResolveDefault() (transport.AuthMethod, error) {
	switch {
	case c.SSHKeyPath != "":
		return c.sshKeyAuth()
	case c.HTTPSToken != "":
		return &http.BasicAuth{Username: "cargo-fetcher", Password: c.HTTPSToken}, nil
	default:
		return nil, nil
	}
}

func (c Config) sshKeyAuth() (transport.AuthMethod, error) {
	if _, err := os.Stat(c.SSHKeyPath); err != nil {
		return nil, fmt.Errorf("gitauth: reading CARGO_FETCHER_GIT_SSH_KEY: %w", err)
	}
	auth, err := ssh.NewPublicKeysFromFile("git", c.SSHKeyPath, c.SSHKeyPassphrase)
	if err != nil {
		return nil, fmt.Errorf("gitauth: loading SSH key: %w", err)
	}
	return auth, nil
}

// urlScheme extracts the scheme from repoURL, special-casing the
// scp-like "git@host:path" syntax git itself accepts (which net/url
// does not parse as having a scheme).
func urlScheme(repoURL string) (string, error) {
	if strings.HasPrefix(repoURL, "git@") && !strings.Contains(repoURL, "://") {
		return "ssh", nil
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", fmt.Errorf("invalid repository url %q: %w", repoURL, err)
	}
	return u.Scheme, nil
}

func isSSHScheme(scheme string) bool {
	return scheme == "ssh" || scheme == "git+ssh"
}
