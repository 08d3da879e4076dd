// Package gitmirror produces and restores the two git snapshots spec
// §4.6 requires per dependency: a bare-clone object database and a
// checked-out working tree with submodules materialised in place.
// Built directly on the teacher's git package idiom: an Options struct
// with applyDefaults, plain go-git/v5 clone-and-checkout
// calls, and context-aware operations throughout — generalized from
// the teacher's general-purpose repository wrapper to this tool's
// narrower mirror/restore need, and working against plain OS
// directories (via go-git's Plain* entry points) rather than the
// teacher's billy/fsbridge indirection, since every snapshot here is
// produced once, tarred, and discarded.
package gitmirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// BareSnapshotKey is the backend object key for a git bare-clone
// snapshot, per spec §3: "<prefix>/git/db/<repo-ident>-<revision>.tar.zst".
func BareSnapshotKey(keyPrefix, repoIdent, revision string) string {
	return strings.TrimSuffix(keyPrefix, "/") + "/git/db/" + repoIdent + "-" + revision + ".tar.zst"
}

// CheckoutSnapshotKey is the backend object key for a git working-tree
// snapshot, per spec §3: "<prefix>/git/co/<repo-ident>-<revision>.tar.zst".
func CheckoutSnapshotKey(keyPrefix, repoIdent, revision string) string {
	return strings.TrimSuffix(keyPrefix, "/") + "/git/co/" + repoIdent + "-" + revision + ".tar.zst"
}

// DefaultTimeout is applied to clone/fetch operations when Options
// does not override it.
const DefaultTimeout = 5 * time.Minute

// pinnedRefName is the local ref a pinned-commit fetch is stored
// under when the resolved revision is not reachable from any branch
// tip the default clone already fetched.
const pinnedRefName = "refs/cargo-fetcher/pinned"

// Options configures clone/fetch/checkout behavior.
type Options struct {
	// Auth resolves credentials for the remote; nil means anonymous.
	Auth transport.AuthMethod

	// HTTPClient is reserved for future transport tuning; go-git's
	// http transport is configured process-wide, so this is currently
	// informational only.
	HTTPClient *http.Client

	// Timeout bounds a single clone/fetch call.
	Timeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
}

// CloneBareAt clones repoURL as a bare repository into dir and ensures
// revision is present, fetching it directly by commit id if the
// default clone didn't already reach it (e.g. it is not the tip of any
// branch or tag).
func CloneBareAt(ctx context.Context, repoURL, revision, dir string, opts Options) error {
	opts.applyDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	repo, err := git.PlainCloneContext(ctx, dir, true, &git.CloneOptions{
		URL:  repoURL,
		Auth: opts.Auth,
		Tags: git.AllTags,
	})
	if err != nil {
		return ferrors.Wrapf(ferrors.KindTransport, err, "cloning bare repository %s", repoURL)
	}

	return ensureRevision(ctx, repo, revision, opts)
}

// ensureRevision fetches revision directly by commit id when it is
// not already reachable, storing it under pinnedRefName so it survives
// as a real ref inside the packed object database.
func ensureRevision(ctx context.Context, repo *git.Repository, revision string, opts Options) error {
	hash := plumbing.NewHash(revision)
	if _, err := repo.CommitObject(hash); err == nil {
		return nil
	}

	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "locating origin remote")
	}

	refSpec := config.RefSpec(fmt.Sprintf("%s:%s", revision, pinnedRefName))
	err = remote.FetchContext(ctx, &git.FetchOptions{
		Auth:     opts.Auth,
		RefSpecs: []config.RefSpec{refSpec},
	})
	if err != nil && !isAlreadyUpToDate(err) {
		return ferrors.Wrapf(ferrors.KindTransport, err, "fetching pinned revision %s", revision)
	}

	if _, err := repo.CommitObject(hash); err != nil {
		return ferrors.Wrapf(ferrors.KindNotFound, err, "revision %s not reachable from %s", revision, git.DefaultRemoteName)
	}
	return nil
}

// CheckoutWorktreeAt clones repoURL as a non-bare repository into dir,
// checks out revision, and recursively materialises submodules so the
// resulting tree matches what a normal `git clone && git checkout &&
// git submodule update --init --recursive` produces. Recursion stops at
// go-git's depth limit (git.DefaultSubmoduleRecursionDepth); no set of
// visited repositories or revisions is kept, so a submodule cycle is
// cloned again at each level until that depth is reached.
func CheckoutWorktreeAt(ctx context.Context, repoURL, revision, dir string, opts Options) error {
	opts.applyDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:  repoURL,
		Auth: opts.Auth,
		Tags: git.AllTags,
	})
	if err != nil {
		return ferrors.Wrapf(ferrors.KindTransport, err, "cloning %s", repoURL)
	}

	if err := ensureRevision(ctx, repo, revision, opts); err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "opening worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(revision)}); err != nil {
		return ferrors.Wrapf(ferrors.KindLocalIO, err, "checking out %s", revision)
	}

	submodules, err := wt.Submodules()
	if err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "reading submodules")
	}
	if err := submodules.Update(&git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		Auth:              opts.Auth,
	}); err != nil {
		return ferrors.Wrap(ferrors.KindTransport, err, "updating submodules")
	}

	return nil
}

// CloneIndexWorkingTree clones repoURL's default branch as a non-bare
// repository into dir and returns its HEAD commit hex. Used for
// git-protocol registry indices, which (unlike dependency git sources)
// have no pinned revision to check out — the mirror always wants
// whatever the remote's default branch currently points at.
func CloneIndexWorkingTree(ctx context.Context, repoURL, dir string, opts Options) (string, error) {
	opts.applyDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   repoURL,
		Auth:  opts.Auth,
		Depth: 1,
	})
	if err != nil {
		return "", ferrors.Wrapf(ferrors.KindTransport, err, "cloning index %s", repoURL)
	}

	head, err := repo.Head()
	if err != nil {
		return "", ferrors.Wrap(ferrors.KindLocalIO, err, "reading index HEAD")
	}
	return head.Hash().String(), nil
}

func isAlreadyUpToDate(err error) bool {
	return errors.Is(err, git.NoErrAlreadyUpToDate)
}

// CleanupDir removes a scratch clone directory, best-effort.
func CleanupDir(dir string) {
	_ = os.RemoveAll(dir)
}
