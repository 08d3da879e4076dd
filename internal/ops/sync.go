package ops

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/catalyst-forge/cargo-fetcher/internal/crate"
	"github.com/catalyst-forge/cargo-fetcher/internal/gitmirror"
	"github.com/catalyst-forge/cargo-fetcher/internal/layout"
	"github.com/catalyst-forge/cargo-fetcher/internal/lockfile"
	"github.com/catalyst-forge/cargo-fetcher/internal/registry"
	"github.com/catalyst-forge/cargo-fetcher/internal/sched"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

// Sync downloads every artifact result resolves from the backend and
// lays it out on disk under cfg.Home, per spec §4.8's sync flow:
// dispatch index and crate downloads, and git bare/checkout downloads,
// in parallel; unpack each as it completes; once a registry's index is
// unpacked, synthesise its `.cache` entries.
func Sync(ctx context.Context, cfg Config, result *lockfile.Result) (Summary, error) {
	cfg.applyDefaults()

	d := newDispatcher(ctx, cfg)

	if cfg.IncludeIndex {
		for _, reg := range distinctRegistries(result.Registries) {
			dispatchIndexSync(d, cfg, reg, result.Registries)
		}
	}

	for _, pkg := range result.Registries {
		pkg := pkg
		d.submit(sched.Registry, pkg.CrateFileName(), func(ctx context.Context) error {
			return crate.Sync(ctx, cfg.Backend, pkg, cfg.KeyPrefix, cfg.Home)
		})
	}

	for _, pkg := range result.Gits {
		dispatchGitSync(d, cfg, pkg)
	}

	return d.wait(), nil
}

// dispatchIndexSync fetches and unpacks reg's index snapshot, then
// synthesises .cache entries for every crate the lockfile references
// from it — the one ordering dependency spec §4.8 calls out ("after
// index unpacks complete, emit .cache entries"). Both steps run inside
// the same task closure, so the ordering is structural: the dispatcher
// cannot observe "synthesised" before "unpacked" because the second
// call is simply unreachable until the first returns successfully.
func dispatchIndexSync(d *dispatcher, cfg Config, reg source.RegistryInfo, allRegistryPkgs []source.Package) {
	pkgs := pkgsForRegistry(allRegistryPkgs, reg.RegistryID)
	d.submit(sched.Registry, "index:"+reg.RegistryID, func(ctx context.Context) error {
		if err := registry.SyncIndex(ctx, cfg.Backend, reg, cfg.KeyPrefix, cfg.Home); err != nil {
			return err
		}
		return registry.SynthesizeCache(cfg.Home, reg, pkgs)
	})
}

func pkgsForRegistry(pkgs []source.Package, registryID string) []source.Package {
	var out []source.Package
	for _, pkg := range pkgs {
		if pkg.Source.Registry.RegistryID == registryID {
			out = append(out, pkg)
		}
	}
	return out
}

// dispatchGitSync restores both of a git dependency's snapshots. Per
// spec §4.6, the checkout snapshot is self-contained and does not
// depend on the bare snapshot being present on disk, so the two
// downloads run concurrently and are joined before the pair is
// reported as one artifact.
func dispatchGitSync(d *dispatcher, cfg Config, pkg source.Package) {
	repoIdent := pkg.Source.Git.RepoIdent()
	revision := pkg.Source.Git.Revision

	d.submit(sched.Git, pkg.Source.Git.RepoURL+"@"+revision, func(taskCtx context.Context) error {
		g, gctx := errgroup.WithContext(taskCtx)
		g.Go(func() error { return syncBare(gctx, cfg, repoIdent, revision) })
		g.Go(func() error { return syncCheckout(gctx, cfg, repoIdent, revision) })
		return g.Wait()
	})
}

func syncBare(ctx context.Context, cfg Config, repoIdent, revision string) error {
	key := gitmirror.BareSnapshotKey(cfg.KeyPrefix, repoIdent, revision)
	data, err := cfg.Backend.Fetch(ctx, key)
	if err != nil {
		return err
	}
	return gitmirror.Unpack(data, cfg.Home.GitDBDir(repoIdent))
}

func syncCheckout(ctx context.Context, cfg Config, repoIdent, revision string) error {
	key := gitmirror.CheckoutSnapshotKey(cfg.KeyPrefix, repoIdent, revision)
	data, err := cfg.Backend.Fetch(ctx, key)
	if err != nil {
		return err
	}
	return gitmirror.Unpack(data, cfg.Home.GitCheckoutDir(repoIdent, layout.ShortRevision(revision)))
}
