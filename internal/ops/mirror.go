package ops

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/catalyst-forge/cargo-fetcher/internal/crate"
	"github.com/catalyst-forge/cargo-fetcher/internal/gitmirror"
	"github.com/catalyst-forge/cargo-fetcher/internal/lockfile"
	"github.com/catalyst-forge/cargo-fetcher/internal/registry"
	"github.com/catalyst-forge/cargo-fetcher/internal/sched"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

// Mirror reads every upstream artifact resolved from result that is
// not already present in the backend and uploads it, per spec §4.8's
// mirror flow: resolve (done by the caller) → snapshot-list backend →
// dispatch missing artifacts into the two concurrency classes → drain
// → summary.
func Mirror(ctx context.Context, cfg Config, result *lockfile.Result) (Summary, error) {
	cfg.applyDefaults()

	existing, err := listExisting(ctx, cfg)
	if err != nil {
		return Summary{}, err
	}

	d := newDispatcher(ctx, cfg)

	if cfg.IncludeIndex {
		for _, reg := range distinctRegistries(result.Registries) {
			names := crateNamesFor(result.Registries, reg.RegistryID)
			dispatchIndexMirror(d, cfg, reg, names)
		}
	}

	for _, pkg := range result.Registries {
		pkg := pkg
		key := crate.BackendKey(cfg.KeyPrefix, pkg)
		if existing[key] {
			continue
		}
		d.submit(sched.Registry, pkg.CrateFileName(), func(ctx context.Context) error {
			return crate.Mirror(ctx, cfg.HTTPClient, cfg.Backend, pkg, cfg.KeyPrefix)
		})
	}

	for _, pkg := range result.Gits {
		dispatchGitMirror(d, cfg, pkg, existing)
	}

	return d.wait(), nil
}

// listExisting populates the in-memory "already present" set with a
// single list(prefix) call, per spec §4.5's explicit O(keys)
// existence-short-circuiting requirement (avoiding a HEAD-per-crate
// storm).
func listExisting(ctx context.Context, cfg Config) (map[string]bool, error) {
	keys, err := cfg.Backend.List(ctx, cfg.KeyPrefix)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set, nil
}

func distinctRegistries(pkgs []source.Package) []source.RegistryInfo {
	seen := map[string]bool{}
	var out []source.RegistryInfo
	for _, pkg := range pkgs {
		reg := pkg.Source.Registry
		if seen[reg.RegistryID] {
			continue
		}
		seen[reg.RegistryID] = true
		out = append(out, reg)
	}
	return out
}

func crateNamesFor(pkgs []source.Package, registryID string) []string {
	seen := map[string]bool{}
	var names []string
	for _, pkg := range pkgs {
		if pkg.Source.Registry.RegistryID != registryID || seen[pkg.Name] {
			continue
		}
		seen[pkg.Name] = true
		names = append(names, pkg.Name)
	}
	return names
}

func dispatchIndexMirror(d *dispatcher, cfg Config, reg source.RegistryInfo, crateNames []string) {
	d.submit(sched.Registry, "index:"+reg.RegistryID, func(ctx context.Context) error {
		dir, cleanup, err := newScratchDir()
		if err != nil {
			return err
		}
		defer cleanup()

		if registry.DetectProtocol(reg.IndexURL) == registry.SparseProtocol {
			return registry.MirrorSparseIndex(ctx, cfg.HTTPClient, cfg.Backend, reg, cfg.KeyPrefix, crateNames, cfg.MaxStale, dir)
		}
		return registry.MirrorGitIndex(ctx, cfg.Backend, reg, cfg.KeyPrefix, cfg.MaxStale, dir, cfg.GitOptions)
	})
}

// dispatchGitMirror mirrors a single git dependency's bare and
// checkout snapshots. Per spec §4.6, both snapshots are independent
// once the revision is pinned; they are fetched concurrently and
// joined with errgroup before the pair is reported to the
// gather-then-report dispatcher as one artifact — a real intra-task
// barrier, not a cross-task cancellation.
func dispatchGitMirror(d *dispatcher, cfg Config, pkg source.Package, existing map[string]bool) {
	repoIdent := pkg.Source.Git.RepoIdent()
	revision := pkg.Source.Git.Revision
	bareKey := gitmirror.BareSnapshotKey(cfg.KeyPrefix, repoIdent, revision)
	checkoutKey := gitmirror.CheckoutSnapshotKey(cfg.KeyPrefix, repoIdent, revision)

	needBare := !existing[bareKey]
	needCheckout := !existing[checkoutKey]
	if !needBare && !needCheckout {
		return
	}

	d.submit(sched.Git, pkg.Source.Git.RepoURL+"@"+revision, func(taskCtx context.Context) error {
		g, gctx := errgroup.WithContext(taskCtx)
		if needBare {
			g.Go(func() error {
				dir, cleanup, err := newScratchDir()
				if err != nil {
					return err
				}
				defer cleanup()
				if err := gitmirror.CloneBareAt(gctx, pkg.Source.Git.RepoURL, revision, dir, cfg.GitOptions); err != nil {
					return err
				}
				data, err := gitmirror.Pack(dir)
				if err != nil {
					return err
				}
				return cfg.Backend.Upload(gctx, bareKey, data)
			})
		}
		if needCheckout {
			g.Go(func() error {
				dir, cleanup, err := newScratchDir()
				if err != nil {
					return err
				}
				defer cleanup()
				if err := gitmirror.CheckoutWorktreeAt(gctx, pkg.Source.Git.RepoURL, revision, dir, cfg.GitOptions); err != nil {
					return err
				}
				data, err := gitmirror.Pack(dir)
				if err != nil {
					return err
				}
				return cfg.Backend.Upload(gctx, checkoutKey, data)
			})
		}
		return g.Wait()
	})
}
