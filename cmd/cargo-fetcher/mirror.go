package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/gitauth"
	"github.com/catalyst-forge/cargo-fetcher/internal/gitmirror"
	"github.com/catalyst-forge/cargo-fetcher/internal/lockfile"
	"github.com/catalyst-forge/cargo-fetcher/internal/ops"
	"github.com/catalyst-forge/cargo-fetcher/internal/registry"
)

// runMirror implements the 'mirror' subcommand: upload every artifact
// a Cargo.lock resolves to that is not already present in the backend.
func runMirror(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("mirror", flag.ContinueOnError)
	shared := registerSharedFlags(fs)
	maxStaleFlag := fs.String("max-stale", "24h", "Skip refreshing a registry index snapshot younger than this")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cargo-fetcher mirror [options]

Uploads every crate and git dependency a Cargo.lock resolves to into
the configured backend, skipping artifacts already present there.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := shared.resolveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher mirror: %v\n", err)
		return 1
	}

	maxStale, err := registry.ParseMaxStale(*maxStaleFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher mirror: parsing --max-stale: %v\n", err)
		return 1
	}

	logger := newLogger(*shared.jsonOutput, *shared.verbose)

	data, err := os.ReadFile(cfg.LockFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher mirror: reading %s: %v\n", cfg.LockFile, err)
		return 1
	}
	result, err := lockfile.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher mirror: parsing %s: %v\n", cfg.LockFile, err)
		return 1
	}

	total := len(result.Registries) + len(result.Gits)
	logger.Info("mirror.resolved", "crates", len(result.Registries), "gits", len(result.Gits))

	if *shared.dryRun {
		printDryRun(logger, result)
		return 0
	}

	b, err := backend.New(cfg.BackendURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher mirror: %v\n", err)
		return 1
	}

	gitAuth, err := gitauth.FromEnv().ResolveDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher mirror: resolving git credentials: %v\n", err)
		return 1
	}

	bar := newProgressBar(total, "mirroring", *shared.jsonOutput)
	opsCfg := ops.Config{
		Backend:      b,
		KeyPrefix:    "cache",
		HTTPClient:   &http.Client{Timeout: cfg.Timeout},
		MaxStale:     maxStale,
		IncludeIndex: cfg.IncludeIndex,
		GitOptions:   gitmirror.Options{Auth: gitAuth},
		OnArtifactDone: func(artifact string, err error) {
			if bar != nil {
				_ = bar.Add(1)
			}
			if err != nil {
				logger.Error("mirror.artifact.failed", "artifact", artifact, "error", err)
			} else {
				logger.Debug("mirror.artifact.done", "artifact", artifact)
			}
		},
	}

	summary, err := ops.Mirror(ctx, opsCfg, result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher mirror: %v\n", err)
		return 1
	}

	return reportSummary(logger, "mirror", summary, *shared.jsonOutput)
}
