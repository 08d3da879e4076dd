package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/layout"
	"github.com/catalyst-forge/cargo-fetcher/internal/lockfile"
	"github.com/catalyst-forge/cargo-fetcher/internal/ops"
)

// runSync implements the 'sync' subcommand: restore every artifact a
// Cargo.lock resolves to from the backend onto local disk, in Cargo's
// own on-disk layout.
func runSync(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	shared := registerSharedFlags(fs)
	home := fs.String("home", defaultCargoHome(), "Cargo home directory to restore artifacts into")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: cargo-fetcher sync [options]

Restores every crate and git dependency a Cargo.lock resolves to from
the configured backend onto local disk, reproducing Cargo's own
on-disk layout.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := shared.resolveConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher sync: %v\n", err)
		return 1
	}

	logger := newLogger(*shared.jsonOutput, *shared.verbose)

	data, err := os.ReadFile(cfg.LockFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher sync: reading %s: %v\n", cfg.LockFile, err)
		return 1
	}
	result, err := lockfile.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher sync: parsing %s: %v\n", cfg.LockFile, err)
		return 1
	}

	total := len(result.Registries) + len(result.Gits)
	logger.Info("sync.resolved", "crates", len(result.Registries), "gits", len(result.Gits))

	if *shared.dryRun {
		printDryRun(logger, result)
		return 0
	}

	b, err := backend.New(cfg.BackendURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher sync: %v\n", err)
		return 1
	}

	bar := newProgressBar(total, "syncing", *shared.jsonOutput)
	opsCfg := ops.Config{
		Backend:      b,
		KeyPrefix:    "cache",
		Home:         layout.New(*home),
		IncludeIndex: cfg.IncludeIndex,
		OnArtifactDone: func(artifact string, err error) {
			if bar != nil {
				_ = bar.Add(1)
			}
			if err != nil {
				logger.Error("sync.artifact.failed", "artifact", artifact, "error", err)
			} else {
				logger.Debug("sync.artifact.done", "artifact", artifact)
			}
		},
	}

	summary, err := ops.Sync(ctx, opsCfg, result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cargo-fetcher sync: %v\n", err)
		return 1
	}

	return reportSummary(logger, "sync", summary, *shared.jsonOutput)
}

// defaultCargoHome mirrors cargo's own default: $CARGO_HOME, falling
// back to ~/.cargo.
func defaultCargoHome() string {
	if v := os.Getenv("CARGO_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cargo"
	}
	return home + "/.cargo"
}
