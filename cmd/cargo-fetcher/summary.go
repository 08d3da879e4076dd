package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/catalyst-forge/cargo-fetcher/internal/lockfile"
	"github.com/catalyst-forge/cargo-fetcher/internal/ops"
)

// printDryRun logs the artifact set a mirror/sync run would act on
// without performing any network or disk I/O, per the --dry-run flag.
func printDryRun(logger *slog.Logger, result *lockfile.Result) {
	for _, pkg := range result.Registries {
		logger.Info("dry-run.artifact", "kind", "registry", "name", pkg.Name, "version", pkg.Version, "registry_id", pkg.Source.Registry.RegistryID)
	}
	for _, pkg := range result.Gits {
		logger.Info("dry-run.artifact", "kind", "git", "repo", pkg.Source.Git.RepoURL, "revision", pkg.Source.Git.Revision)
	}
	logger.Info("dry-run.summary", "crates", len(result.Registries), "gits", len(result.Gits))
}

// summaryJSON is the --json rendering of a run's outcome.
type summaryJSON struct {
	OK       bool          `json:"ok"`
	Failures []failureJSON `json:"failures,omitempty"`
}

type failureJSON struct {
	Artifact string `json:"artifact"`
	Error    string `json:"error"`
}

// reportSummary logs (or prints as JSON) the final outcome of a
// mirror/sync run and returns the process exit code: 0 on full
// success, 1 if any per-artifact failure was recorded, per spec §6.
func reportSummary(logger *slog.Logger, op string, summary ops.Summary, jsonOutput bool) int {
	if jsonOutput {
		out := summaryJSON{OK: summary.OK()}
		for _, f := range summary.Failures {
			out.Failures = append(out.Failures, failureJSON{Artifact: f.Artifact, Error: f.Err.Error()})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	} else if summary.OK() {
		fmt.Printf("%s: ok\n", op)
	} else {
		for _, f := range summary.Failures {
			logger.Error(op+".failed", "artifact", f.Artifact, "error", f.Err)
		}
		fmt.Printf("%s: %d artifact(s) failed\n", op, len(summary.Failures))
	}

	if !summary.OK() {
		return 1
	}
	return 0
}
