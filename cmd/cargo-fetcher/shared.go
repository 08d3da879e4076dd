package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	flag "github.com/spf13/pflag"

	"github.com/catalyst-forge/cargo-fetcher/internal/config"
)

// sharedFlags holds the flags common to both mirror and sync, per
// spec §6.
type sharedFlags struct {
	lockFile     *string
	backendURL   *string
	timeout      *int
	includeIndex *bool
	dryRun       *bool
	jsonOutput   *bool
	verbose      *int
}

func registerSharedFlags(fs *flag.FlagSet) *sharedFlags {
	return &sharedFlags{
		lockFile:     fs.String("lock-file", config.DefaultLockFile, "Path to Cargo.lock"),
		backendURL:   fs.String("url", "", "Backend URL (file://, s3://, gs://, blob://)"),
		timeout:      fs.Int("timeout", int(config.DefaultTimeout.Seconds()), "Per-request timeout in seconds"),
		includeIndex: fs.Bool("include-index", false, "Also mirror/sync the registry index snapshot"),
		dryRun:       fs.Bool("dry-run", false, "Compute the artifact set and log what would happen, without network or disk I/O"),
		jsonOutput:   fs.Bool("json", false, "Emit the run summary as JSON"),
		verbose:      fs.CountP("verbose", "v", "Increase log verbosity (-v for debug)"),
	}
}

// resolveConfig builds a validated config.Config from parsed shared
// flags, applying CARGO_FETCHER_TIMEOUT / CARGO_FETCHER_CRATES_IO_PROTOCOL
// overrides for whichever flags the user left at their default.
func (f *sharedFlags) resolveConfig() (*config.Config, error) {
	cfg := &config.Config{
		LockFile:     *f.lockFile,
		BackendURL:   *f.backendURL,
		Timeout:      time.Duration(*f.timeout) * time.Second,
		IncludeIndex: *f.includeIndex,
	}
	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	// Resolve lets CARGO_FETCHER_TIMEOUT replace Timeout unconditionally;
	// a --timeout the user moved off its default wins over the env var.
	if *f.timeout > 0 && *f.timeout != int(config.DefaultTimeout.Seconds()) {
		cfg.Timeout = time.Duration(*f.timeout) * time.Second
	}
	return cfg, nil
}

func newLogger(jsonOutput bool, verbose int) *slog.Logger {
	level := slog.LevelInfo
	if verbose >= 1 {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput || !isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// newProgressBar returns a progress bar over total artifacts, or nil
// when progress display would corrupt the output (JSON mode, or
// stderr is not a terminal) — the same "quiet when machine-readable"
// rule the teacher CLI applies to its own progress bars.
func newProgressBar(total int, description string, jsonOutput bool) *progressbar.ProgressBar {
	if jsonOutput || total == 0 || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
}
