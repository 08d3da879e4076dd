// Package config resolves the tool's run configuration from CLI flags
// and environment variables, per spec §6. It deliberately does not
// discover or parse `.cargo/config.toml`; that is named out of scope
// in spec §1. Following the teacher's git.Options idiom, the zero
// value is filled in by applyDefaults and checked by Validate before
// use.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// DefaultLockFile is used when --lock-file is not given.
const DefaultLockFile = "Cargo.lock"

// DefaultTimeout is the per-request timeout used when neither
// --timeout nor CARGO_FETCHER_TIMEOUT is set.
const DefaultTimeout = 30 * time.Second

// DefaultMaxStale is the mirror staleness window used when --max-stale
// is not given.
const DefaultMaxStale = 24 * time.Hour

// Config holds the fully-resolved settings shared by the mirror and
// sync subcommands.
type Config struct {
	// LockFile is the path to the Cargo.lock to read.
	LockFile string

	// BackendURL selects and configures the storage backend, per
	// backend.New's scheme dispatch (file://, s3://, gs://, blob://).
	BackendURL string

	// Timeout bounds each upstream HTTP request mirror makes (crate
	// tarballs and sparse-index files). Backend requests, git transfers
	// and sync are not bounded by it.
	Timeout time.Duration

	// IncludeIndex mirrors or restores the registry index snapshot in
	// addition to crate/git artifacts.
	IncludeIndex bool

	// MaxStale is the mirror-only staleness window for registry index
	// snapshots; unused by sync.
	MaxStale time.Duration

	// CratesIOProtocol holds the validated ("git" or "sparse") value of
	// CARGO_FETCHER_CRATES_IO_PROTOCOL, or "" when unset. Protocol
	// detection (registry.DetectProtocol) does not consult it: crates.io's
	// protocol follows the index URL recorded in the lockfile.
	CratesIOProtocol string
}

// Validate reports whether c is usable, per the teacher's
// Options.Validate convention: required fields present, no negative
// durations.
func (c *Config) Validate() error {
	if c.LockFile == "" {
		return ferrors.New(ferrors.KindConfig, "lock file path is required")
	}
	if c.BackendURL == "" {
		return ferrors.New(ferrors.KindConfig, "backend url is required")
	}
	if c.Timeout < 0 {
		return ferrors.New(ferrors.KindConfig, "timeout cannot be negative")
	}
	if c.MaxStale < 0 {
		return ferrors.New(ferrors.KindConfig, "max-stale cannot be negative")
	}
	if c.CratesIOProtocol != "" && c.CratesIOProtocol != "git" && c.CratesIOProtocol != "sparse" {
		return ferrors.New(ferrors.KindConfig, "CARGO_FETCHER_CRATES_IO_PROTOCOL must be \"git\" or \"sparse\"")
	}
	return nil
}

// applyDefaults fills unset fields, following the teacher's
// Options.applyDefaults convention. It runs after flags are parsed so
// an explicit flag always wins over a default; environment variables
// are folded in by FromEnv before defaults are applied.
func (c *Config) applyDefaults() {
	if c.LockFile == "" {
		c.LockFile = DefaultLockFile
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxStale <= 0 {
		c.MaxStale = DefaultMaxStale
	}
}

// FromEnv overlays environment variable overrides onto c, for the
// settings spec §6 names an env var for (CARGO_FETCHER_TIMEOUT and
// CARGO_FETCHER_CRATES_IO_PROTOCOL). It does not touch the backend
// credential env vars (GOOGLE_APPLICATION_CREDENTIALS,
// AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY, STORAGE_ACCOUNT/
// STORAGE_MASTER_KEY) or CARGO_FETCHER_<REGISTRY>_DL: those are read
// directly by the backend constructors and internal/lockfile
// respectively, which already own the corresponding URL/credential
// shape.
func (c *Config) FromEnv() error {
	if v := os.Getenv("CARGO_FETCHER_TIMEOUT"); v != "" {
		d, err := parseSecondsOrDuration(v)
		if err != nil {
			return ferrors.Wrap(ferrors.KindConfig, err, "parsing CARGO_FETCHER_TIMEOUT")
		}
		c.Timeout = d
	}
	if v := os.Getenv("CARGO_FETCHER_CRATES_IO_PROTOCOL"); v != "" {
		c.CratesIOProtocol = v
	}
	return nil
}

// Resolve applies environment overrides then defaults, and validates
// the result. Flags must already be set on c before calling Resolve.
func (c *Config) Resolve() error {
	if err := c.FromEnv(); err != nil {
		return err
	}
	c.applyDefaults()
	return c.Validate()
}

// parseSecondsOrDuration accepts either a bare integer (seconds, per
// spec §6's "--timeout <seconds>") or a Go duration string (e.g.
// "30s", "2m"), since CARGO_FETCHER_TIMEOUT's own format is not pinned
// down by spec §6 beyond "per-request timeout".
func parseSecondsOrDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}
