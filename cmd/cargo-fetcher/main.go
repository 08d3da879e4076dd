// Command cargo-fetcher mirrors a Cargo.lock's registry and git
// dependencies into an object-storage backend, and restores them onto
// local disk in Cargo's own on-disk layout, per spec §6. Argument
// parsing (pflag), process-wide logging setup (slog), and credential
// file discovery are the external collaborators spec §1 treats as
// out of scope for the core; this file is their one integration point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	_ "github.com/catalyst-forge/cargo-fetcher/internal/backend/azurebackend"
	_ "github.com/catalyst-forge/cargo-fetcher/internal/backend/fsbackend"
	_ "github.com/catalyst-forge/cargo-fetcher/internal/backend/gcsbackend"
	_ "github.com/catalyst-forge/cargo-fetcher/internal/backend/s3backend"
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `cargo-fetcher - cargo dependency mirror and restore tool

Usage:
  cargo-fetcher <command> [options]

Commands:
  mirror   Upload a Cargo.lock's dependencies to the backend
  sync     Restore a Cargo.lock's dependencies from the backend onto disk

Global Options:
  -V, --version   Show version and exit

For command-specific options: cargo-fetcher <command> --help
`)
	}

	showVersion := flag.BoolP("version", "V", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cargo-fetcher version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command, cmdArgs := args[0], args[1:]
	var exitCode int
	switch command {
	case "mirror":
		exitCode = runMirror(ctx, cmdArgs)
	case "sync":
		exitCode = runSync(ctx, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		exitCode = 1
	}
	os.Exit(exitCode)
}
