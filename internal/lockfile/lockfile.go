// Package lockfile parses Cargo.lock and classifies each package into a
// typed source.Source, per spec §4.3. Both the legacy v1 layout (a
// [metadata] checksum map) and the modern v2 layout (inline checksum per
// package) are accepted; unknown TOML fields are ignored, matching spec §6.
package lockfile

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
	"github.com/catalyst-forge/cargo-fetcher/internal/idhash"
	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

// Well-known crates.io index URLs, used to recognise the default
// registry and apply its special-cased download URL template.
const (
	cratesIOGitIndexURL    = "https://github.com/rust-lang/crates.io-index"
	cratesIOSparseIndexURL = "https://index.crates.io/"
	cratesIORegistryName   = "crates-io"

	defaultDownloadTemplate = "{registry-base}/{crate}/{version}/download"
	cratesIODownloadTemplate = "https://static.crates.io/crates/{crate}/{crate}-{version}.crate"
)

// Result is the disjoint pair of artifact sets produced by resolving a
// lockfile, per spec §4.3/§4.8.
type Result struct {
	Registries []source.Package
	Gits       []source.Package
}

// rawLockfile mirrors the subset of Cargo.lock's TOML shape this tool
// cares about. Unknown fields are silently dropped by go-toml.
type rawLockfile struct {
	Version  int               `toml:"version"`
	Package  []rawPackage      `toml:"package"`
	Metadata map[string]string `toml:"metadata"`
}

type rawPackage struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Source   string `toml:"source"`
	Checksum string `toml:"checksum"`
}

// gitFragmentRe extracts the resolved revision from a git source's URL
// fragment, e.g. "...#abcdef0123...".
var gitFragmentRe = regexp.MustCompile(`#([0-9a-fA-F]{40})$`)

// Parse reads a Cargo.lock file's bytes and resolves every package into
// a Registry or Git source.Package. Packages with a "path =" source (no
// `source` field in either lockfile format) are silently skipped as
// local workspace members, per spec §4.3.
func Parse(data []byte) (*Result, error) {
	var raw rawLockfile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfig, err, "parsing lockfile")
	}

	seen := make(map[string]struct{})
	result := &Result{}

	for _, p := range raw.Package {
		if p.Source == "" {
			continue // path dependency / workspace member
		}

		pkg, err := classify(p, raw.Metadata)
		if err != nil {
			return nil, err
		}

		key := pkg.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		switch pkg.Source.Kind {
		case source.Registry:
			result.Registries = append(result.Registries, pkg)
		case source.Git:
			result.Gits = append(result.Gits, pkg)
		}
	}

	return result, nil
}

func classify(p rawPackage, metadata map[string]string) (source.Package, error) {
	switch {
	case strings.HasPrefix(p.Source, "registry+"):
		return classifyRegistry(p, strings.TrimPrefix(p.Source, "registry+"), metadata)
	case strings.HasPrefix(p.Source, "sparse+"):
		return classifyRegistry(p, p.Source, metadata)
	case strings.HasPrefix(p.Source, "git+"):
		return classifyGit(p, strings.TrimPrefix(p.Source, "git+"))
	default:
		return source.Package{}, ferrors.New(ferrors.KindConfig,
			fmt.Sprintf("package %s@%s: unrecognised source %q", p.Name, p.Version, p.Source))
	}
}

func classifyRegistry(p rawPackage, indexURL string, metadata map[string]string) (source.Package, error) {
	checksum := p.Checksum
	if checksum == "" {
		// v1 lockfile: checksum lives in [metadata] keyed by a composite string.
		metaKey := fmt.Sprintf("checksum %s %s (%s)", p.Name, p.Version, p.Source)
		checksum = metadata[metaKey]
	}
	if checksum == "" {
		return source.Package{}, ferrors.New(ferrors.KindConfig,
			fmt.Sprintf("package %s@%s: missing checksum", p.Name, p.Version))
	}

	registryID := idhash.RegistryID(indexURL)
	registryName := registryNameFor(indexURL)

	return source.Package{
		Name:     p.Name,
		Version:  p.Version,
		Checksum: strings.ToLower(checksum),
		Source: source.Source{
			Kind: source.Registry,
			Registry: source.RegistryInfo{
				RegistryID:  registryID,
				IndexURL:    indexURL,
				URLTemplate: downloadTemplateFor(registryName, indexURL),
			},
		},
	}, nil
}

func classifyGit(p rawPackage, rest string) (source.Package, error) {
	m := gitFragmentRe.FindStringSubmatch(rest)
	if m == nil {
		return source.Package{}, ferrors.New(ferrors.KindConfig,
			fmt.Sprintf("package %s@%s: git source missing resolved revision fragment", p.Name, p.Version))
	}
	revision := strings.ToLower(m[1])
	withoutFragment := strings.TrimSuffix(rest, "#"+m[1])

	repoURL, reference := splitGitReference(withoutFragment)

	return source.Package{
		Name:    p.Name,
		Version: revision,
		Source: source.Source{
			Kind: source.Git,
			Git: source.GitInfo{
				RepoURL:   repoURL,
				Reference: reference,
				Revision:  revision,
			},
		},
	}, nil
}

// splitGitReference separates the repo URL from Cargo's ?branch=/?tag=/?rev=
// query parameter, returning the bare repo URL and the original specifier
// (e.g. "branch=main"), or "" if the default branch was used.
func splitGitReference(s string) (repoURL, reference string) {
	u, err := url.Parse(s)
	if err != nil {
		return s, ""
	}
	q := u.Query()
	switch {
	case q.Get("branch") != "":
		reference = "branch=" + q.Get("branch")
	case q.Get("tag") != "":
		reference = "tag=" + q.Get("tag")
	case q.Get("rev") != "":
		reference = "rev=" + q.Get("rev")
	}
	u.RawQuery = ""
	return u.String(), reference
}

// registryNameFor returns the env-var-friendly name used to look up
// CARGO_FETCHER_<NAME>_DL overrides, per spec §4.3/§6.
func registryNameFor(indexURL string) string {
	if indexURL == cratesIOGitIndexURL || strings.HasPrefix(indexURL, cratesIOSparseIndexURL) ||
		strings.Contains(indexURL, "index.crates.io") {
		return cratesIORegistryName
	}
	u, err := url.Parse(strings.TrimPrefix(indexURL, "sparse+"))
	if err != nil || u.Host == "" {
		return "registry"
	}
	return u.Host
}

// envNameFor upper-cases and sanitises a registry name for use in an
// environment variable, e.g. "my-registry.example.com" ->
// "MY_REGISTRY_EXAMPLE_COM".
func envNameFor(registryName string) string {
	upper := strings.ToUpper(registryName)
	replacer := strings.NewReplacer("-", "_", ".", "_", "/", "_")
	return replacer.Replace(upper)
}

func downloadTemplateFor(registryName, indexURL string) string {
	envVar := "CARGO_FETCHER_" + envNameFor(registryName) + "_DL"
	if override := os.Getenv(envVar); override != "" {
		return override
	}
	if registryName == cratesIORegistryName {
		return cratesIODownloadTemplate
	}
	base := strings.TrimSuffix(strings.TrimPrefix(indexURL, "sparse+"), "/")
	return strings.ReplaceAll(defaultDownloadTemplate, "{registry-base}", base)
}
