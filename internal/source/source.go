// Package source defines the package identifier and tagged Source model
// that the lockfile resolver produces and every downstream pipeline
// consumes. Source is a closed sum of Registry and Git, per spec §3/§9:
// consumers switch on Kind rather than extending the type.
package source

import (
	"fmt"

	"github.com/catalyst-forge/cargo-fetcher/internal/idhash"
)

// Kind discriminates the two variants of Source.
type Kind int

const (
	// Registry marks a package hosted at a cargo registry.
	Registry Kind = iota
	// Git marks a package backed by a git repository at a pinned commit.
	Git
)

func (k Kind) String() string {
	switch k {
	case Registry:
		return "registry"
	case Git:
		return "git"
	default:
		return "unknown"
	}
}

// RegistryInfo holds the fields specific to a Registry source.
type RegistryInfo struct {
	// RegistryID is the stable short identifier for IndexURL (idhash.RegistryID).
	RegistryID string
	// IndexURL is the registry's index URL as declared in the lockfile's
	// source field; a sparse registry keeps its "sparse+" prefix.
	IndexURL string
	// URLTemplate has placeholders {crate}, {version}, and optionally
	// {prefix}/{lowerprefix}/{sha256}, used to build the download URL.
	URLTemplate string
}

// GitInfo holds the fields specific to a Git source.
type GitInfo struct {
	// RepoURL is the repository URL as declared in the lockfile, before
	// canonicalisation.
	RepoURL string
	// Reference retains the original Cargo specifier: branch, tag, rev,
	// or "" for the default branch.
	Reference string
	// Revision is the resolved 40-hex commit id.
	Revision string
}

// RepoIdent is the stable short identifier for RepoURL (idhash.RepoIdent).
func (g GitInfo) RepoIdent() string { return idhash.RepoIdent(g.RepoURL) }

// Source is a tagged union: exactly one of Registry/Git fields is set,
// selected by Kind.
type Source struct {
	Kind     Kind
	Registry RegistryInfo
	Git      GitInfo
}

// DedupKey returns the key used to collapse duplicate lockfile entries
// that resolve to the same underlying artifact (spec §3 invariant 5,
// §4.3). For registry sources this is (registry-id, name, version); for
// git sources this is (repo-ident, revision) — two packages from the
// same repo at the same commit are one fetch regardless of name.
func (s Source) DedupKey(name, version string) string {
	switch s.Kind {
	case Registry:
		return fmt.Sprintf("registry:%s:%s:%s", s.Registry.RegistryID, name, version)
	case Git:
		return fmt.Sprintf("git:%s:%s", s.Git.RepoIdent(), s.Git.Revision)
	default:
		return fmt.Sprintf("unknown:%s:%s", name, version)
	}
}

// Package is a single resolved lockfile entry: a name, a version-or-fragment
// (a semver string for Registry, the resolved commit for Git), its Source,
// and — for Registry packages — the mandatory checksum.
type Package struct {
	Name     string
	Version  string
	Source   Source
	Checksum string // lowercase hex SHA-256, Registry only.
}

// DedupKey delegates to Source.DedupKey with this package's identity.
func (p Package) DedupKey() string { return p.Source.DedupKey(p.Name, p.Version) }

// CrateFileName is the canonical ".crate" tarball file name for a
// Registry package, e.g. "serde-1.0.0.crate".
func (p Package) CrateFileName() string {
	return fmt.Sprintf("%s-%s.crate", p.Name, p.Version)
}
