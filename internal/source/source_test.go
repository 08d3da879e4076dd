package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/catalyst-forge/cargo-fetcher/internal/source"
)

func TestDedupKey_RegistrySameNameVersion(t *testing.T) {
	p1 := source.Package{
		Name: "serde", Version: "1.0.0",
		Source: source.Source{Kind: source.Registry, Registry: source.RegistryInfo{RegistryID: "abc"}},
	}
	p2 := p1
	assert.Equal(t, p1.DedupKey(), p2.DedupKey())
}

func TestDedupKey_GitSameRepoRevisionDifferentNames(t *testing.T) {
	gitInfo := source.GitInfo{RepoURL: "https://github.com/foo/bar", Revision: "deadbeef"}
	p1 := source.Package{Name: "crate-a", Source: source.Source{Kind: source.Git, Git: gitInfo}}
	p2 := source.Package{Name: "crate-b", Source: source.Source{Kind: source.Git, Git: gitInfo}}

	assert.Equal(t, p1.DedupKey(), p2.DedupKey(), "two packages from the same repo+revision dedup to one fetch")
}

func TestDedupKey_GitDifferentRevisionsDiffer(t *testing.T) {
	base := source.GitInfo{RepoURL: "https://github.com/foo/bar"}
	g1 := base
	g1.Revision = "aaaa"
	g2 := base
	g2.Revision = "bbbb"

	p1 := source.Package{Source: source.Source{Kind: source.Git, Git: g1}}
	p2 := source.Package{Source: source.Source{Kind: source.Git, Git: g2}}
	assert.NotEqual(t, p1.DedupKey(), p2.DedupKey())
}

func TestCrateFileName(t *testing.T) {
	p := source.Package{Name: "serde", Version: "1.0.0"}
	assert.Equal(t, "serde-1.0.0.crate", p.CrateFileName())
}
