// Package layout computes the on-disk paths sync must produce under a
// Cargo home directory, per spec §3 "On-disk layout targets". Every path
// the sync pipeline writes to is derived here so there is exactly one
// place that knows cargo's directory shape.
package layout

import "path/filepath"

// Home roots all layout paths at a Cargo home directory (CH in spec §3).
type Home struct {
	Dir string
}

// New returns a Home rooted at dir.
func New(dir string) Home { return Home{Dir: dir} }

// RegistryCacheDir is CH/registry/cache/<registry-id>.
func (h Home) RegistryCacheDir(registryID string) string {
	return filepath.Join(h.Dir, "registry", "cache", registryID)
}

// CrateTarball is CH/registry/cache/<registry-id>/<name>-<version>.crate.
func (h Home) CrateTarball(registryID, name, version string) string {
	return filepath.Join(h.RegistryCacheDir(registryID), name+"-"+version+".crate")
}

// RegistrySrcDir is CH/registry/src/<registry-id>.
func (h Home) RegistrySrcDir(registryID string) string {
	return filepath.Join(h.Dir, "registry", "src", registryID)
}

// CrateSrcDir is CH/registry/src/<registry-id>/<name>-<version>, the
// unpacked crate directory.
func (h Home) CrateSrcDir(registryID, name, version string) string {
	return filepath.Join(h.RegistrySrcDir(registryID), name+"-"+version)
}

// RegistryIndexDir is CH/registry/index/<registry-id>.
func (h Home) RegistryIndexDir(registryID string) string {
	return filepath.Join(h.Dir, "registry", "index", registryID)
}

// CacheEntryPath is CH/registry/index/<registry-id>/.cache/<aa>/<bb>/<name>,
// the per-crate binary .cache file (spec §6).
func (h Home) CacheEntryPath(registryID, name string) string {
	aa, bb := cacheShardPrefix(name)
	return filepath.Join(h.RegistryIndexDir(registryID), ".cache", aa, bb, name)
}

// cacheShardPrefix implements spec §3's
// ".cache/<first-two-chars>/<next-two-chars>/<name>" rule. Names shorter
// than 4 characters are padded with the name's own last character so the
// shard directories are still two characters wide ("abc" maps to
// "ab"/"cc"). name must be non-empty.
func cacheShardPrefix(name string) (string, string) {
	padded := name
	for len(padded) < 4 {
		padded += padded[len(padded)-1:]
	}
	return padded[0:2], padded[2:4]
}

// GitDBDir is CH/git/db/<repo-ident>, the bare clone directory.
func (h Home) GitDBDir(repoIdent string) string {
	return filepath.Join(h.Dir, "git", "db", repoIdent)
}

// GitCheckoutDir is CH/git/checkouts/<repo-ident>/<short-revision>, the
// working tree directory. shortRevision is the first 7 hex chars of the
// commit.
func (h Home) GitCheckoutDir(repoIdent, shortRevision string) string {
	return filepath.Join(h.Dir, "git", "checkouts", repoIdent, shortRevision)
}

// ShortRevision returns the first 7 hex characters of a full commit id,
// matching cargo's checkout directory naming.
func ShortRevision(revision string) string {
	if len(revision) <= 7 {
		return revision
	}
	return revision[:7]
}
