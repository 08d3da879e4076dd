package ops

import (
	"os"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// newScratchDir creates a fresh temporary directory for a single
// clone/checkout operation and returns a cleanup func that removes it.
func newScratchDir() (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "cargo-fetcher-*")
	if err != nil {
		return "", nil, ferrors.Wrap(ferrors.KindLocalIO, err, "creating scratch directory")
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
