// Package fsbackend implements backend.Backend over a local directory
// tree, for single-machine use and as the reference implementation the
// conformance suite in backendtest is written against.
package fsbackend

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

func init() {
	backend.Register("file", func(u *url.URL) (backend.Backend, error) {
		dir := u.Path
		if dir == "" {
			dir = u.Opaque
		}
		if dir == "" {
			return nil, ferrors.New(ferrors.KindConfig, "file backend url has no path")
		}
		return New(dir), nil
	})
}

// Backend stores objects as files under Root, keyed by their slash-
// separated path relative to Root.
type Backend struct {
	Root string
}

// New returns a Backend rooted at dir. dir need not exist yet; it is
// created on first Upload.
func New(dir string) *Backend {
	return &Backend{Root: dir}
}

func (b *Backend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ferrors.New(ferrors.KindConfig, "key escapes backend root: "+key)
	}
	return filepath.Join(b.Root, clean), nil
}

// List returns every key under prefix, walking the directory tree.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	root, err := b.path(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.Root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindLocalIO, err, "listing "+prefix)
	}
	return keys, nil
}

// Fetch reads the object at key.
func (b *Backend) Fetch(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ferrors.Wrap(ferrors.KindNotFound, err, "fetching "+key)
		}
		return nil, ferrors.Wrap(ferrors.KindLocalIO, err, "fetching "+key)
	}
	return data, nil
}

// Upload writes data to key via a temp file in the same directory
// followed by a rename, so concurrent readers never observe a partial
// write.
func (b *Backend) Upload(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating directory for "+key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating temp file for "+key)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ferrors.Wrap(ferrors.KindLocalIO, err, "writing "+key)
	}
	if err := tmp.Close(); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "closing temp file for "+key)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "renaming into place: "+key)
	}
	return nil
}

// Updated returns key's modification time.
func (b *Backend) Updated(ctx context.Context, key string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	p, err := b.path(key)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ferrors.Wrap(ferrors.KindNotFound, err, "stat "+key)
		}
		return time.Time{}, ferrors.Wrap(ferrors.KindLocalIO, err, "stat "+key)
	}
	return info.ModTime(), nil
}
