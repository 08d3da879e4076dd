package gitmirror

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// Pack tars and zstd-compresses every file under root, with root
// itself as the tar's implicit top level (entries are stored relative
// to root, matching spec §6's snapshot-tar-shape requirement that bare
// repos and checkouts are rooted at their own top level, not a parent
// directory).
func Pack(root string) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindLocalIO, err, "creating zstd writer")
	}
	tw := tar.NewWriter(zw)

	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, ferrors.Wrap(ferrors.KindLocalIO, walkErr, "packing "+root)
	}

	if err := tw.Close(); err != nil {
		return nil, ferrors.Wrap(ferrors.KindLocalIO, err, "closing tar writer")
	}
	if err := zw.Close(); err != nil {
		return nil, ferrors.Wrap(ferrors.KindLocalIO, err, "closing zstd writer")
	}
	return buf.Bytes(), nil
}

// Unpack decompresses and untars data into dir, which must already
// exist. Entries are written via temp-file-then-rename so a cancelled
// unpack never leaves a partially-written file visible under its final
// name.
func Unpack(data []byte, dir string) error {
	zr, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return ferrors.Wrap(ferrors.KindIntegrity, err, "opening zstd stream")
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ferrors.Wrap(ferrors.KindIntegrity, err, "reading tar entry")
		}

		target, err := safeJoin(dir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return ferrors.Wrap(ferrors.KindLocalIO, err, "creating directory "+hdr.Name)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return ferrors.Wrap(ferrors.KindLocalIO, err, "creating parent of "+hdr.Name)
			}
			_ = os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return ferrors.Wrap(ferrors.KindLocalIO, err, "creating symlink "+hdr.Name)
			}
		default:
			if err := writeRegularFile(tr, target, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		}
	}
	return nil
}

// safeJoin joins dir and the tar entry name name, rejecting any entry
// whose resolved path would escape dir (a zip-slip attempt via "../"
// components or an absolute path in the tar header).
func safeJoin(dir, name string) (string, error) {
	target := filepath.Join(dir, filepath.FromSlash(name))
	dirWithSep := filepath.Clean(dir) + string(filepath.Separator)
	if target != filepath.Clean(dir) && !strings.HasPrefix(target, dirWithSep) {
		return "", ferrors.New(ferrors.KindIntegrity, "tar entry escapes destination directory: "+name)
	}
	return target, nil
}

func writeRegularFile(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating parent of "+target)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "creating temp file for "+target)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return ferrors.Wrap(ferrors.KindLocalIO, err, "writing "+target)
	}
	if err := tmp.Close(); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "closing temp file for "+target)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "setting mode on "+target)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return ferrors.Wrap(ferrors.KindLocalIO, err, "renaming into place: "+target)
	}
	return nil
}
