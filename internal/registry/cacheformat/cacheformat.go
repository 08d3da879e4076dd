// Package cacheformat encodes and decodes the per-crate index `.cache`
// binary file, per spec §6. This is a compatibility contract with the
// downstream build tool: exact byte reproduction is non-negotiable, so
// Encode/Decode are written as a direct, literal transcription of the
// documented layout rather than a general-purpose serializer.
//
//	1 byte     version tag (currently 3)
//	N bytes    index-file hash (nul-terminated string of hex digits)
//	per version entry:
//	  N bytes  semver string, nul-terminated
//	  N bytes  raw JSON metadata line for that version, nul-terminated
package cacheformat

import (
	"bytes"

	"github.com/catalyst-forge/cargo-fetcher/internal/ferrors"
)

// Version is the only cache format version this package produces or
// accepts.
const Version byte = 3

// Entry is one version's metadata line within a .cache file.
type Entry struct {
	// Semver is the exact version string as cargo writes it (not
	// necessarily a Go-normalized semver).
	Semver string
	// JSON is the raw metadata line for this version, byte-for-byte as
	// it appears in the registry index.
	JSON []byte
}

// File is a fully-decoded .cache file.
type File struct {
	// IndexHash identifies the index state this cache was built
	// against: the index commit hex for a git-protocol registry, or
	// the HTTP ETag for a sparse-protocol registry.
	IndexHash string
	Entries   []Entry
}

// Encode produces the exact on-disk bytes for f.
func Encode(f File) []byte {
	var buf bytes.Buffer
	buf.WriteByte(Version)
	buf.WriteString(f.IndexHash)
	buf.WriteByte(0)
	for _, e := range f.Entries {
		buf.WriteString(e.Semver)
		buf.WriteByte(0)
		buf.Write(e.JSON)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

// Decode parses the on-disk bytes of a .cache file. An unrecognised
// version tag or a missing nul terminator is a KindIntegrity error:
// the file is either foreign or truncated, and should be treated as
// absent rather than trusted.
func Decode(data []byte) (File, error) {
	if len(data) < 1 {
		return File{}, ferrors.New(ferrors.KindIntegrity, "cache file is empty")
	}
	if data[0] != Version {
		return File{}, ferrors.New(ferrors.KindIntegrity, "cache file has unsupported version tag")
	}
	rest := data[1:]

	hash, rest, err := readCString(rest)
	if err != nil {
		return File{}, ferrors.Wrap(ferrors.KindIntegrity, err, "reading index hash")
	}

	f := File{IndexHash: hash}
	for len(rest) > 0 {
		var semver, jsonLine string
		semver, rest, err = readCString(rest)
		if err != nil {
			return File{}, ferrors.Wrap(ferrors.KindIntegrity, err, "reading semver entry")
		}
		jsonLine, rest, err = readCString(rest)
		if err != nil {
			return File{}, ferrors.Wrap(ferrors.KindIntegrity, err, "reading JSON entry for "+semver)
		}
		f.Entries = append(f.Entries, Entry{Semver: semver, JSON: []byte(jsonLine)})
	}

	return f, nil
}

func readCString(data []byte) (string, []byte, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", nil, errMissingTerminator
	}
	return string(data[:idx]), data[idx+1:], nil
}

var errMissingTerminator = ferrors.New(ferrors.KindIntegrity, "missing nul terminator")
