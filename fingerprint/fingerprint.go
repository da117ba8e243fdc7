// Package fingerprint computes the content identity sidecar records are
// pinned to: a BLAKE3 hash plus basic filesystem metadata.
//
// The service is pure and read-only. Identical bytes always yield the
// identical hash, independent of path, mtime, or platform.
package fingerprint

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"lukechampine.com/blake3"
)

// maxSymlinkDepth bounds symlink resolution before giving up on a chain
// as a loop.
const maxSymlinkDepth = 40

// ErrSymlinkLoop is returned when a symlink chain exceeds the resolution
// bound.
var ErrSymlinkLoop = errors.New("too many levels of symbolic links")

// Info is the derived content identity of one file.
type Info struct {
	// HashB3 is the BLAKE3-256 hash of the file contents,
	// 64 lowercase hex characters.
	HashB3 string

	// SizeBytes is the file size at hashing time.
	SizeBytes int64

	// ModifiedAt is the filesystem mtime at hashing time, in UTC.
	ModifiedAt time.Time
}

// Compute hashes the file at path and returns its fingerprint.
//
// Files are streamed, never buffered whole. Unreadable or vanished files
// and symlink chains deeper than the resolution bound fail with the
// underlying I/O error.
func Compute(path string) (Info, error) {
	resolved, err := resolve(path)
	if err != nil {
		return Info{}, err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return Info{}, fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("fingerprint: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Info{}, fmt.Errorf("fingerprint: %s is a directory", path)
	}

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return Info{}, fmt.Errorf("fingerprint: read %s: %w", path, err)
	}

	return Info{
		HashB3:     hex.EncodeToString(h.Sum(nil)),
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime().UTC(),
	}, nil
}

// resolve follows symlinks up to maxSymlinkDepth hops.
func resolve(path string) (string, error) {
	orig := path
	for depth := 0; ; depth++ {
		if depth > maxSymlinkDepth {
			return "", fmt.Errorf("fingerprint: %w: %s", ErrSymlinkLoop, orig)
		}

		fi, err := os.Lstat(path)
		if err != nil {
			return "", fmt.Errorf("fingerprint: stat %s: %w", orig, err)
		}
		if fi.Mode()&os.ModeSymlink == 0 {
			return path, nil
		}

		target, err := os.Readlink(path)
		if err != nil {
			return "", fmt.Errorf("fingerprint: readlink %s: %w", path, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = target
	}
}
