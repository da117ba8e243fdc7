// Package persist writes sidecar records atomically with bounded backup
// rotation.
//
// The write protocol is temp file + fsync + rename, with the backup
// rotation running entirely before the final rename: a crash at any point
// either leaves the previous record fully intact or the new record fully
// committed. Readers never lock; rename atomicity guarantees they see
// whole-old or whole-new content.
//
// The layer assumes at most one writer per path at a time. Concurrent
// writers to the same path can race on rotation and must be serialized by
// the caller.
package persist

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/sidecargo/codec"
	"github.com/hupe1980/sidecargo/internal/fsutil"
	"github.com/hupe1980/sidecargo/sidecar"
)

// Write encodes the record and commits it to path.
//
// With backup=true and a prior record present, the backup chain rotates
// first: bak2 -> bak3 (discarding the old bak3), bak1 -> bak2, then the
// current record is copied to bak1. Copying (rather than renaming) means
// path itself is never absent; at worst a crash leaves one stale backup
// slot. Any failure before the final rename leaves path untouched.
//
// Returns the committed path.
func Write(path string, s *sidecar.Sidecar, backup bool) (string, error) {
	return WriteWith(codec.Default, path, s, backup)
}

// WriteWith is Write using an explicit codec.
func WriteWith(c codec.Codec, path string, s *sidecar.Sidecar, backup bool) (string, error) {
	data, err := sidecar.EncodeWith(c, s)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)

	// Sibling temp file keeps the final rename on one filesystem.
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("persist: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename has happened.
		_ = os.Remove(tmpName)
	}()

	// CreateTemp opens at 0600; records are world-readable.
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("persist: chmod temp for %s: %w", path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("persist: write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("persist: sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("persist: close temp for %s: %w", path, err)
	}

	if backup && fsutil.Exists(path) {
		if err := rotateBackups(path); err != nil {
			return "", err
		}
	}

	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("persist: commit %s: %w", path, err)
	}

	if err := fsutil.SyncDir(dir); err != nil {
		return "", err
	}

	return path, nil
}

// rotateBackups shifts the chain one slot down and copies the current
// record into slot 1. The current record is only read, never moved.
func rotateBackups(path string) error {
	for n := sidecar.MaxBackups - 1; n >= 1; n-- {
		src := sidecar.BackupPath(path, n)
		if !fsutil.Exists(src) {
			continue
		}
		dst := sidecar.BackupPath(path, n+1)
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("persist: rotate %s: %w", src, err)
		}
	}

	if err := fsutil.CopyFile(path, sidecar.BackupPath(path, 1)); err != nil {
		return fmt.Errorf("persist: backup %s: %w", path, err)
	}
	return nil
}

// Backups returns the existing backup paths for a sidecar in recency
// order: slot 1 (most recent prior version) first.
func Backups(path string) []string {
	var out []string
	for n := 1; n <= sidecar.MaxBackups; n++ {
		p := sidecar.BackupPath(path, n)
		if fsutil.Exists(p) {
			out = append(out, p)
		}
	}
	return out
}
