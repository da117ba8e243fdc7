// Package archive bundles sidecar records into a single zstd-compressed
// tar stream and restores them through the atomic persistence layer.
//
// Archives carry only sidecargo-owned artifacts: records and, optionally,
// their backup chains. Source files are never read or written.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/sidecargo/persist"
	"github.com/hupe1980/sidecargo/sidecar"
)

// Summary reports what an export or import touched.
type Summary struct {
	// Records is the number of sidecar records handled.
	Records int

	// Backups is the number of backup files handled.
	Backups int

	// Skipped counts entries passed over (non-records on import,
	// undecodable records with Strict disabled).
	Skipped int
}

// ExportOptions configures Export.
type ExportOptions struct {
	// Recursive descends into subdirectories.
	Recursive bool

	// IncludeBackups adds each record's backup chain to the archive.
	IncludeBackups bool

	// Level is the zstd compression level; zero selects the default.
	Level zstd.EncoderLevel
}

// Export walks root and writes every sidecar record it finds (and
// optionally the backup chains) into a zstd-compressed tar on w. Entry
// names are slash-separated paths relative to root.
func Export(ctx context.Context, root string, w io.Writer, opts ExportOptions) (*Summary, error) {
	level := opts.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("archive: compressor: %w", err)
	}
	tw := tar.NewWriter(zw)

	sum := &Summary{}
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if !opts.Recursive && path != root {
				return fs.SkipDir
			}
			return nil
		}

		switch {
		case sidecar.IsSidecarPath(path) && !sidecar.IsArtifactPath(path):
			sum.Records++
		case opts.IncludeBackups && isBackupPath(path):
			sum.Backups++
		default:
			return nil
		}

		return addFile(tw, root, path)
	})
	if walkErr != nil {
		return nil, fmt.Errorf("archive: export %s: %w", root, walkErr)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalize tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: finalize compressor: %w", err)
	}
	return sum, nil
}

// ImportOptions configures Import.
type ImportOptions struct {
	// Backup rotates the backup chain of records the import overwrites.
	Backup bool

	// Strict fails the import on the first undecodable record instead of
	// skipping it.
	Strict bool
}

// Import reads a zstd tar produced by Export and restores the records
// under root. Every record is decoded before it is written, so an
// archive cannot smuggle in corrupt sidecars, and each write goes
// through the atomic persistence layer. Backup entries in the archive
// are skipped: the backup chain of the destination is owned by its own
// rotation.
func Import(ctx context.Context, root string, r io.Reader, opts ImportOptions) (*Summary, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("archive: decompressor: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	sum := &Summary{}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return sum, nil
		}
		if err != nil {
			return nil, fmt.Errorf("archive: read tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.FromSlash(hdr.Name)
		if strings.Contains(hdr.Name, "..") {
			return nil, fmt.Errorf("archive: refusing entry outside root: %s", hdr.Name)
		}
		if !sidecar.IsSidecarPath(name) || sidecar.IsArtifactPath(name) {
			sum.Skipped++
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("archive: read entry %s: %w", hdr.Name, err)
		}

		record, err := sidecar.Decode(data)
		if err != nil {
			if opts.Strict {
				return nil, fmt.Errorf("archive: entry %s: %w", hdr.Name, err)
			}
			sum.Skipped++
			continue
		}

		dest := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, fmt.Errorf("archive: restore %s: %w", dest, err)
		}
		if _, err := persist.Write(dest, record, opts.Backup); err != nil {
			return nil, err
		}
		sum.Records++
	}
}

func addFile(tw *tar.Writer, root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Name:    filepath.ToSlash(rel),
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime().UTC().Truncate(time.Second),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := io.Copy(tw, f); err != nil {
		return err
	}
	return nil
}

func isBackupPath(path string) bool {
	for n := 1; n <= sidecar.MaxBackups; n++ {
		if strings.HasSuffix(path, fmt.Sprintf(".json.bak%d", n)) {
			return true
		}
	}
	return false
}
