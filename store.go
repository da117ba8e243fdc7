package sidecargo

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sidecargo/archive"
	"github.com/hupe1980/sidecargo/fingerprint"
	"github.com/hupe1980/sidecargo/migrate"
	"github.com/hupe1980/sidecargo/persist"
	"github.com/hupe1980/sidecargo/sidecar"
	"github.com/hupe1980/sidecargo/verify"
)

// defaultExtensions lists the media file extensions batch operations
// pick up when no explicit extension filter is configured.
var defaultExtensions = []string{
	"jpg", "jpeg", "png", "heic", "heif",
	"raw", "cr2", "nef", "arw", "dng",
	"tiff", "tif", "webp",
}

// Store is the facade over fingerprinting, verification, migration and
// archive transfer of sidecar records. A Store is safe for concurrent
// use; each file is only ever touched by a single worker per batch.
type Store struct {
	opts     options
	verifier *verify.Engine
	migrator *migrate.Engine
}

// New creates a Store. Without options it uses the default codec, the
// built-in migration registry and a concurrency of runtime.NumCPU().
func New(opts ...Option) *Store {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}

	return &Store{
		opts:     o,
		verifier: verify.NewEngine(o.signature, o.codec),
		migrator: migrate.NewEngine(o.registry, o.codec, o.producerVersion),
	}
}

// Fingerprint hashes the file at path and returns its content identity.
func (s *Store) Fingerprint(path string) (fingerprint.Info, error) {
	info, err := fingerprint.Compute(path)
	if err != nil {
		return fingerprint.Info{}, translateError(err)
	}

	return info, nil
}

// Write persists the record as the sidecar of the media file at path.
// With backup enabled the existing sidecar, if any, is rotated into the
// backup chain first. It returns the path of the sidecar written.
func (s *Store) Write(path string, record *sidecar.Sidecar, backup bool) (string, error) {
	written, err := persist.WriteWith(s.opts.codec, sidecar.PathFor(path), record, backup)
	if err != nil {
		return "", translateError(err)
	}

	s.opts.logger.Debug("sidecar written", "path", path, "sidecar", written, "backup", backup)

	return written, nil
}

// VerifyFile classifies the sidecar of a single media file.
func (s *Store) VerifyFile(path string) (verify.Result, error) {
	res := s.verifier.File(path)
	res.Err = translateError(res.Err)

	return res, res.Err
}

// Verify classifies the sidecars of every matching media file under
// root. Per-file failures are reported on Result.Err and do not abort
// the batch; only walk failures and context cancellation do. Results
// are ordered by path.
func (s *Store) Verify(ctx context.Context, root string, recursive bool) ([]verify.Result, error) {
	paths, err := s.collect(ctx, root, recursive)
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]verify.Result, len(paths))

	if err := s.forEach(ctx, paths, func(i int, path string) error {
		res := s.verifier.File(path)
		res.Err = translateError(res.Err)
		results[i] = res

		return res.Err
	}); err != nil {
		return nil, translateError(err)
	}

	s.opts.logger.Info("verify finished", "root", root, "files", len(results))

	return results, nil
}

// MigrateFile migrates the sidecar of a single media file.
func (s *Store) MigrateFile(path string, opts migrate.Options) (migrate.Result, error) {
	res, err := s.migrator.File(path, opts)
	if err != nil {
		res.Err = translateError(err)
		return res, res.Err
	}

	return res, nil
}

// Migrate migrates the sidecars of every matching media file under
// root. Like Verify it collects per-file failures on Result.Err rather
// than aborting, and returns results ordered by path.
func (s *Store) Migrate(ctx context.Context, root string, recursive bool, opts migrate.Options) ([]migrate.Result, error) {
	paths, err := s.collect(ctx, root, recursive)
	if err != nil {
		return nil, translateError(err)
	}

	results := make([]migrate.Result, len(paths))

	if err := s.forEach(ctx, paths, func(i int, path string) error {
		res, err := s.migrator.File(path, opts)
		res.Err = translateError(err)
		results[i] = res

		return res.Err
	}); err != nil {
		return nil, translateError(err)
	}

	s.opts.logger.Info("migrate finished", "root", root, "files", len(results), "dry_run", opts.DryRun)

	return results, nil
}

// Export writes the sidecar records under root into w as a
// zstd-compressed tar stream.
func (s *Store) Export(ctx context.Context, root string, w io.Writer, opts archive.ExportOptions) (*archive.Summary, error) {
	sum, err := archive.Export(ctx, root, w, opts)
	if err != nil {
		return nil, translateError(err)
	}

	s.opts.logger.Info("export finished", "root", root, "records", sum.Records, "backups", sum.Backups)

	return sum, nil
}

// Import restores sidecar records from the archive stream r under root.
func (s *Store) Import(ctx context.Context, root string, r io.Reader, opts archive.ImportOptions) (*archive.Summary, error) {
	sum, err := archive.Import(ctx, root, r, opts)
	if err != nil {
		return nil, translateError(err)
	}

	s.opts.logger.Info("import finished", "root", root, "records", sum.Records, "skipped", sum.Skipped)

	return sum, nil
}

// collect walks root and returns the sorted list of media files a batch
// operation applies to. A root that is a regular file is returned as a
// batch of one, bypassing the extension and glob filters.
func (s *Store) collect(ctx context.Context, root string, recursive bool) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []string{root}, nil
	}

	var paths []string

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.opts.logger.Warn("walk: skipping entry", "path", path, "error", err)

			if d != nil && d.IsDir() {
				return fs.SkipDir
			}

			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if !recursive && path != root {
				return fs.SkipDir
			}

			return nil
		}

		if s.wants(root, path) {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(paths)

	return paths, nil
}

// wants reports whether a walked file participates in batch operations.
// Sidecars and their artifacts never do. Exclude globs win over include
// globs; include globs, when set, replace the extension filter.
func (s *Store) wants(root, path string) bool {
	if sidecar.IsSidecarPath(path) || sidecar.IsArtifactPath(path) {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	rel = filepath.ToSlash(rel)

	for _, pattern := range s.opts.exclude {
		if matchGlob(pattern, rel) {
			return false
		}
	}

	if len(s.opts.include) > 0 {
		for _, pattern := range s.opts.include {
			if matchGlob(pattern, rel) {
				return true
			}
		}

		return false
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	return slices.Contains(s.opts.extensions, ext)
}

// matchGlob matches a doublestar pattern against the root-relative path
// and, as a convenience for flat patterns like "*.png", its base name.
func matchGlob(pattern, rel string) bool {
	if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
		return true
	}

	ok, err := doublestar.Match(pattern, filepath.Base(rel))

	return err == nil && ok
}

// forEach runs fn over paths with bounded concurrency. fn errors are
// per-file outcomes and intentionally not propagated; only context
// cancellation aborts the batch.
func (s *Store) forEach(ctx context.Context, paths []string, fn func(i int, path string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			s.opts.progress.FileStarted(path)

			if err := s.waitIO(gctx, path); err != nil {
				s.opts.progress.FileCompleted(path, err)
				return err
			}

			err := fn(i, path)
			s.opts.progress.FileCompleted(path, err)
			s.opts.logger.Debug("file processed", "path", path, "error", err)

			return nil
		})
	}

	return g.Wait()
}

// waitIO blocks until the rate limiter admits the file, weighting it by
// size so large originals consume proportional budget. A stat failure
// is ignored here; the per-file operation will surface the real error.
func (s *Store) waitIO(ctx context.Context, path string) error {
	if s.opts.ioLimiter == nil {
		return nil
	}

	n := 1

	if info, err := os.Stat(path); err == nil {
		n = int(info.Size())
	}

	if burst := s.opts.ioLimiter.Burst(); n > burst {
		n = burst
	}

	if n < 1 {
		n = 1
	}

	return s.opts.ioLimiter.WaitN(ctx, n)
}
