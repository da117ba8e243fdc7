// Package sidecargo is a local, versioned metadata store: it persists
// derived facts about individual files as JSON "sidecar" records stored
// beside each file, verifies their integrity and freshness, and migrates
// them across schema versions.
//
// Source files are never modified. Sidecars are written atomically
// (temp file + fsync + rename) with a bounded backup chain of three
// prior versions rotated on every overwrite.
//
// # Quick Start
//
//	store := sidecargo.New(
//	    sidecargo.WithSignature(sidecar.NewSignature("0.2.0")),
//	)
//
//	// Classify every record under a directory.
//	results, _ := store.Verify(ctx, "./photos", true)
//
//	// Upgrade records to the current schema.
//	migrated, _ := store.Migrate(ctx, "./photos", true, migrate.Options{
//	    To:     "2.0.0",
//	    Backup: true,
//	})
//
// # Health Classification
//
// Every record verifies into exactly one of four states:
//
//   - missing: no sidecar file exists (suggested: rescan)
//   - corrupt: the bytes do not decode into a record (suggested: rescan)
//   - stale:   the file content or the pipeline moved on
//   - ok:      nothing to do
//
// Content drift always wins over version drift: a file whose bytes
// changed gets a rescan suggestion even when its schema is also behind,
// because rescanning re-derives a current-schema record anyway.
//
// # Concurrency
//
// Per-file operations are independent and run in parallel during batch
// walks. Within one file, writes are serialized by the walker; the
// persistence layer assumes at most one writer per path at a time.
// Readers never lock.
package sidecargo

// Version is the sidecargo release version, stamped into records this
// binary produces or migrates.
const Version = "0.2.0"
