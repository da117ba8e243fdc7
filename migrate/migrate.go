package migrate

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hupe1980/sidecargo/codec"
	"github.com/hupe1980/sidecargo/persist"
	"github.com/hupe1980/sidecargo/sidecar"
)

// ErrNoRecord is returned when migration is requested for a file that has
// no sidecar record at all.
var ErrNoRecord = errors.New("no sidecar record")

// ErrBadVersion indicates a malformed version string in the options.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrBadVersion struct {
	Value string
	cause error
}

func (e *ErrBadVersion) Error() string {
	return fmt.Sprintf("bad version string %q", e.Value)
}

func (e *ErrBadVersion) Unwrap() error { return e.cause }

// ErrUnknownPath indicates a (from, to) pair the registry has no
// transform for.
type ErrUnknownPath struct {
	From string
	To   string
}

func (e *ErrUnknownPath) Error() string {
	return fmt.Sprintf("no migration path from %s to %s", e.From, e.To)
}

// ErrCorruptRecord indicates the existing record could not be decoded, so
// its version (and content) cannot be trusted as a migration source.
//
// The decode classification can be accessed via errors.Unwrap.
type ErrCorruptRecord struct {
	Path  string
	cause error
}

func (e *ErrCorruptRecord) Error() string {
	return fmt.Sprintf("corrupt sidecar record at %s: %v", e.Path, e.cause)
}

func (e *ErrCorruptRecord) Unwrap() error { return e.cause }

// Options configures one migration.
type Options struct {
	// From is the source version. Empty means "read it from the record",
	// which fails on a corrupt record.
	From string

	// To is the target version. Required.
	To string

	// DryRun applies the transform to an in-memory copy only. No
	// filesystem writes of any kind.
	DryRun bool

	// Backup rotates the backup chain before committing.
	Backup bool
}

// Result is the ephemeral migration outcome for one source file.
// It is never persisted.
type Result struct {
	// Path is the source file whose record was migrated.
	Path string `json:"path"`

	// SidecarPath is the record that was (or would be) rewritten.
	SidecarPath string `json:"sidecar_path"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Migrated is false for the identity pair and for failed files.
	Migrated bool `json:"migrated"`

	// DryRun echoes the request mode.
	DryRun bool `json:"dry_run,omitempty"`

	// BackupPath is the bak1 path when a backup was rotated, empty when
	// backups were disabled or nothing was written.
	BackupPath string `json:"backup_path,omitempty"`

	// Err is set for per-file failures during batch migration.
	Err error `json:"-"`
}

// Engine migrates records through a fixed registry.
type Engine struct {
	registry        *Registry
	codec           codec.Codec
	producerVersion string
}

// NewEngine creates a migration engine. A nil registry selects
// DefaultRegistry, a nil codec the default codec. producerVersion, when
// non-empty, is stamped onto migrated records.
func NewEngine(reg *Registry, c codec.Codec, producerVersion string) *Engine {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if c == nil {
		c = codec.Default
	}
	return &Engine{registry: reg, codec: c, producerVersion: producerVersion}
}

// File migrates the record of one source file.
//
// The identity pair (v, v) short-circuits before anything else: no write,
// Migrated=false, regardless of DryRun. Re-running a (from, to) migration
// on a record already at "to" therefore resolves to the identity case.
func (e *Engine) File(path string, opts Options) (Result, error) {
	res := Result{
		Path:        path,
		SidecarPath: sidecar.PathFor(path),
		DryRun:      opts.DryRun,
	}

	to, err := sidecar.ParseVersion(opts.To)
	if err != nil {
		return res, &ErrBadVersion{Value: opts.To, cause: err}
	}
	res.To = to.String()

	data, err := os.ReadFile(res.SidecarPath)
	if errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("%w: %s", ErrNoRecord, res.SidecarPath)
	}
	if err != nil {
		return res, fmt.Errorf("migrate: read %s: %w", res.SidecarPath, err)
	}

	record, decodeErr := sidecar.DecodeWith(e.codec, data)

	var from sidecar.Version
	if opts.From == "" {
		if decodeErr != nil {
			return res, &ErrCorruptRecord{Path: res.SidecarPath, cause: decodeErr}
		}
		from = sidecar.VersionOf(record.SchemaVersion)
	} else {
		from, err = sidecar.ParseVersion(opts.From)
		if err != nil {
			return res, &ErrBadVersion{Value: opts.From, cause: err}
		}
	}
	res.From = from.String()

	if from.String() == to.String() {
		// Identity transform. Nothing to do, nothing to write.
		return res, nil
	}

	// A corrupt record cannot be transformed even with an explicit From.
	if decodeErr != nil {
		return res, &ErrCorruptRecord{Path: res.SidecarPath, cause: decodeErr}
	}

	transform, ok := e.registry.Resolve(from, to)
	if !ok {
		return res, &ErrUnknownPath{From: from.String(), To: to.String()}
	}

	work := record.Clone()
	if err := transform(work); err != nil {
		return res, fmt.Errorf("migrate: transform %s -> %s on %s: %w", from, to, res.SidecarPath, err)
	}

	work.SchemaVersion = to.String()
	work.PipelineSignature.SchemaVersion = to.String()
	work.UpdatedAt = time.Now().UTC()
	if e.producerVersion != "" {
		work.ProducerVersion = e.producerVersion
		work.PipelineSignature.ProducerVersion = e.producerVersion
	}

	res.Migrated = true

	if opts.DryRun {
		return res, nil
	}

	if _, err := persist.WriteWith(e.codec, res.SidecarPath, work, opts.Backup); err != nil {
		res.Migrated = false
		return res, err
	}
	if opts.Backup {
		res.BackupPath = sidecar.BackupPath(res.SidecarPath, 1)
	}
	return res, nil
}
